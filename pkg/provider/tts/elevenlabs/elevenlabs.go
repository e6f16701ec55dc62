// Package elevenlabs speaks coach replies through the ElevenLabs
// stream-input WebSocket.
//
// One Synthesize call is one socket: a handshake frame carrying the key and
// voice settings, the reply text, then an empty frame closing the input. PCM
// chunks are gathered until the server marks the last one and returned as a
// mono WAV clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/macca/pkg/audio"
	"github.com/MrWong99/macca/pkg/provider/tts"
)

const (
	apiOrigin = "wss://api.elevenlabs.io"

	// rachel is the stock voice present on every account.
	rachel = "21m00Tcm4TlvDq8ikWAM"

	readLimit = 4 << 20
)

var _ tts.Provider = (*Provider)(nil)

// ErrNoAudio is returned when the stream ends without a chunk.
var ErrNoAudio = errors.New("elevenlabs: stream ended without audio")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel picks the model. Default "eleven_flash_v2_5".
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithVoice picks the voice by ID.
func WithVoice(voiceID string) Option { return func(p *Provider) { p.voice = voiceID } }

// WithOutputFormat picks a pcm_<rate> format. Default "pcm_16000".
func WithOutputFormat(format string) Option { return func(p *Provider) { p.format = format } }

// WithVoiceSettings sets stability and similarity boost, both in [0, 1].
// Defaults 0.5 and 0.75.
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) {
		p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarity}
	}
}

// WithEndpoint replaces the WebSocket origin (scheme and host).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.origin = strings.TrimRight(endpoint, "/") }
}

// Provider is an ElevenLabs streaming client.
type Provider struct {
	apiKey   string
	model    string
	voice    string
	format   string
	settings voiceSettings
	origin   string

	sampleRate int
}

// New returns a client authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    "eleven_flash_v2_5",
		voice:    rachel,
		format:   "pcm_16000",
		settings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		origin:   apiOrigin,
	}
	for _, o := range opts {
		o(p)
	}
	if p.voice == "" {
		return nil, errors.New("elevenlabs: voice ID must not be empty")
	}
	if !inUnit(p.settings.Stability) || !inUnit(p.settings.SimilarityBoost) {
		return nil, fmt.Errorf("elevenlabs: voice settings %+v outside [0, 1]", p.settings)
	}
	var err error
	if p.sampleRate, err = pcmRate(p.format); err != nil {
		return nil, err
	}
	return p, nil
}

type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize returns text as a WAV clip. The language hint is unused; the
// models infer it from the text.
func (p *Provider) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	// The first frame must carry a non-empty text.
	settings := p.settings
	for _, m := range []textMessage{
		{Text: " ", VoiceSettings: &settings, XiAPIKey: p.apiKey},
		{Text: text + " "},
		{Text: ""},
	} {
		if err := wsjson.Write(ctx, conn, m); err != nil {
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	pcm, err := receive(ctx, conn)
	if err != nil {
		return nil, err
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return audio.EncodeWAV(pcm, p.sampleRate, 1), nil
}

// receive collects PCM until the final marker. A normal close after at least
// one chunk also ends the stream.
func receive(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		var resp audioResponse
		err := wsjson.Read(ctx, conn, &resp)
		switch {
		case err == nil:
		case websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(pcm) > 0:
			return pcm, nil
		case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
			return nil, ErrNoAudio
		default:
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}

		if resp.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server: %s", resp.Error)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: chunk: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			if len(pcm) == 0 {
				return nil, ErrNoAudio
			}
			return pcm, nil
		}
	}
}

func (p *Provider) streamURL() string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.format}}
	return p.origin + "/v1/text-to-speech/" + url.PathEscape(p.voice) + "/stream-input?" + q.Encode()
}

func pcmRate(format string) (int, error) {
	digits, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not pcm_<rate>", format)
	}
	rate, err := strconv.Atoi(digits)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: bad sample rate in %q", format)
	}
	return rate, nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }
