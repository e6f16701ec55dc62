package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/macca/pkg/audio"
	"github.com/MrWong99/macca/pkg/provider/tts"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		opts []Option
	}{
		{name: "empty key", key: ""},
		{name: "empty voice", key: "k", opts: []Option{WithVoice("")}},
		{name: "mp3 format", key: "k", opts: []Option{WithOutputFormat("mp3_44100_128")}},
		{name: "bad rate", key: "k", opts: []Option{WithOutputFormat("pcm_abc")}},
		{name: "stability above one", key: "k", opts: []Option{WithVoiceSettings(1.5, 0.5)}},
	}
	for _, tt := range tests {
		if _, err := New(tt.key, tt.opts...); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestStreamURL(t *testing.T) {
	t.Parallel()

	p, err := New("k", WithVoice("voice-abc123"), WithModel("eleven_multilingual_v2"), WithOutputFormat("pcm_24000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u, err := url.Parse(p.streamURL())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Scheme != "wss" || u.Host != "api.elevenlabs.io" {
		t.Errorf("origin = %s://%s", u.Scheme, u.Host)
	}
	if u.Path != "/v1/text-to-speech/voice-abc123/stream-input" {
		t.Errorf("path = %q", u.Path)
	}
	if u.Query().Get("model_id") != "eleven_multilingual_v2" || u.Query().Get("output_format") != "pcm_24000" {
		t.Errorf("query = %v", u.Query())
	}
	if p.sampleRate != 24000 {
		t.Errorf("sampleRate = %d, want 24000", p.sampleRate)
	}
}

// fakeStream accepts one socket, reads the three input frames into got and
// answers with replies before closing normally.
func fakeStream(t *testing.T, got chan<- []textMessage, replies ...audioResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()

		msgs := make([]textMessage, 3)
		for i := range msgs {
			if err := wsjson.Read(r.Context(), conn, &msgs[i]); err != nil {
				t.Errorf("server read: %v", err)
				return
			}
		}
		if got != nil {
			got <- msgs
		}
		for _, rep := range replies {
			_ = wsjson.Write(r.Context(), conn, rep)
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func chunk(b ...byte) audioResponse {
	return audioResponse{Audio: base64.StdEncoding.EncodeToString(b)}
}

func TestSynthesize_CollectsChunks(t *testing.T) {
	t.Parallel()

	received := make(chan []textMessage, 1)
	srv := fakeStream(t, received, chunk(1, 0, 2, 0), chunk(3, 0), audioResponse{IsFinal: true})

	p, err := New("xi-key", WithEndpoint(wsURL(srv)), WithVoiceSettings(0.3, 0.9))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), "Great answer!", "en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	info, err := audio.ParseWAV(clip)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("sample rate = %d", info.SampleRate)
	}
	if diff := cmp.Diff([]byte{1, 0, 2, 0, 3, 0}, clip[info.DataOffset:]); diff != "" {
		t.Errorf("pcm (-want +got):\n%s", diff)
	}

	want := []textMessage{
		{Text: " ", XiAPIKey: "xi-key", VoiceSettings: &voiceSettings{Stability: 0.3, SimilarityBoost: 0.9}},
		{Text: "Great answer! "},
		{Text: ""},
	}
	if diff := cmp.Diff(want, <-received); diff != "" {
		t.Errorf("frames (-want +got):\n%s", diff)
	}
}

func TestSynthesize_CloseWithoutFinalMarker(t *testing.T) {
	t.Parallel()

	srv := fakeStream(t, nil, chunk(9, 0))
	p, _ := New("k", WithEndpoint(wsURL(srv)))
	clip, err := p.Synthesize(context.Background(), "hi", "en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clip) != 44+2 {
		t.Errorf("clip length = %d, want header plus one sample", len(clip))
	}
}

func TestSynthesize_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		replies []audioResponse
		wantErr error
		wantMsg string
	}{
		{name: "server error", replies: []audioResponse{{Error: "invalid_api_key"}}, wantMsg: "invalid_api_key"},
		{name: "final without audio", replies: []audioResponse{{IsFinal: true}}, wantErr: ErrNoAudio},
		{name: "closed without audio", wantErr: ErrNoAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := fakeStream(t, nil, tt.replies...)
			p, _ := New("k", WithEndpoint(wsURL(srv)))
			_, err := p.Synthesize(context.Background(), "hello", "en")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want %q", err, tt.wantMsg)
			}
		})
	}
}

func TestSynthesize_BlankText(t *testing.T) {
	t.Parallel()

	p, _ := New("k", WithEndpoint("ws://127.0.0.1:1"))
	if _, err := p.Synthesize(context.Background(), "  \n", "en"); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}
