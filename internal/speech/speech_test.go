package speech_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/macca/internal/blob"
	"github.com/MrWong99/macca/internal/observe"
	"github.com/MrWong99/macca/internal/speech"
	"github.com/MrWong99/macca/pkg/provider/stt"
	sttmock "github.com/MrWong99/macca/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/macca/pkg/provider/tts/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

type slowSTT struct{}

func (slowSTT) Transcribe(ctx context.Context, _ []byte, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestRecognizer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider stt.Provider
		audio    []byte
		want     string
	}{
		{name: "ok", provider: &sttmock.Provider{Text: "  hello there "}, audio: []byte{1}, want: "hello there"},
		{name: "transport error", provider: &sttmock.Provider{Err: errors.New("502 bad gateway")}, audio: []byte{1}, want: stt.SentinelTranscript},
		{name: "empty transcript", provider: &sttmock.Provider{Text: "   "}, audio: []byte{1}, want: stt.SentinelTranscript},
		{name: "empty audio", provider: &sttmock.Provider{Text: "x"}, want: stt.SentinelTranscript},
		{name: "no provider", audio: []byte{1}, want: stt.SentinelTranscript},
		{name: "timeout", provider: slowSTT{}, audio: []byte{1}, want: stt.SentinelTranscript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := speech.NewRecognizer(tt.provider,
				speech.WithMetrics(testMetrics(t)),
				speech.WithTimeout(20*time.Millisecond),
				speech.WithProviderName("huggingface"))
			if got := r.Transcribe(context.Background(), tt.audio, "en"); got != tt.want {
				t.Errorf("Transcribe = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecognizer_EmptyAudioSkipsProvider(t *testing.T) {
	t.Parallel()

	p := sttmock.New()
	r := speech.NewRecognizer(p, speech.WithMetrics(testMetrics(t)))
	r.Transcribe(context.Background(), nil, "en")
	if p.CallCount() != 0 {
		t.Errorf("provider called %d times for empty audio", p.CallCount())
	}
}

type failingStore struct{}

func (failingStore) Save(context.Context, []byte, string) (string, error) {
	return "", errors.New("disk full")
}

func TestSynthesizer_StoresClip(t *testing.T) {
	t.Parallel()

	fs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	p := ttsmock.New()
	s := speech.NewSynthesizer(p, fs, speech.WithMetrics(testMetrics(t)), speech.WithLanguage("en"))

	ref, ok := s.Synthesize(context.Background(), "Nice to meet you!")
	if !ok {
		t.Fatal("ok = false, want true")
	}
	if !strings.HasPrefix(ref, blob.URLPrefix) || !strings.HasSuffix(ref, ".wav") {
		t.Errorf("ref = %q, want a wav reference", ref)
	}
	if _, err := fs.Open(ref); err != nil {
		t.Errorf("Open(%q): %v", ref, err)
	}
	if p.LastText() != "Nice to meet you!" || p.Calls[0].Language != "en" {
		t.Errorf("calls = %+v", p.Calls)
	}
}

func TestSynthesizer_Unavailable(t *testing.T) {
	t.Parallel()

	fs, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	tests := []struct {
		name  string
		synth *speech.Synthesizer
		text  string
	}{
		{name: "provider error", synth: speech.NewSynthesizer(&ttsmock.Provider{Err: errors.New("quota")}, fs), text: "hi"},
		{name: "empty clip", synth: speech.NewSynthesizer(&ttsmock.Provider{}, fs), text: "hi"},
		{name: "blank text", synth: speech.NewSynthesizer(ttsmock.New(), fs), text: "  "},
		{name: "store failure", synth: speech.NewSynthesizer(ttsmock.New(), failingStore{}), text: "hi"},
		{name: "no provider", synth: speech.NewSynthesizer(nil, fs), text: "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, ok := tt.synth.Synthesize(context.Background(), tt.text)
			if ok || ref != "" {
				t.Errorf("Synthesize = %q, %v; want unavailable", ref, ok)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := error(&speech.TransportError{Kind: "tts", Provider: "elevenlabs", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("TransportError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "elevenlabs") {
		t.Errorf("Error() = %q", err.Error())
	}
}
