package whisper_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/macca/pkg/provider/stt"
	"github.com/MrWong99/macca/pkg/provider/stt/whisper"
)

type upload struct {
	language string
	model    string
	file     []byte
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and forwards each parsed upload.
func newMockServer(t *testing.T, responseText string, uploads chan<- upload) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		if uploads != nil {
			uploads <- upload{language: r.FormValue("language"), model: r.FormValue("model"), file: data}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_InvalidRawPCM_ReturnsError(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New("http://localhost:8080", whisper.WithRawPCM(0, 1)); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestTranscribe_EncodedClip(t *testing.T) {
	t.Parallel()

	uploads := make(chan upload, 1)
	srv := newMockServer(t, "  I went to the office yesterday \n", uploads)
	defer srv.Close()

	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip := []byte("OggS-fake-webm")
	text, err := p.Transcribe(context.Background(), clip, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "I went to the office yesterday" {
		t.Errorf("text = %q", text)
	}

	got := <-uploads
	if got.language != "en" {
		t.Errorf("language = %q, want default en", got.language)
	}
	if got.model != "base.en" {
		t.Errorf("model = %q, want base.en", got.model)
	}
	if !bytes.Equal(got.file, clip) {
		t.Errorf("uploaded file was modified: %q", got.file)
	}
}

func TestTranscribe_RawPCMWrappedInWAV(t *testing.T) {
	t.Parallel()

	uploads := make(chan upload, 1)
	srv := newMockServer(t, "hello", uploads)
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithRawPCM(16000, 1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pcm := make([]byte, 3200)
	if _, err := p.Transcribe(context.Background(), pcm, "id"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	got := <-uploads
	if len(got.file) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(got.file), 44+len(pcm))
	}
	if string(got.file[0:4]) != "RIFF" || string(got.file[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE header: %q", got.file[:12])
	}
	if got.language != "id" {
		t.Errorf("language = %q, want id", got.language)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	p, _ := whisper.New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), nil, "en"); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), []byte("x"), "en")
	if err == nil || !strings.Contains(err.Error(), "HTTP 503: busy") {
		t.Fatalf("err = %v, want status and body", err)
	}
}

func TestTranscribe_ErrorInReply(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"error":"failed to read WAV file"}`)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), []byte("x"), "en")
	if err == nil || !strings.Contains(err.Error(), "failed to read WAV file") {
		t.Fatalf("err = %v, want the server message", err)
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := newMockServer(t, "never", nil)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(ctx, []byte("x"), "en"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
