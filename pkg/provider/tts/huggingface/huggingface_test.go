package huggingface_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/macca/pkg/provider/tts"
	"github.com/MrWong99/macca/pkg/provider/tts/huggingface"
)

func TestSynthesize(t *testing.T) {
	t.Parallel()

	clip := []byte("fLaC\x00\x00\x00\x22")
	inputs := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		inputs <- body["inputs"]
		w.Header().Set("Content-Type", "audio/flac")
		_, _ = w.Write(clip)
	}))
	defer srv.Close()

	p, err := huggingface.New("hf_x", huggingface.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Synthesize(context.Background(), "Hello learner", "en")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(got, clip) {
		t.Errorf("audio = %q, want %q", got, clip)
	}
	if in := <-inputs; in != "Hello learner" {
		t.Errorf("inputs = %q", in)
	}
}

func TestSynthesize_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
	}{
		{name: "non-2xx", status: http.StatusInternalServerError, contentType: "text/plain", body: "boom"},
		{name: "json error body", status: http.StatusOK, contentType: "application/json", body: `{"error":"loading"}`},
		{name: "empty payload", status: http.StatusOK, contentType: "audio/flac"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := huggingface.New("hf_x", huggingface.WithBaseURL(srv.URL))
			if _, err := p.Synthesize(context.Background(), "hi", "en"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	p, _ := huggingface.New("hf_x")
	if _, err := p.Synthesize(context.Background(), "  ", "en"); !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}
