package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(map[string]any{"version": "1.0.0", "use_mock": true})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode(t, rec)
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Info["version"] != "1.0.0" || body.Info["use_mock"] != true {
		t.Errorf("info = %v", body.Info)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{},
		},
		{
			name: "storage ok",
			checkers: []Checker{
				PingChecker("storage", fakePinger{}),
				{Name: "providers", Check: func(context.Context) error { return nil }},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"storage": "ok", "providers": "ok"},
		},
		{
			name: "storage down",
			checkers: []Checker{
				PingChecker("storage", fakePinger{err: errors.New("connection refused")}),
				{Name: "providers", Check: func(context.Context) error { return nil }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"storage": "fail: connection refused", "providers": "ok"},
		},
		{
			name: "everything down",
			checkers: []Checker{
				PingChecker("storage", fakePinger{err: errors.New("timeout")}),
				{Name: "blob", Check: func(context.Context) error { return errors.New("read-only") }},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"storage": "fail: timeout", "blob": "fail: read-only"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(nil, tt.checkers...)

			req := httptest.NewRequest("GET", "/readyz", nil)
			rec := httptest.NewRecorder()
			h.Readyz(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decode(t, rec)
			if body.Status != tt.wantBody {
				t.Errorf("body status = %q, want %q", body.Status, tt.wantBody)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestNew_CopiesInputs(t *testing.T) {
	t.Parallel()

	info := map[string]any{"version": "1"}
	checkers := []Checker{PingChecker("storage", fakePinger{})}
	h := New(info, checkers...)

	info["version"] = "2"
	checkers[0] = PingChecker("storage", fakePinger{err: errors.New("late")})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, caller mutation leaked into handler", rec.Code)
	}
	if body := decode(t, rec); body.Info["version"] != "1" {
		t.Errorf("info = %v", body.Info)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()

	h := New(nil, Checker{Name: "test", Check: func(context.Context) error { return nil }})

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{"GET", "/healthz", http.StatusOK},
		{"GET", "/readyz", http.StatusOK},
		{"GET", "/api/health/live", http.StatusOK},
		{"GET", "/api/health/ready", http.StatusOK},
		{"POST", "/healthz", http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	h := New(nil, Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestReadyz_OptionalCheckDegrades(t *testing.T) {
	t.Parallel()

	h := New(nil,
		PingChecker("storage", fakePinger{}),
		Checker{Name: "audio_dir", Optional: true, Check: func(context.Context) error { return errors.New("read-only") }},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	body := decode(t, rec)
	if body.Status != StatusDegraded || body.Checks["audio_dir"] != "fail: read-only" {
		t.Errorf("body = %+v", body)
	}
}

func TestWritableDirChecker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := WritableDirChecker("audio_dir", dir)
	if !c.Optional {
		t.Error("clip directory check should be optional")
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check(%s) = %v", dir, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
	if err := WritableDirChecker("x", filepath.Join(dir, "missing")).Check(context.Background()); err == nil {
		t.Error("missing directory reported writable")
	}
}
