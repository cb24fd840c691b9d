package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestNew(t *testing.T) {
	hc := New()

	if hc == nil {
		t.Fatal("New() returned nil")
	}

	if time.Since(hc.startTime) > 1*time.Second {
		t.Errorf("Start time is too old: %v", hc.startTime)
	}

	if hc.ready.Load() {
		t.Error("HealthChecker should not be ready by default")
	}
}

func TestSetReady_Toggle(t *testing.T) {
	hc := New()

	for _, want := range []bool{true, false, true} {
		hc.SetReady(want)
		if hc.ready.Load() != want {
			t.Errorf("ready = %v, want %v", hc.ready.Load(), want)
		}
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) HealthResponse {
	t.Helper()
	var resp HealthResponse
	err := json.NewDecoder(w.Body).Decode(&resp)
	if err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealth_AlwaysOK(t *testing.T) {
	hc := New()
	hc.AddCheck("journal", func() error { return errors.New("down") })

	w := httptest.NewRecorder()
	hc.Health()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if resp := decode(t, w); resp.Status != "healthy" || resp.Uptime == "" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		checks     map[string]Check
		wantCode   int
		wantStatus string
	}{
		{
			name:       "not-ready",
			ready:      false,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
		{
			name:       "ready-no-checks",
			ready:      true,
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:  "ready-checks-pass",
			ready: true,
			checks: map[string]Check{
				"engine":  func() error { return nil },
				"journal": func() error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:  "one-check-fails",
			ready: true,
			checks: map[string]Check{
				"engine":  func() error { return nil },
				"journal": func() error { return errors.New("postgres unreachable") },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := New()
			hc.SetReady(tt.ready)
			for name, check := range tt.checks {
				hc.AddCheck(name, check)
			}

			w := httptest.NewRecorder()
			hc.Ready()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			resp := decode(t, w)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("checks = %v, want %d entries", resp.Checks, len(tt.checks))
			}
			if tt.name == "one-check-fails" && resp.Checks["journal"] != "postgres unreachable" {
				t.Errorf("journal check = %q", resp.Checks["journal"])
			}
		})
	}
}

func TestAddCheck_Replaces(t *testing.T) {
	hc := New()
	hc.SetReady(true)
	hc.AddCheck("journal", func() error { return errors.New("down") })
	hc.AddCheck("journal", func() error { return nil })

	w := httptest.NewRecorder()
	hc.Ready()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
