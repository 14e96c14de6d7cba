package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wesm/pushvault/internal/config"
	"github.com/wesm/pushvault/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{Server: config.ServerConfig{APIPort: 8080}}
}

// mockScheduler implements JobScheduler for tests.
type mockScheduler struct {
	running   bool
	statuses  []scheduler.JobStatus
	triggered []string
	triggerFn func(name string) error
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{running: true}
}

func (m *mockScheduler) Trigger(name string) error {
	m.triggered = append(m.triggered, name)
	if m.triggerFn != nil {
		return m.triggerFn(name)
	}
	return nil
}

func (m *mockScheduler) Status() []scheduler.JobStatus {
	return m.statuses
}

func (m *mockScheduler) IsRunning() bool {
	return m.running
}

func TestHealthEndpoint(t *testing.T) {
	srv := NewServer(testConfig(), nil, newMockScheduler(), testLogger())

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("health status = %q, want 'ok'", resp["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKey = "secret-key"
	srv := NewServer(cfg, nil, newMockScheduler(), testLogger())

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{"no auth", "", "", http.StatusUnauthorized},
		{"wrong key", "Authorization", "wrong-key", http.StatusUnauthorized},
		{"correct key", "Authorization", "secret-key", http.StatusOK},
		{"bearer prefix", "Authorization", "Bearer secret-key", http.StatusOK},
		{"x-api-key header", "X-API-Key", "secret-key", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/scheduler/status", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()

			srv.Router().ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthMiddlewareNoKeyConfigured(t *testing.T) {
	srv := NewServer(testConfig(), nil, newMockScheduler(), testLogger())

	req := httptest.NewRequest("GET", "/api/v1/scheduler/status", nil)
	w := httptest.NewRecorder()

	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d when no API key configured", w.Code, http.StatusOK)
	}
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	sched := newMockScheduler()
	sched.statuses = []scheduler.JobStatus{
		{Name: scheduler.JobSweep, Schedule: "*/15 * * * *", NextRun: time.Now().Add(time.Hour)},
	}
	srv := NewServer(testConfig(), nil, sched, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/scheduler/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp SchedulerStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Running {
		t.Error("expected scheduler to be running")
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].Name != scheduler.JobSweep {
		t.Errorf("jobs = %+v, want the sweep job", resp.Jobs)
	}
}

func TestSchedulerStatusNotRunning(t *testing.T) {
	sched := newMockScheduler()
	sched.running = false
	srv := NewServer(testConfig(), nil, sched, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/scheduler/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var resp SchedulerStatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Running {
		t.Error("expected scheduler to NOT be running")
	}
}

func TestNilVaultReturns503(t *testing.T) {
	srv := NewServer(testConfig(), nil, newMockScheduler(), testLogger())

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/counts"},
		{"GET", "/api/v1/groups"},
		{"GET", "/api/v1/messages"},
		{"GET", "/api/v1/messages/abc"},
		{"GET", "/api/v1/search?q=test"},
		{"POST", "/api/v1/messages"},
		{"POST", "/api/v1/read"},
		{"DELETE", "/api/v1/messages/abc"},
		{"DELETE", "/api/v1/groups/Default"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, req)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("%s %s: status = %d, want %d", ep.method, ep.path, w.Code, http.StatusServiceUnavailable)
			}
		})
	}
}

func TestNilSchedulerReturns503(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, testLogger())

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/sweep"},
		{"GET", "/api/v1/scheduler/status"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, req)

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("%s %s: status = %d, want %d", ep.method, ep.path, w.Code, http.StatusServiceUnavailable)
			}
		})
	}
}

func TestSecurityValidation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.ServerConfig
		wantError bool
	}{
		{"loopback no key", config.ServerConfig{BindAddr: "127.0.0.1"}, false},
		{"loopback 127.0.0.2 no key", config.ServerConfig{BindAddr: "127.0.0.2"}, false},
		{"ipv6 loopback no key", config.ServerConfig{BindAddr: "::1"}, false},
		{"localhost no key", config.ServerConfig{BindAddr: "localhost"}, false},
		{"empty addr no key", config.ServerConfig{BindAddr: ""}, false},
		{"non-loopback with key", config.ServerConfig{BindAddr: "0.0.0.0", APIKey: "secret"}, false},
		{"non-loopback no key", config.ServerConfig{BindAddr: "0.0.0.0"}, true},
		{"non-loopback ipv6 no key", config.ServerConfig{BindAddr: "::"}, true},
		{"non-loopback insecure override", config.ServerConfig{BindAddr: "0.0.0.0", AllowInsecure: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateSecure()
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateSecure() error = %v, wantError = %v", err, tt.wantError)
			}
		})
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BindAddr = "0.0.0.0"
	srv := NewServer(cfg, nil, nil, testLogger())
	defer func() { _ = srv.Shutdown(t.Context()) }()

	if err := srv.Start(); err == nil {
		t.Fatal("Start() = nil, want insecure bind error")
	}
}

func TestCORSFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Server.CORSOrigins = []string{"http://localhost:3000", "http://example.com"}
	srv := NewServer(cfg, nil, newMockScheduler(), testLogger())

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("expected CORS header for allowed origin, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}

	req2 := httptest.NewRequest("GET", "/health", nil)
	req2.Header.Set("Origin", "http://evil.com")
	w2 := httptest.NewRecorder()
	srv.Router().ServeHTTP(w2, req2)

	if w2.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected no CORS header for disallowed origin, got %q", w2.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSDisabledByDefault(t *testing.T) {
	srv := NewServer(testConfig(), nil, newMockScheduler(), testLogger())

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("expected no CORS header when no origins configured, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestStartAfterShutdown(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, testLogger())
	if err := srv.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Start() after Shutdown = %v, want %v", err, http.ErrServerClosed)
	}
}
