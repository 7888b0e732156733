package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"drinkwise/api/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/api/health", "", nil)
	expectStatus(t, rr, http.StatusOK, "")

	var response map[string]any
	decode(t, rr, &response)
	if response["ok"] != true {
		t.Errorf("expected ok=true, got %v", response["ok"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		pingFn func(context.Context) error
		status int
		state  string
	}{
		{name: "store up", status: http.StatusOK, state: "ready"},
		{name: "store down", pingFn: func(context.Context) error { return errors.New("connection refused") }, status: http.StatusServiceUnavailable, state: "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(_ *config.Config, deps *Deps) {
				deps.Store = pingStore{Store: deps.Store, pingFn: tt.pingFn}
			})
			rr := f.do(t, http.MethodGet, "/api/ready", "", nil)
			expectStatus(t, rr, tt.status, "")

			var response struct {
				OK     bool                      `json:"ok"`
				Status string                    `json:"status"`
				Checks map[string]map[string]any `json:"checks"`
			}
			decode(t, rr, &response)
			if response.Status != tt.state || response.OK != (tt.status == http.StatusOK) {
				t.Fatalf("unexpected readiness %+v", response)
			}
			if tt.pingFn != nil && response.Checks["store"]["error"] != "connection refused" {
				t.Fatalf("expected store error detail, got %v", response.Checks["store"])
			}
		})
	}
}

func TestOptionsRequestAndCORSHeaders(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodOptions, "/api/friends", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	headers := rr.Header()
	if headers.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected allow origin %q", headers.Get("Access-Control-Allow-Origin"))
	}
	if headers.Get("X-Request-ID") == "" {
		t.Errorf("expected a request id header")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}
