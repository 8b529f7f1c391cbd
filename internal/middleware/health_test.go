package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthHandler(t *testing.T) {
	ok := CheckerFunc(func(ctx context.Context) error { return nil })
	bad := CheckerFunc(func(ctx context.Context) error { return errors.New("idat missing") })

	rec := httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"db": ok})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HealthHandler(map[string]HealthChecker{"db": ok, "tools": bad})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var hs HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&hs); err != nil {
		t.Fatal(err)
	}
	if hs.Checks["tools"].Message != "idat missing" || hs.Checks["db"].Status != "healthy" {
		t.Errorf("checks = %+v", hs.Checks)
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestReadinessHandlerDraining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := ReadinessHandler(ctx)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready = %d", rec.Code)
	}

	cancel()
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("draining = %d", rec.Code)
	}
}
