package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func authRouter(keys map[string]string) http.Handler {
	r := chi.NewRouter()
	r.Use(APIKeyAuth(keys))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(RequireValidTenant)
		rt.Get("/x", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(GetTenantFromContext(r.Context())))
		})
	})
	return r
}

func TestAPIKeyAuth(t *testing.T) {
	h := authRouter(map[string]string{"acme": "k-acme", "other": "k-other"})

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"missing header", "/v1/acme/x", "", http.StatusUnauthorized},
		{"wrong key", "/v1/acme/x", "Bearer nope", http.StatusUnauthorized},
		{"bearer key", "/v1/acme/x", "Bearer k-acme", http.StatusOK},
		{"raw key", "/v1/acme/x", "k-acme", http.StatusOK},
		{"other tenant", "/v1/acme/x", "Bearer k-other", http.StatusForbidden},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, c.path, nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Fatalf("status = %d, want %d", rec.Code, c.want)
			}
		})
	}
}

func TestAuthDisabledStillValidatesTenant(t *testing.T) {
	h := authRouter(nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/acme/x", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bad%20tenant/x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
