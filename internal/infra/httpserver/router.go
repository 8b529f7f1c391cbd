package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	appai "github.com/bryanwahyu/automaton-bindiff/internal/application/ai"
	appdiffs "github.com/bryanwahyu/automaton-bindiff/internal/application/diffs"
	domai "github.com/bryanwahyu/automaton-bindiff/internal/domain/ai"
	domain "github.com/bryanwahyu/automaton-bindiff/internal/domain/diffs"
	"github.com/bryanwahyu/automaton-bindiff/internal/middleware"
)

// Options wires the router. AI and Checkers are optional.
type Options struct {
	Diffs       *appdiffs.Service
	AI          *appai.Service
	Checkers    map[string]middleware.HealthChecker
	APIKeys     map[string]string
	RateLimit   int
	RefillRate  int
	CorsOrigins []string
	Log         zerolog.Logger
}

type Router struct {
	http.Handler

	diffsSvc *appdiffs.Service
	aiSvc    *appai.Service
	log      zerolog.Logger

	// background comparisons outlive the request that started them
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRouter(opts Options) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{diffsSvc: opts.Diffs, aiSvc: opts.AI, log: opts.Log, baseCtx: ctx, cancel: cancel}

	origins := opts.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	capacity, refill := opts.RateLimit, opts.RefillRate
	if capacity <= 0 {
		capacity = 60
	}
	if refill <= 0 {
		refill = 1
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware(opts.Log))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	mux.Use(middleware.RateLimitMiddleware(ctx, capacity, refill))

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.Get("/healthz", middleware.HealthHandler(opts.Checkers))
	mux.Get("/readyz", middleware.ReadinessHandler(ctx))
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Method(http.MethodGet, "/metrics", middleware.MetricsHandler())

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.RequireValidTenant)
		rt.Post("/diffs", r.wrap(r.handleTrigger))
		rt.Get("/diffs/latest", r.wrap(r.handleLatest))
		rt.Get("/diffs/{id}", r.wrap(r.handleGet))
		rt.Get("/diffs/{id}/errors", r.wrap(r.handleErrors))
		rt.Post("/diffs/{id}/retry", r.wrap(r.handleRetry))
		rt.Get("/diffs/{id}/analysis", r.wrap(r.handleAnalysis))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Post("/ai/analyze", r.wrap(r.handleAIAnalyze))
		rt.Get("/ai/analyze", r.wrap(r.handleAIAnalyzeList))
	})

	r.Handler = mux
	return r
}

// Wait blocks until background comparisons finish.
func (r *Router) Wait() { r.wg.Wait() }

// Close cancels running comparisons and waits for them.
func (r *Router) Close() {
	r.cancel()
	r.wg.Wait()
}

type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &statusError{code: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var se *statusError
		switch {
		case errors.As(err, &se):
			http.Error(w, se.msg, se.code)
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, domai.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		case errors.Is(err, domai.ErrEmptyDiff):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, appai.ErrNotFinished), errors.Is(err, appdiffs.ErrInProgress):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			r.log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func comparisonID(req *http.Request) (domain.ComparisonID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateComparisonID(id); err != nil {
		return "", badRequest("%v", err)
	}
	return domain.ComparisonID(id), nil
}

// runInBackground jalankan pipeline sampai selesai, request sudah dibalas
func (r *Router) runInBackground(c *domain.Comparison, phase string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		middleware.ComparisonStarted()
		start := time.Now()

		res, err := r.diffsSvc.Execute(r.baseCtx, c, phase)
		middleware.ComparisonFinished(res.Status, res.FailedStep, time.Since(start))
		if err != nil {
			r.log.Error().Err(err).
				Str("tenant", c.TenantID).
				Str("id", string(c.ID)).
				Str("phase", phase).
				Str("step", res.FailedStep).
				Msg("background comparison failed")
			return
		}
		r.log.Info().
			Str("tenant", c.TenantID).
			Str("id", string(c.ID)).
			Int("added", res.Stats.Added).
			Int("removed", res.Stats.Removed).
			Int("changed", res.Stats.Changed).
			Msg("comparison finished")
	}()
}

// POST /v1/{tenant}/diffs
func (r *Router) handleTrigger(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")

	var body struct {
		Primary   string `json:"primary"`
		Secondary string `json:"secondary"`
		Source    string `json:"source"`
		Metadata  any    `json:"metadata"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if err := middleware.ValidateBinaryPath(body.Primary); err != nil {
		return badRequest("primary: %v", err)
	}
	if err := middleware.ValidateBinaryPath(body.Secondary); err != nil {
		return badRequest("secondary: %v", err)
	}

	c, err := r.diffsSvc.Enqueue(req.Context(), appdiffs.TriggerCommand{
		TenantID:  tenant,
		Primary:   body.Primary,
		Secondary: body.Secondary,
		Source:    middleware.SanitizeString(body.Source),
		Metadata:  body.Metadata,
	})
	if err != nil {
		return err
	}
	r.runInBackground(c, appdiffs.PhaseTrigger)

	return writeJSON(w, http.StatusAccepted, map[string]any{
		"id":         c.ID,
		"status":     c.Status,
		"tenant":     tenant,
		"primary":    c.Primary,
		"secondary":  c.Secondary,
		"result_dir": c.ResultDir,
		"message":    "comparison started in background",
		"queuedAt":   c.TriggeredAt,
	})
}

// POST /v1/{tenant}/diffs/{id}/retry
func (r *Router) handleRetry(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := comparisonID(req)
	if err != nil {
		return err
	}

	c, err := r.diffsSvc.PrepareRetry(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	r.runInBackground(c, appdiffs.PhaseRetry)

	return writeJSON(w, http.StatusAccepted, map[string]any{
		"id":      c.ID,
		"status":  domain.StatusQueued,
		"message": "retry started in background",
	})
}

// GET /v1/{tenant}/diffs/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.diffsSvc.Latest(req.Context(), tenant, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.Comparison{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/diffs/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := comparisonID(req)
	if err != nil {
		return err
	}

	c, err := r.diffsSvc.Get(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, c)
}

// GET /v1/{tenant}/diffs/{id}/errors?limit=20
func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := comparisonID(req)
	if err != nil {
		return err
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.diffsSvc.Errors(req.Context(), tenant, id, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		return writeJSON(w, http.StatusOK, []any{})
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.diffsSvc.Summary(req.Context(), tenant, middleware.ValidateDays(days))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summary)
}

// POST /v1/{tenant}/ai/analyze
// Body: {"diff_id": "<id>"}
func (r *Router) handleAIAnalyze(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return &statusError{code: http.StatusServiceUnavailable, msg: "ai analysis is not configured"}
	}
	tenant := chi.URLParam(req, "tenant")
	var body struct {
		DiffID string `json:"diff_id"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid body: %v", err)
	}
	if err := middleware.ValidateComparisonID(body.DiffID); err != nil {
		return badRequest("diff_id: %v", err)
	}

	a, err := r.aiSvc.AnalyzeAndStore(req.Context(), tenant, domain.ComparisonID(body.DiffID))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, a)
}

// GET /v1/{tenant}/ai/analyze?page=&page_size=
func (r *Router) handleAIAnalyzeList(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return &statusError{code: http.StatusServiceUnavailable, msg: "ai analysis is not configured"}
	}
	tenant := chi.URLParam(req, "tenant")
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.aiSvc.List(req.Context(), tenant, page, middleware.ValidateLimit(size))
	if err != nil {
		return err
	}
	if list == nil {
		return writeJSON(w, http.StatusOK, []any{})
	}
	return writeJSON(w, http.StatusOK, list)
}

// handleAnalysis returns the newest AI analysis of one comparison.
func (r *Router) handleAnalysis(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		return &statusError{code: http.StatusServiceUnavailable, msg: "ai analysis is not configured"}
	}
	tenant := chi.URLParam(req, "tenant")
	id, err := comparisonID(req)
	if err != nil {
		return err
	}
	a, err := r.aiSvc.Latest(req.Context(), tenant, id)
	if err != nil {
		return err
	}
	if a == nil {
		return &statusError{code: http.StatusNotFound, msg: "no analysis for this comparison yet"}
	}
	return writeJSON(w, http.StatusOK, a)
}
