package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"pagemirror/internal/config"
	"pagemirror/internal/domain"
	"pagemirror/internal/metrics"
	"pagemirror/internal/models"
	"pagemirror/internal/worker"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// HTTPServer exposes the sync queue to operators and serves mirrored pages
// publicly.
type HTTPServer struct {
	cfg     config.APIConfig
	exports config.ExportConfig
	syncer  *worker.Syncer
	pages   domain.PageStore
	cache   domain.PageCache
	server  *http.Server
	auth    *HTTPAuth
	log     zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	exports config.ExportConfig,
	syncer *worker.Syncer,
	pages domain.PageStore,
	cache domain.PageCache,
	logger *zerolog.Logger,
) *HTTPServer {
	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "http").Logger()
	}

	srv := &HTTPServer{cfg: cfg, exports: exports, syncer: syncer, pages: pages, cache: cache, log: log}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/sync/pages/", srv.handleEnqueuePage)
	mux.HandleFunc("/api/v1/sync/published", srv.handleEnqueuePublished)
	mux.HandleFunc("/api/v1/sync/process", srv.handleProcessNext)
	mux.HandleFunc("/api/v1/sync/jobs", srv.handleListJobs)
	mux.HandleFunc("/api/v1/sync/jobs/", srv.handleJobSubpath)
	mux.HandleFunc("/api/v1/pages", srv.handleListPages)
	mux.HandleFunc("/api/v1/pages/", srv.handleGetPage)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the full middleware chain, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// POST /api/v1/sync/pages/{pageID}
func (s *HTTPServer) handleEnqueuePage(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_enqueue")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pageID := strings.TrimPrefix(r.URL.Path, "/api/v1/sync/pages/")
	if pageID == "" || strings.Contains(pageID, "/") {
		writeError(w, http.StatusBadRequest, "page id is required")
		return
	}

	var body struct {
		Trigger string          `json:"trigger"`
		Payload json.RawMessage `json:"payload"`
	}
	if r.Body != nil {
		// body is optional
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	if body.Trigger == "" {
		body.Trigger = models.TriggerButton
	}

	job, err := s.syncer.Enqueue(r.Context(), pageID, body.Trigger, string(body.Payload))
	if err != nil {
		s.writeSyncerError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// POST /api/v1/sync/published
func (s *HTTPServer) handleEnqueuePublished(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_published")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	summary, err := s.syncer.EnqueuePublished(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("published sweep failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// POST /api/v1/sync/process
func (s *HTTPServer) handleProcessNext(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_process")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		WorkerID string `json:"worker_id"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	job, err := s.syncer.ProcessNext(r.Context(), body.WorkerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process next job")
		return
	}
	if job == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "empty"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "done", "job": job})
}

// GET /api/v1/sync/jobs?limit=N
func (s *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync_jobs")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	jobs, err := s.syncer.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Dispatches /api/v1/sync/jobs/export, /api/v1/sync/jobs/{id} and
// /api/v1/sync/jobs/{id}/retry.
func (s *HTTPServer) handleJobSubpath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/sync/jobs/")

	if rest == "export" {
		s.handleExportJobs(w, r)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/retry"); ok {
		s.handleRetryJob(w, r, id)
		return
	}

	s.handleGetJob(w, r, rest)
}

func (s *HTTPServer) handleRetryJob(w http.ResponseWriter, r *http.Request, rawID string) {
	metrics.IncHTTP("sync_retry")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.syncer.Retry(r.Context(), jobID)
	if err != nil {
		s.writeSyncerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleGetJob(w http.ResponseWriter, r *http.Request, rawID string) {
	metrics.IncHTTP("sync_job")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	jobID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.syncer.Job(r.Context(), jobID)
	if err != nil {
		s.writeSyncerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// GET /api/v1/pages
func (s *HTTPServer) handleListPages(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("pages_list")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pages, err := s.pages.ListPublishedPages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

// GET /api/v1/pages/{slug} — read-through the cache to the local store.
func (s *HTTPServer) handleGetPage(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("pages_get")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	slug := strings.TrimPrefix(r.URL.Path, "/api/v1/pages/")
	if slug == "" || strings.Contains(slug, "/") {
		writeError(w, http.StatusBadRequest, "slug is required")
		return
	}

	if s.cache != nil {
		if page, err := s.cache.GetPage(r.Context(), slug); err == nil && page != nil {
			writeJSON(w, http.StatusOK, page)
			return
		}
	}

	page, err := s.pages.GetPageBySlug(r.Context(), slug)
	if errors.Is(err, models.ErrPageNotFound) {
		writeError(w, http.StatusNotFound, "page not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load page")
		return
	}

	if s.cache != nil {
		if err := s.cache.SetPage(r.Context(), page); err != nil {
			s.log.Warn().Err(err).Str("slug", slug).Msg("cache fill failed")
		}
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) writeSyncerError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrJobNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// public page reads stay open; everything else is operator surface
		protected := !strings.HasPrefix(r.URL.Path, "/api/v1/pages")

		if a.cfg.Auth.Enabled && protected {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = "x-api-extra"
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	if apiKey == "" {
		return fmt.Errorf("missing api key header")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}

	// second factor; keys without one configured skip it
	if client.Extra != "" {
		extra := strings.TrimSpace(r.Header.Get(extraHeader))
		if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
			return fmt.Errorf("invalid extra header")
		}
	}

	return a.checkPermissions(client, r)
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermissionHTTP(r *http.Request) string {
	if strings.HasPrefix(r.URL.Path, "/api/v1/sync/") && r.Method == http.MethodPost {
		return "sync"
	}
	if strings.HasPrefix(r.URL.Path, "/api/v1/sync/") {
		return "read"
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	header := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if header == "" {
		header = "x-api-key"
	}

	if apiKey := strings.TrimSpace(r.Header.Get(header)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
