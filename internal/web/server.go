// Package web provides the HTTP API and dashboard for stageload.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/JonMunkholm/stageload/internal/config"
	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/schema"
	"github.com/JonMunkholm/stageload/internal/validation"
	"github.com/JonMunkholm/stageload/internal/watch"
	appmw "github.com/JonMunkholm/stageload/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

// Pipeline is the ingestion surface the API drives.
type Pipeline interface {
	Ingest(ctx context.Context, sub core.Submission) (*domain.Manifest, error)
	IngestArchive(ctx context.Context, data []byte, filename string) (*domain.BatchResult, error)
	AnalyzeArchive(ctx context.Context, data []byte, filename string) (*domain.ArchiveAnalysis, error)
	CanRoute(filename string) bool
}

// Reporter builds validation reports.
type Reporter interface {
	GenerateReport(ctx context.Context, batchID uuid.UUID) (*validation.Report, error)
}

// TableLister lists staging tables.
type TableLister interface {
	ListStagingTables(ctx context.Context, prefix string) ([]schema.StagingTable, error)
}

// WatchFolder is the watch folder surface. A nil WatchFolder means the
// watch folder is disabled.
type WatchFolder interface {
	Status() watch.Status
	ListFiles(folder string) ([]watch.FileInfo, error)
	Retry(name string) (string, error)
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server. Watch and Health are optional.
type Deps struct {
	Pipeline  Pipeline
	Manifests domain.ManifestStore
	Rules     domain.RuleStore
	Issues    domain.IssueStore
	Reports   Reporter
	Tables    TableLister
	Watch     WatchFolder
	Health    Pinger
	Limiter   *core.IngestLimiter
}

// Server is the HTTP server for the stageload API.
type Server struct {
	cfg  *config.Config
	deps Deps

	router   *chi.Mux
	server   *http.Server
	limiters []*rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Limiter == nil {
		deps.Limiter = core.NewIngestLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if len(s.cfg.Security.CORSOrigins) > 0 {
		s.router.Use(cors.New(cors.Options{
			AllowedOrigins:   s.cfg.Security.CORSOrigins,
			AllowCredentials: true,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Submitted-By"},
		}).Handler)
	}

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.With(s.timeout).Get("/", s.handleDashboard)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.With(s.timeout).Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(appmw.APIKeyAuth(&s.cfg.Security))
			r.Use(withSubmitter)

			// Ingestion runs without the request timeout; loads are not
			// cancelled once started.
			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(s.newRateLimiter(s.cfg.Rate.IngestLimit, time.Minute).middleware)
				}
				r.Post("/ingest", s.handleIngest)
				r.Post("/archives", s.handleArchive)
				r.Post("/archives/analyze", s.handleAnalyzeArchive)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.timeout)

				r.Get("/manifests", s.handleListManifests)
				r.Get("/manifests/stats", s.handleManifestStats)
				r.Get("/manifests/{batchID}", s.handleGetManifest)
				r.Get("/manifests/{batchID}/children", s.handleManifestChildren)

				r.Get("/validation/rules", s.handleListRules)
				r.Put("/validation/rules", s.handleUpsertRule)
				r.Get("/validation/rules/{pattern}", s.handleGetRule)
				r.Put("/validation/rules/{pattern}/enabled", s.handleSetRuleEnabled)
				r.Delete("/validation/rules/{pattern}", s.handleDeleteRule)

				r.Get("/validation/batches/{batchID}/report", s.handleBatchReport)
				r.Get("/validation/batches/{batchID}/issues", s.handleBatchIssues)
				r.Get("/validation/batches/{batchID}/summary", s.handleBatchSummary)
				r.Get("/validation/critical", s.handleCriticalIssues)

				r.Get("/watch/status", s.handleWatchStatus)
				r.Get("/watch/files/{folder}", s.handleWatchFiles)
				r.Post("/watch/retry/{filename}", s.handleWatchRetry)

				r.Get("/staging/tables", s.handleStagingTables)
			})
		})
	})
}

// timeout applies the configured request timeout.
func (s *Server) timeout(next http.Handler) http.Handler {
	if s.cfg.Server.RequestTimeout <= 0 {
		return next
	}
	return middleware.Timeout(s.cfg.Server.RequestTimeout)(next)
}

// Start begins listening for HTTP requests. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, waits for in-flight ingests and
// stops the rate limiter cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	defer func() {
		for _, rl := range s.limiters {
			rl.stop()
		}
	}()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.deps.Limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// The dashboard uses inline styles only.
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter implements a simple token bucket rate limiter per IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	done     chan struct{}
	once     sync.Once
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter owned by the server.
func (s *Server) newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		done:     make(chan struct{}),
	}
	s.limiters = append(s.limiters, rl)
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every window until stopped.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}

// allow checks if the request should be allowed and consumes a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1,
			lastReset: time.Now(),
		}
		return true
	}

	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

// middleware returns an HTTP middleware that rate limits by client IP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := core.ClientIP(r.Context())
		if ip == "" {
			ip = r.RemoteAddr
		}

		if !rl.allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			writeJSONStatus(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate limit exceeded",
				Message: "Too many requests",
				Action:  "Wait a minute before trying again",
				Code:    "RATE002",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
