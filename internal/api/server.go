// Package api provides the local HTTP API for pushvault.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/pushvault/internal/config"
	"github.com/wesm/pushvault/internal/messages"
	"github.com/wesm/pushvault/internal/query"
	"github.com/wesm/pushvault/internal/scheduler"
	"github.com/wesm/pushvault/internal/store"
)

// Vault defines the message operations the API needs.
// *messages.Manager satisfies it.
type Vault interface {
	Get(ctx context.Context, id string) *store.Message
	List(ctx context.Context, opts query.ListOptions) []store.Message
	Search(ctx context.Context, opts query.SearchOptions) ([]store.Message, int64)
	Groups(ctx context.Context) []store.GroupSummary
	Counts(ctx context.Context, group *string) query.Counts
	Ingest(ctx context.Context, p messages.Payload) (store.Message, bool, error)
	MarkRead(ctx context.Context, ids ...string) (int64, error)
	MarkAllRead(ctx context.Context, group *string) (int64, error)
	DeleteMessage(ctx context.Context, id string) (string, bool, error)
	DeleteGroup(ctx context.Context, group string) (int64, error)
}

// JobScheduler defines the scheduler operations the API needs.
type JobScheduler interface {
	Trigger(name string) error
	Status() []scheduler.JobStatus
	IsRunning() bool
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	vault       Vault
	scheduler   JobScheduler
	logger      *slog.Logger
	router      chi.Router
	rateLimiter *RateLimiter

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewServer creates a new API server. vault and sched may be nil; the
// routes that need them then answer 503.
func NewServer(cfg *config.Config, vault Vault, sched JobScheduler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		vault:     vault,
		scheduler: sched,
		logger:    logger,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// Disabled when no origins are configured.
	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	qps := s.cfg.Server.RateLimitQPS
	if qps <= 0 {
		qps = 20
	}
	s.rateLimiter = NewRateLimiter(qps, int(2*qps))
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/counts", s.handleCounts)
		r.Get("/groups", s.handleGroups)
		r.Delete("/groups/{group}", s.handleDeleteGroup)

		r.Get("/messages", s.handleListMessages)
		r.Post("/messages", s.handlePushMessage)
		r.Get("/messages/{id}", s.handleGetMessage)
		r.Delete("/messages/{id}", s.handleDeleteMessage)
		r.Post("/read", s.handleMarkRead)

		r.Get("/search", s.handleSearch)

		r.Post("/sweep", s.handleSweep)
		r.Get("/scheduler/status", s.handleSchedulerStatus)
	})

	return r
}

// Start begins listening for HTTP requests. It returns
// http.ErrServerClosed after Shutdown, and an error when the bind address
// is exposed without an API key.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}
	addr := s.cfg.ServerAddr()

	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication, set [server] api_key in config.toml")
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("starting API server", "addr", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server. A Start that has not begun
// listening yet returns http.ErrServerClosed instead.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return srv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key from Authorization or X-API-Key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		if len(key) > 7 && key[:7] == "Bearer " {
			key = key[7:]
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
