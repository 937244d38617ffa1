// Package web provides the status server: health, last run and a run trigger.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/mediathek-loader/internal/config"
	"github.com/JonMunkholm/mediathek-loader/internal/core"
	"github.com/JonMunkholm/mediathek-loader/internal/loader"
	mw "github.com/JonMunkholm/mediathek-loader/internal/web/middleware"
)

// Runner is the part of the loader the server drives.
type Runner interface {
	Start(ctx context.Context, req loader.Request) error
	Status() loader.Status
}

// ChannelLister reads the stored channel rollups.
type ChannelLister interface {
	Channels(ctx context.Context) ([]core.ChannelInfo, error)
}

// Server is the HTTP status server.
type Server struct {
	runner   Runner
	channels ChannelLister
	cfg      config.ServerConfig
	baseCtx  context.Context
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a server. Runs triggered over HTTP use baseCtx, so they
// outlive the request and stop with the process.
func NewServer(baseCtx context.Context, runner Runner, channels ChannelLister, cfg config.ServerConfig) *Server {
	s := &Server{
		runner:   runner,
		channels: channels,
		cfg:      cfg,
		baseCtx:  baseCtx,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/channels", s.handleChannels)
		r.With(
			mw.APIKeyAuth(s.cfg.APIKeys),
			mw.RateLimit(s.cfg.RunRatePerMinute, s.cfg.RunRateBurst),
		).Post("/run", s.handleRun)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// detach returns a context for work started by r that ends with the server
// rather than the request. The request ID is carried over for logging.
func (s *Server) detach(r *http.Request) context.Context {
	ctx := s.baseCtx
	if id := middleware.GetReqID(r.Context()); id != "" {
		ctx = context.WithValue(ctx, middleware.RequestIDKey, id)
	}
	return ctx
}

var startedAt = time.Now()
