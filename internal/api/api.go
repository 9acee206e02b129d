// Package api provides the HTTP surface of reviewbot.
//
// It exposes the Messenger webhook (verification and event delivery), a health
// check, and a small token-guarded admin API. Webhook events are handed to the
// dispatcher and acknowledged immediately.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/premierreview/reviewbot/internal/models"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

const (
	readHeaderTimeout = 10 * time.Second
	maxWebhookBody    = 1 << 20
	healthTimeout     = 5 * time.Second
)

// Submitter accepts inbound events for asynchronous processing.
// *pipeline.Dispatcher satisfies it.
type Submitter interface {
	Submit(ev models.InboundEvent) error
}

// Store is the persistence used by the health and admin endpoints.
type Store interface {
	Ping(ctx context.Context) error
	GetUser(ctx context.Context, id string) (models.User, error)
	SetReachable(ctx context.Context, id string, reachable bool) error
}

// SweepFunc runs one re-engagement sweep and returns the number of messages sent.
type SweepFunc func(ctx context.Context) (sent int, err error)

// Opts holds configuration for the API server.
type Opts struct {
	Addr        string
	VerifyToken string
	AppSecret   string
	AdminToken  string
	Sweep       SweepFunc
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the token Facebook echoes during webhook verification.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithAppSecret enables X-Hub-Signature-256 validation of webhook bodies.
func WithAppSecret(secret string) Option {
	return func(o *Opts) { o.AppSecret = secret }
}

// WithAdminToken enables the admin endpoints behind a bearer token.
func WithAdminToken(token string) Option {
	return func(o *Opts) { o.AdminToken = token }
}

// WithSweep exposes POST /admin/sweep to trigger a re-engagement sweep.
func WithSweep(fn SweepFunc) Option {
	return func(o *Opts) { o.Sweep = fn }
}

// Server is the reviewbot HTTP server.
type Server struct {
	events Submitter
	store  Store
	opts   Opts
	router chi.Router
	http   *http.Server
}

// NewServer builds the router. Call Start to listen.
func NewServer(events Submitter, st Store, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{events: events, store: st, opts: o}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              o.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if o.VerifyToken == "" {
		slog.Warn("Server: VERIFY_TOKEN not set, webhook verification will always fail")
	}
	if o.AppSecret == "" {
		slog.Warn("Server: APP_SECRET not set, webhook signatures are not checked")
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/webhook", s.verifyWebhookHandler)
	r.Post("/webhook", s.receiveWebhookHandler)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/users/{id}/reachable", s.resetReachableHandler)
		r.Post("/sweep", s.sweepHandler)
	})
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Server.Start: listening", "addr", s.opts.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping HTTP server")
	return s.http.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	healthData := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		slog.Warn("Health check: store ping failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "store unavailable"
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
