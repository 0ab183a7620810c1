// Package server wires the HTTP API: routing, middleware and lifecycle.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"typerush/internal/auth"
	"typerush/internal/config"
	"typerush/internal/handler"
	"typerush/internal/payment"
	"typerush/internal/realtime"
	"typerush/internal/service"
)

// Dependencies holds everything the HTTP API needs.
type Dependencies struct {
	Config      *config.ServerConfig
	Verifier    *auth.Verifier
	Accounts    *service.AccountService
	Leaderboard *service.LeaderboardService
	Payments    *service.PaymentService
	Webhooks    *payment.WebhookValidator
	Hub         *realtime.Hub
	// Health reports whether backing stores are reachable.
	Health func(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	cfg      *config.ServerConfig
	router   *mux.Router
	http     *http.Server
	limiter  *IPRateLimiter
	payments *handler.PaymentHandler
	health   func(ctx context.Context) error
}

// New builds the router and registers every route.
func New(deps *Dependencies) *Server {
	s := &Server{
		cfg:      deps.Config,
		router:   mux.NewRouter(),
		limiter:  NewIPRateLimiter(deps.Config.RateLimit, deps.Config.RateBurst),
		payments: handler.NewPaymentHandler(deps.Payments, deps.Webhooks),
		health:   deps.Health,
	}

	s.registerMiddleware()
	s.registerRoutes(deps)

	s.http = &http.Server{
		Addr:              deps.Config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       deps.Config.ReadTimeout,
		WriteTimeout:      deps.Config.WriteTimeout,
	}
	return s
}

// registerMiddleware registers middleware shared by every route.
func (s *Server) registerMiddleware() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
}

// registerRoutes registers all handlers.
func (s *Server) registerRoutes(deps *Dependencies) {
	accounts := handler.NewAccountHandler(deps.Accounts)
	leaderboard := handler.NewLeaderboardHandler(deps.Leaderboard)
	live := handler.NewRealtimeHandler(deps.Hub)

	s.router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// Webhooks are authenticated by signature, not by user token. Every
	// delivery comes from the provider's addresses, so no per-IP limit.
	hooks := s.router.PathPrefix("/api/webhooks").Subrouter()
	hooks.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	hooks.HandleFunc("/whop", s.payments.HandleWebhook).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.Use(auth.Middleware(deps.Verifier))

	api.HandleFunc("/me", accounts.HandleMe).Methods(http.MethodGet)
	api.HandleFunc("/me", accounts.HandleRename).Methods(http.MethodPut)
	api.HandleFunc("/lives", accounts.HandleGetLives).Methods(http.MethodGet)
	api.HandleFunc("/lives", accounts.HandleSetLives).Methods(http.MethodPut)
	api.HandleFunc("/lives/consume", accounts.HandleConsumeLife).Methods(http.MethodPost)
	api.HandleFunc("/hearts", accounts.HandleAddHearts).Methods(http.MethodPost)
	api.HandleFunc("/hearts/catalog", s.payments.HandleCatalog).Methods(http.MethodGet)
	api.HandleFunc("/scores", accounts.HandleSaveScore).Methods(http.MethodPost)
	api.HandleFunc("/scores/best", accounts.HandleBestScore).Methods(http.MethodGet)
	api.HandleFunc("/stats/spending", accounts.HandleSpending).Methods(http.MethodGet)

	api.HandleFunc("/leaderboard", leaderboard.HandleLeaderboard).Methods(http.MethodGet)
	api.HandleFunc("/stats/top-spender", leaderboard.HandleTopSpender).Methods(http.MethodGet)

	api.HandleFunc("/realtime", live.HandleSubscribe).Methods(http.MethodGet)

	checkout := api.PathPrefix("/checkout").Subrouter()
	checkout.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	checkout.Use(s.limiter.Middleware)
	checkout.HandleFunc("", s.payments.HandleCheckout).Methods(http.MethodPost)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	handler.WriteMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("Health check failed")
			handler.WriteMessage(w, http.StatusServiceUnavailable, "degraded")
			return
		}
	}
	handler.WriteMessage(w, http.StatusOK, "ok")
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully and waits
// for in-flight webhook processing.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http.BaseContext = func(net.Listener) context.Context { return ctx }

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return s.limiter.RunPruner(gctx, time.Minute)
	})

	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		log.Info().Msg("Shutting down HTTP server...")
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		if err := s.payments.Wait(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Webhook processing did not finish before shutdown")
		}
		return nil
	})

	return g.Wait()
}
