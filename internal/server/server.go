package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oddslab/arbscan/internal/server/handler"
	"github.com/oddslab/arbscan/internal/server/middleware"
	"github.com/oddslab/arbscan/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per minute per client; 0 disables limiting
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Arb      *handler.ArbitrageHandler
	Risk     *handler.RiskHandler
	Strategy *handler.StrategyHandler
}

// Server is the headless HTTP + WebSocket API for the arbitrage scanner.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and metrics scrape (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Combined service status.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Arbitrage endpoints.
	mux.HandleFunc("GET /api/arbitrage/opportunities", handlers.Arb.ListOpportunities)
	mux.HandleFunc("GET /api/arbitrage/opportunities/{id}", handlers.Arb.GetOpportunity)
	mux.HandleFunc("GET /api/arbitrage/signals", handlers.Arb.ListSignals)
	mux.HandleFunc("GET /api/arbitrage/alerts", handlers.Arb.ListAlerts)
	mux.HandleFunc("POST /api/arbitrage/alerts/{id}/acknowledge", handlers.Arb.AcknowledgeAlert)
	mux.HandleFunc("GET /api/arbitrage/analyze/{id}", handlers.Arb.Analyze)

	// Risk endpoints.
	mux.HandleFunc("GET /api/risk/circuit-breaker", handlers.Risk.GetCircuitBreaker)
	mux.HandleFunc("POST /api/risk/circuit-breaker/reset", handlers.Risk.ResetCircuitBreaker)
	mux.HandleFunc("POST /api/risk/circuit-breaker/trip", handlers.Risk.TripCircuitBreaker)
	mux.HandleFunc("GET /api/risk/positions", handlers.Risk.ListPositions)

	// Strategy settings endpoints.
	mux.HandleFunc("GET /api/strategies", handlers.Strategy.ListStrategies)
	mux.HandleFunc("PUT /api/strategies/{name}", handlers.Strategy.UpdateStrategy)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty). The health check and
	// the metrics scrape stay reachable without credentials.
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)

	// Apply per-client rate limiting when configured, so rejected requests
	// still show up in the request log.
	if cfg.RateLimit > 0 {
		h = middleware.RateLimit(middleware.NewLimiter(cfg.RateLimit, time.Minute))(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
