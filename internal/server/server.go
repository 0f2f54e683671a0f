// Package server exposes the onboarding and order operations over HTTP, with
// progress streamed over a WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/polyonboard/internal/domain"
	"github.com/alanyoungcy/polyonboard/internal/server/handler"
	"github.com/alanyoungcy/polyonboard/internal/server/middleware"
	"github.com/alanyoungcy/polyonboard/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is requests per RateWindow per client IP; 0 disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Audit and Receipts may be nil when their backing stores are not configured.
type Handlers struct {
	Health      *handler.HealthHandler
	Wallet      *handler.WalletHandler
	Approvals   *handler.ApprovalHandler
	Credentials *handler.CredentialHandler
	Orders      *handler.OrderHandler
	Balances    *handler.BalanceHandler
	Onboard     *handler.OnboardHandler
	Audit       *handler.AuditHandler
	Receipts    *handler.ReceiptHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with every route registered and the middleware
// chain applied. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	Routes(mux, handlers, wsHub)

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	// Operations block until the relayer settles, which can take several
	// poll intervals, hence the long write timeout.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Routes registers every endpoint on mux.
func Routes(mux *http.ServeMux, h Handlers, wsHub *ws.Hub) {
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/status", h.Onboard.GetStatus)
	mux.HandleFunc("POST /api/onboard", h.Onboard.Onboard)

	mux.HandleFunc("GET /api/wallet", h.Wallet.GetWallet)
	mux.HandleFunc("POST /api/wallet/deploy", h.Wallet.Deploy)

	mux.HandleFunc("GET /api/approvals", h.Approvals.GetApprovals)
	mux.HandleFunc("POST /api/approvals", h.Approvals.ApproveAll)

	mux.HandleFunc("POST /api/credentials/derive", h.Credentials.Derive)
	mux.HandleFunc("POST /api/credentials/reset", h.Credentials.Reset)

	mux.HandleFunc("POST /api/orders", h.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/balances", h.Balances.GetBalances)

	if h.Audit != nil {
		mux.HandleFunc("GET /api/audit", h.Audit.ListAudit)
	}
	if h.Receipts != nil {
		mux.HandleFunc("GET /api/receipts", h.Receipts.ListReceipts)
		mux.HandleFunc("GET /api/receipts/{kind}/{date}/{id}", h.Receipts.GetReceipt)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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
