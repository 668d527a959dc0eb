package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"unigate/native/gateway"
	"unigate/observability/metrics"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	RateLimit     RateLimit
	TLS           TLSConfig
}

// TLSConfig describes TLS settings for the listener.
type TLSConfig struct {
	Disabled bool
	CertFile string
	KeyFile  string
	Config   *tls.Config
}

// Server hosts the gateway admission, settlement and admin endpoints.
type Server struct {
	cfg     Config
	engine  *gateway.Engine
	ledger  *gateway.SettlementLedger
	auth    *Authenticator
	logger  *slog.Logger
	limiter *clientLimiter
	metrics *metrics.GatewayMetrics
}

// New constructs a new HTTP server over the admission engine and ledger.
func New(cfg Config, engine *gateway.Engine, ledger *gateway.SettlementLedger, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("gateway engine required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("settlement ledger required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		ledger:  ledger,
		auth:    auth,
		logger:  logger,
		limiter: newClientLimiter(cfg.RateLimit),
		metrics: metrics.Gateway(),
	}, nil
}

// Handler builds the route tree. Public routes are client rate limited; the
// settlement and admin surfaces require their roles.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Method(http.MethodPost, "/v1/transactions", s.wrap("gatewayd.transactions", s.handleSendTransaction))
		r.Method(http.MethodPost, "/v1/funds", s.wrap("gatewayd.funds", s.handleAddFunds))
		r.Method(http.MethodGet, "/v1/limits/{token}", s.wrap("gatewayd.limits", s.handleLimits))
		r.Method(http.MethodGet, "/v1/caps", s.wrap("gatewayd.caps", s.handleCaps))
		r.Method(http.MethodGet, "/v1/price", s.wrap("gatewayd.price", s.handlePrice))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Require(RoleCustodian))
		r.Method(http.MethodPost, "/v1/settlements/funds", s.wrap("gatewayd.settle_funds", s.handleSettleFunds))
		r.Method(http.MethodPost, "/v1/settlements/execute", s.wrap("gatewayd.settle_execute", s.handleSettleAndExecute))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Require(RoleAdmin))
		r.Method(http.MethodPost, "/v1/admin/caps", s.wrap("gatewayd.admin_caps", s.handleSetCaps))
		r.Method(http.MethodPost, "/v1/admin/block-cap", s.wrap("gatewayd.admin_block_cap", s.handleSetBlockCap))
		r.Method(http.MethodPost, "/v1/admin/epoch", s.wrap("gatewayd.admin_epoch", s.handleSetEpoch))
		r.Method(http.MethodPost, "/v1/admin/thresholds", s.wrap("gatewayd.admin_thresholds", s.handleSetThresholds))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Require(RoleAdmin, RolePauser))
		r.Method(http.MethodPost, "/v1/admin/pause", s.wrap("gatewayd.admin_pause", s.handlePause))
		r.Method(http.MethodPost, "/v1/admin/unpause", s.wrap("gatewayd.admin_unpause", s.handleUnpause))
	})

	return r
}

func (s *Server) wrap(name string, handler http.HandlerFunc) http.Handler {
	return otelhttp.NewHandler(handler, name)
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		TLSConfig:         s.cfg.TLS.Config,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", s.cfg.ListenAddress)
	var err error
	if s.cfg.TLS.Disabled {
		err = srv.ListenAndServe()
	} else {
		err = srv.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}
