package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	coreconfig "unigate/config"
	"unigate/core/state"
	"unigate/native/gateway"
	"unigate/observability/logging"
	telemetry "unigate/observability/otel"
	"unigate/services/gatewayd/config"
	"unigate/services/gatewayd/server"
	"unigate/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/gatewayd/config.yaml", "path to gatewayd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("UNIGATE_ENV"))
	logger := logging.Setup("gatewayd", env)

	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "gatewayd",
		Environment: env,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("gatewayd: load config: %v", err)
	}

	var db storage.Database
	if strings.EqualFold(strings.TrimSpace(cfg.DatabasePath), "memory") {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("gatewayd: open database: %v", err)
		}
		db = leveldb
	}
	defer db.Close()

	store := state.NewManager(db)

	price, ok := new(big.Int).SetString(strings.TrimSpace(cfg.Oracle.Price), 10)
	if !ok || price.Sign() <= 0 {
		log.Fatalf("gatewayd: invalid oracle price %q", cfg.Oracle.Price)
	}
	oracle := gateway.NewStaticOracle(gateway.PriceQuote{
		Price:     price,
		Decimals:  cfg.Oracle.Decimals,
		UpdatedAt: time.Now().UTC(),
	})

	vault := gateway.NewVault(store)
	engine := gateway.NewEngine(store, oracle, vault)
	engine.SetMaxQuoteAge(cfg.Oracle.MaxAge.Duration)
	ledger := gateway.NewSettlementLedger(store, vault)

	coreCfg, err := coreconfig.Load(cfg.ParamsPath)
	if err != nil {
		log.Fatalf("gatewayd: load gateway params: %v", err)
	}
	params, err := coreCfg.Gateway.Parameters()
	if err != nil {
		log.Fatalf("gatewayd: parse gateway params: %v", err)
	}
	if err := engine.Params().Apply(params); err != nil {
		log.Fatalf("gatewayd: apply gateway params: %v", err)
	}

	authenticator, err := server.NewAuthenticator(server.AuthConfig{
		AdminToken:     cfg.Auth.AdminToken,
		PauserToken:    cfg.Auth.PauserToken,
		CustodianToken: cfg.Auth.CustodianToken,
		AllowMTLS:      cfg.Auth.AllowMTLS,
	})
	if err != nil {
		log.Fatalf("gatewayd: configure auth: %v", err)
	}

	var tlsConfig *tls.Config
	if !cfg.TLS.Disabled {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.Auth.AllowMTLS {
			caData, err := os.ReadFile(cfg.TLS.ClientCA)
			if err != nil {
				log.Fatalf("gatewayd: load client CA: %v", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caData) {
				log.Fatalf("gatewayd: parse client CA: %s", cfg.TLS.ClientCA)
			}
			tlsConfig.ClientCAs = pool
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		TLS: server.TLSConfig{
			Disabled: cfg.TLS.Disabled,
			CertFile: cfg.TLS.CertPath,
			KeyFile:  cfg.TLS.KeyPath,
			Config:   tlsConfig,
		},
	}, engine, ledger, authenticator, logger)
	if err != nil {
		log.Fatalf("gatewayd: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}
