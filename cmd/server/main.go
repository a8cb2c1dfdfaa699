package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/payment-switch/internal/adapters/cryptogw"
	"github.com/kevin07696/payment-switch/internal/adapters/issuerhttp"
	"github.com/kevin07696/payment-switch/internal/adapters/memory"
	"github.com/kevin07696/payment-switch/internal/adapters/postgres"
	"github.com/kevin07696/payment-switch/internal/api/rest"
	"github.com/kevin07696/payment-switch/internal/config"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/internal/services/cryptorail"
	"github.com/kevin07696/payment-switch/internal/services/pccswitch"
	"github.com/kevin07696/payment-switch/internal/services/psp"
	"github.com/kevin07696/payment-switch/pkg/logging"
	"github.com/kevin07696/payment-switch/pkg/observability"
	"github.com/kevin07696/payment-switch/pkg/resilience"
	"github.com/kevin07696/payment-switch/pkg/timeutil"
)

func main() {
	configPath := flag.String("config", "", "path to the application config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	zapLogger, err := buildZapLogger(cfg.Logger)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer zapLogger.Sync() //nolint:errcheck

	logger := logging.NewZapLogger(zapLogger)
	logger.Info("starting payment switch",
		ports.String("application", cfg.Application))

	routes, err := cfg.RouteTable()
	if err != nil {
		zapLogger.Fatal("invalid issuer routes", zap.Error(err))
	}
	logger.Info("issuer routing table loaded", ports.Int("routes", routes.Len()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger and invoice store: Postgres when enabled, in-memory otherwise
	var (
		ledger       ports.Ledger
		invoices     ports.InvoiceStore
		ledgerHealth observability.HealthCheck
	)
	if cfg.Database.Enabled {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			zapLogger.Fatal("invalid database url", zap.Error(err))
		}
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.MinConns = cfg.Database.MinConns
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			zapLogger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		pgLedger := postgres.NewLedger(pool)
		ledger = pgLedger
		invoices = postgres.NewInvoiceStore(pool)
		ledgerHealth = pgLedger.Ping
		logger.Info("using postgres ledger")
	} else {
		ledger = memory.NewLedger()
		invoices = memory.NewInvoiceStore()
		logger.Info("using in-memory ledger")
	}

	// Issuer gateway with a per-endpoint circuit breaker
	issuerGateway := issuerhttp.NewBreakerGateway(
		issuerhttp.NewAdapterWithDefaults(logger),
		issuerhttp.DefaultCircuitBreakerConfig(),
		logger,
	)

	timeouts := resilience.DefaultTimeoutConfig()
	timeouts.SingleAttempt = cfg.Switch.ForwardTimeout()

	switchService := pccswitch.NewService(ledger, issuerGateway, routes, pccswitch.Config{
		Timeouts:   timeouts,
		MaxRetries: cfg.Switch.MaxRetries,
		Backoff: &resilience.ExponentialBackoff{
			BaseDelay:  time.Duration(cfg.Switch.BackoffBaseMS) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.Switch.BackoffMaxMS) * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     0.1,
		},
	}, logger)

	cryptoGateway := cryptogw.NewAdapterWithDefaults(cryptogw.AuthConfig{
		APIKey:    cfg.CryptoGateway.APIKey,
		APISecret: cfg.CryptoGateway.APISecret,
	}, cfg.CryptoGateway.BaseURL, logger)

	cryptoService := cryptorail.NewService(ledger, invoices, cryptoGateway, cryptorail.Config{
		CallbackURL:      cfg.CryptoGateway.CallbackURL,
		InvoiceTTL:       cfg.CryptoGateway.InvoiceTTL(),
		StatusMaxRetries: cfg.CryptoGateway.StatusMaxRetries,
		Backoff:          resilience.StatusPollBackoff(),
	}, timeutil.SystemClock{}, logger)

	pspService := psp.NewService(ledger, invoices, switchService, cryptoService, timeutil.SystemClock{}, logger)

	// Background invoice reconciliation
	poller := cryptorail.NewPoller(cryptoService, ledger, cfg.CryptoGateway.PollInterval(), 100, logger)
	go poller.Run(ctx)

	metricsServer := observability.StartMetricsServer(cfg.Server.MetricsAddr, ledgerHealth)
	logger.Info("metrics server listening", ports.String("addr", cfg.Server.MetricsAddr))

	handler := rest.NewHandler(pspService, cryptoService, cfg.CryptoGateway.APISecret, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: timeouts.HTTPHandler,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		logger.Info("http server listening", ports.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", ports.String("signal", sig.String()))

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", ports.Err(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("metrics server shutdown failed", ports.Err(err))
	}
	logger.Info("shutdown complete")
}

// buildZapLogger constructs the zap logger from configuration
func buildZapLogger(cfg config.Logger) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
