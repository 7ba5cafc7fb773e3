package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mstgnz/paygate/handler"
	"github.com/mstgnz/paygate/infra/auth"
	"github.com/mstgnz/paygate/infra/config"
	"github.com/mstgnz/paygate/infra/conn"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/middle"
	"github.com/mstgnz/paygate/infra/opensearch"
	"github.com/mstgnz/paygate/infra/postgres"
	"github.com/mstgnz/paygate/infra/redis"
	"github.com/mstgnz/paygate/infra/storage"
	"github.com/mstgnz/paygate/provider"
	_ "github.com/mstgnz/paygate/provider/iyzico"
	_ "github.com/mstgnz/paygate/provider/stripe"
	"github.com/mstgnz/paygate/router"
	v1 "github.com/mstgnz/paygate/router/v1"
	"github.com/zoobzio/clockz"
)

func init() {
	config.LoadEnv(".env")
}

func main() {
	cfg := config.GetAppConfig()
	if err := cfg.Validate(config.App().Validator); err != nil {
		logger.Fatal("Invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// OpenSearch backs both the system log sink and the transaction index
	var indexer *opensearch.Indexer
	if cfg.OpenSearchURL != "" {
		client, err := opensearch.NewClient(cfg)
		if err != nil {
			logger.Warn("OpenSearch unavailable, continuing without it", logger.LogContext{
				Fields: map[string]any{"error": err.Error()},
			})
		} else {
			indexer = opensearch.NewIndexer(client)
		}
	}
	if indexer != nil && cfg.EnableLogging {
		logger.InitGlobalLogger(indexer)
	} else {
		logger.InitGlobalLogger(nil)
	}

	registry, intervals := buildRegistry()

	prober := provider.NewProber(registry, provider.ProberConfig{
		Interval:   cfg.ProbeInterval,
		Timeout:    cfg.ProbeTimeout,
		MaxBackoff: cfg.ProbeMaxBackoff,
		Intervals:  intervals,
	})

	startupCtx, cancelStartup := context.WithTimeout(ctx, cfg.StartupProbeTimeout)
	if err := prober.ProbeAll(startupCtx); err != nil {
		logger.Warn("Startup probe did not finish", logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
	}
	cancelStartup()

	go func() {
		if err := prober.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Prober stopped", err)
		}
	}()

	stores, reader, closeStores := buildStores(ctx, cfg, indexer)
	defer closeStores()

	opts := []provider.ManagerOption{provider.WithProber(prober)}
	if stores.Len() > 0 {
		opts = append(opts, provider.WithTransactionStore(stores))
	}
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, idempotency stays local to this instance", logger.LogContext{
				Fields: map[string]any{"error": err.Error()},
			})
		} else {
			defer client.Close()
			opts = append(opts,
				provider.WithResultStore(redis.NewResultStore(client)),
				provider.WithKeyLocker(redis.NewLocker(client, redis.LockerConfig{
					Expiry: cfg.ChargeTimeout*time.Duration(max(registry.Len(), 1)) + 30*time.Second,
				})),
			)
		}
	}

	manager := provider.NewManager(registry, provider.ManagerConfig{
		CallTimeout: cfg.ChargeTimeout,
		MaxAttempts: cfg.MaxChargeAttempts,
		ResultTTL:   cfg.IdempotencyTTL,
	}, opts...)

	var jwtService *auth.JWTService
	verifiers := []auth.Verifier{auth.NewAPIKeyVerifier(cfg.APIKey)}
	if cfg.JWTSecret != "" {
		jwtService = auth.NewJWTService(cfg.JWTSecret, 0)
		verifiers = append(verifiers, jwtService)
	}

	var limiter *middle.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = middle.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute, clockz.RealClock)
		go limiter.Run(ctx)
	}

	handlers := v1.Handlers{
		Gateways: handler.NewGatewayHandler(manager),
		Payments: handler.NewPaymentHandler(manager, reader),
	}
	if jwtService != nil {
		handlers.Auth = handler.NewAuthHandler(jwtService)
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.Port),
		Handler: router.New(router.Options{
			CORSOrigins:    cfg.CORSOrigins,
			RequestTimeout: cfg.ChargeTimeout + 5*time.Second,
			Verifier:       auth.NewChainVerifier(verifiers...),
			RateLimiter:    limiter,
			Health:         handler.NewHealthHandler(manager, cfg.Environment),
			V1:             handlers,
		}),
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{
		Fields: map[string]any{"port": cfg.Port, "gateways": registry.Len()},
	})

	<-ctx.Done()

	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}

// buildRegistry constructs every configured gateway. A gateway that fails to
// build is logged and skipped so one bad credential set does not take the
// service down.
func buildRegistry() (*provider.Registry, map[string]time.Duration) {
	registry := provider.NewRegistry()
	intervals := make(map[string]time.Duration)

	gateways, err := config.LoadGatewayConfigs(config.App().Validator)
	if err != nil {
		logger.Fatal("Invalid gateway configuration", err)
	}

	for _, gc := range gateways {
		gw, err := provider.NewGateway(gc.Kind, provider.GatewaySettings{
			Descriptor: provider.GatewayDescriptor{
				Name:                gc.Name,
				DisplayPriority:     gc.Priority,
				SupportedCurrencies: gc.Currencies,
				SupportedMethods:    gc.Methods,
				Enabled:             gc.Enabled,
			},
			Environment: gc.Environment,
			Credentials: gc.Credentials,
		})
		if err != nil {
			logger.Error("Failed to build gateway", err, logger.LogContext{Provider: gc.Name})
			continue
		}
		if err := registry.Register(gw); err != nil {
			logger.Error("Failed to register gateway", err, logger.LogContext{Provider: gc.Name})
			continue
		}
		if gc.ProbeInterval > 0 {
			intervals[gc.Name] = gc.ProbeInterval
		}
	}

	if registry.Len() == 0 {
		logger.Warn("No gateways registered, every charge will be rejected")
	}

	return registry, intervals
}

// buildStores wires the configured persistence backends. The first
// relational store found also serves transaction lookups.
func buildStores(ctx context.Context, cfg *config.AppConfig, indexer *opensearch.Indexer) (*storage.MultiStore, handler.TransactionReader, func()) {
	stores := storage.NewMultiStore()
	var reader handler.TransactionReader
	var closers []func()

	if cfg.SQLitePath != "" {
		sqlite, err := storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("Failed to open SQLite store", err)
		}
		stores.Add("sqlite", sqlite)
		reader = sqlite
		closers = append(closers, func() { _ = sqlite.Close() })
	}

	if cfg.DatabaseURL != "" {
		pool, err := conn.Connect(ctx, cfg.DatabaseURL, conn.ConnectConfig{})
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", err)
		}
		pg := postgres.NewTransactionStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare PostgreSQL schema", err)
		}
		stores.Add("postgres", pg)
		if reader == nil {
			reader = pg
		}
		closers = append(closers, pool.Close)
	}

	if indexer != nil && indexer.IsEnabled() {
		stores.Add("opensearch", storage.NewOpenSearchStore(indexer))
	}

	return stores, reader, func() {
		for _, c := range closers {
			c()
		}
	}
}
