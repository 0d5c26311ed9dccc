// Package main is the entry point for the Butterfly broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/butterflysys/butterfly/internal/audit"
	"github.com/butterflysys/butterfly/internal/cache"
	"github.com/butterflysys/butterfly/internal/config"
	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/policy"
	"github.com/butterflysys/butterfly/internal/resolver"
	"github.com/butterflysys/butterfly/internal/resource"
	"github.com/butterflysys/butterfly/internal/secrets"
	"github.com/butterflysys/butterfly/internal/server"
	"github.com/butterflysys/butterfly/internal/storage"
)

// Version information (set at build time).
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", getEnvOrDefault("BUTTERFLY_CONFIG_PATH", "configs/broker.yaml"),
		"Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("butterfly version %s (%s)\n", version, gitCommit)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("broker exited with error", observability.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.BrokerConfig, logger observability.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	auditMetrics := audit.NewMetrics("butterfly")
	auditMetrics.MustRegister(registry)
	policyMetrics := policy.NewMetrics("butterfly")
	policyMetrics.MustRegister(registry)
	cacheMetrics := cache.NewMetrics("butterfly")
	cacheMetrics.MustRegister(registry)
	resolverMetrics := resolver.NewMetrics("butterfly")
	resolverMetrics.MustRegister(registry)

	provider, err := buildSecretsProvider(cfg)
	if err != nil {
		return err
	}
	if provider != nil {
		defer func() { _ = provider.Close() }()
	}

	signingKey, err := cfg.Token.SigningKey()
	if err != nil {
		return err
	}

	opts := []resolver.Option{
		resolver.WithLogger(logger),
		resolver.WithMetrics(resolverMetrics),
		resolver.WithEvaluator(policy.NewEvaluator(
			policy.WithLogger(logger),
			policy.WithMetrics(policyMetrics),
		)),
		resolver.WithAuditLogger(audit.NewLogger(store,
			audit.WithLogger(logger),
			audit.WithMetrics(auditMetrics),
		)),
		resolver.WithCacheTTL(cfg.Cache.TTL.D()),
		resolver.WithCacheMetrics(cacheMetrics),
		resolver.WithTokenLifetime(cfg.Token.Lifetime.D()),
	}
	if len(signingKey) > 0 {
		opts = append(opts, resolver.WithSigningKey(signingKey))
	}
	if provider != nil {
		opts = append(opts, resolver.WithSecretsProvider(provider))
	}

	res, err := resolver.New(store, opts...)
	if err != nil {
		return fmt.Errorf("create resolver: %w", err)
	}
	defer func() { _ = res.Close() }()

	var watcher *config.Watcher
	if cfg.DefinitionsFile != "" {
		if err := seedDefinitions(ctx, res, cfg.DefinitionsFile); err != nil {
			return err
		}

		watcher, err = config.NewWatcher(cfg.DefinitionsFile,
			func(defs []*resource.Definition) {
				registerAll(context.Background(), res, defs, logger)
			},
			config.WithWatcherLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("watch definitions: %w", err)
		}
		defer func() { _ = watcher.Close() }()
	}

	srv := server.New(server.Config{
		Listen:    cfg.Listen,
		JWTSecret: cfg.Auth.JWTSecret,
		RateRPS:   cfg.RateLimit.RPS,
		RateBurst: cfg.RateLimit.Burst,
	}, res,
		server.WithLogger(logger),
		server.WithMetricsRegistry(registry),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("broker started",
		observability.String("version", version),
		observability.String("listen", cfg.Listen),
		observability.String("store", cfg.Store.Backend),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// buildStore constructs the configured definition store.
func buildStore(cfg *config.BrokerConfig, logger observability.Logger) (storage.Store, error) {
	var store storage.Store
	switch cfg.Store.Backend {
	case config.StoreMemory:
		store = storage.NewMemoryStore(storage.WithMemoryLogger(logger))
	case config.StoreRedis:
		store = storage.NewRedisStore(cfg.Store.Redis.ToStorage(), storage.WithRedisLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if cfg.Store.Breaker {
		store = storage.NewBreakerStore(store, storage.BreakerConfig{Name: cfg.Store.Backend},
			storage.WithBreakerLogger(logger))
	}
	return store, nil
}

// buildSecretsProvider constructs the configured credential provider.
func buildSecretsProvider(cfg *config.BrokerConfig) (secrets.Provider, error) {
	switch cfg.Secrets.Provider {
	case config.SecretsNone:
		return nil, nil
	case config.SecretsLocal:
		key, err := cfg.Secrets.LocalKey()
		if err != nil {
			return nil, err
		}
		return secrets.NewLocalProvider(key)
	case config.SecretsEnv:
		return secrets.NewEnvProvider(cfg.Secrets.EnvPrefix), nil
	case config.SecretsVault:
		return secrets.NewVaultProvider(cfg.Secrets.Vault)
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Secrets.Provider)
	}
}

// seedDefinitions registers the startup catalog.
func seedDefinitions(ctx context.Context, res resolver.Resolver, path string) error {
	defs, err := config.LoadDefinitions(path)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := res.RegisterConnection(ctx, def); err != nil {
			return fmt.Errorf("register %q: %w", def.Name, err)
		}
	}
	return nil
}

// registerAll re-registers a reloaded catalog, keeping going past
// individual failures.
func registerAll(ctx context.Context, res resolver.Resolver, defs []*resource.Definition, logger observability.Logger) {
	for _, def := range defs {
		if err := res.RegisterConnection(ctx, def); err != nil {
			logger.Error("definition re-registration failed",
				observability.String("resource", def.Name),
				observability.Error(err),
			)
		}
	}
}

// getEnvOrDefault returns the environment value or a fallback.
func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
