package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/exposurehub/exposure-search/internal/cache"
	"github.com/exposurehub/exposure-search/internal/config"
	"github.com/exposurehub/exposure-search/internal/engine"
	"github.com/exposurehub/exposure-search/internal/monitor"
	"github.com/exposurehub/exposure-search/internal/orchestrator"
	"github.com/exposurehub/exposure-search/internal/repo"
	"github.com/exposurehub/exposure-search/internal/scoring"
	"github.com/exposurehub/exposure-search/internal/services"
	"github.com/exposurehub/exposure-search/internal/sources"
	"github.com/exposurehub/exposure-search/internal/utils"
)

// app holds the wired object graph shared by every subcommand.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	cache        cache.Provider
	docs         *repo.DocumentStore
	index        *repo.IndexStore
	registry     *sources.Registry
	monitor      *monitor.Monitor
	orchestrator *orchestrator.Orchestrator
	service      *services.SearchService
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON), nil
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, cache: newCache(cfg.Cache, logger)}

	scorer, err := scoring.LoadScorer(cfg.Rules.Path, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load severity rules: %w", err)
	}

	a.docs, err = repo.OpenDocumentStore(cfg.Documents.Path, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open document store: %w", err)
	}

	a.index = repo.NewIndexStore(cfg.Index.Endpoint, cfg.Index.APIKey, cfg.Index.ClassPrefix, cfg.Index.Timeout, a.cache, cfg.Index.SchemaTTL)
	queryEngine := engine.NewQueryEngine(a.index, a.docs, scorer, engine.Config{
		ClassPrefix:       cfg.Index.ClassPrefix,
		DefaultMonthsBack: cfg.Search.DefaultMonthsBack,
	}, logger)

	a.registry, err = sources.Build(cfg.Sources, sources.Dependencies{
		Engine: queryEngine,
		Cache:  a.cache,
		Scorer: scorer,
		Logger: logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build sources: %w", err)
	}

	a.monitor = monitor.New(a.registry, monitor.Config{
		ProbeInterval: cfg.Monitor.ProbeInterval,
		WindowSize:    cfg.Monitor.WindowSize,
	}, logger)
	a.orchestrator = orchestrator.New(a.registry, a.monitor, orchestrator.Config{
		PerSourceTimeout: cfg.Search.PerSourceTimeout,
		GlobalTimeout:    cfg.Search.GlobalTimeout,
		Workers:          cfg.Search.FanOutWorkers,
	}, logger)
	a.service = services.NewSearchService(logger, a.orchestrator, a.monitor)

	for _, src := range a.registry.All() {
		logger.Debug("source registered",
			slog.String("source", src.Name()),
			slog.Bool("enabled", src.Enabled()),
			slog.Int("priority", src.Priority()),
		)
	}
	return a, nil
}

// newCache picks Valkey when an address is configured, otherwise an
// in-memory cache, or none when caching is disabled.
func newCache(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	if cfg.Addr == "" {
		return cache.NewMemoryProvider()
	}
	provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
		KeyPrefix:    cfg.KeyPrefix,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable, using in-memory cache", slog.Any("error", err))
		return cache.NewMemoryProvider()
	}
	return provider
}

// checkIndex logs whether the partition index is reachable.
func (a *app) checkIndex(ctx context.Context) {
	if a.cfg.Index.Endpoint == "" {
		a.logger.Info("index endpoint not configured, internal searches use the document store")
		return
	}
	if err := a.index.Ready(ctx); err != nil {
		a.logger.Warn("index not ready", slog.String("endpoint", a.cfg.Index.Endpoint), slog.Any("error", err))
	}
}

func (a *app) close() {
	if a.docs != nil {
		if err := a.docs.Close(); err != nil {
			a.logger.Warn("close document store", slog.Any("error", err))
		}
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}
