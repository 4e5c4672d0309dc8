package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supplierd/internal/cache"
	"github.com/fyrsmithlabs/supplierd/internal/config"
	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/extraction"
	"github.com/fyrsmithlabs/supplierd/internal/ignore"
	"github.com/fyrsmithlabs/supplierd/internal/pipeline"
	"github.com/fyrsmithlabs/supplierd/internal/search"
	"github.com/fyrsmithlabs/supplierd/internal/services"
	"github.com/fyrsmithlabs/supplierd/internal/store"
)

// dependencies holds infrastructure built from configuration.
type dependencies struct {
	store      *store.Store
	audit      *store.ExtractionLog
	cache      cache.Cache
	ignoreList *ignore.Policy
	searcher   search.Searcher
	extractor  extraction.Extractor
	logger     *zap.Logger
}

// Close releases the database.
func (d *dependencies) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("failed to close store", zap.Error(err))
		}
	}
}

// initDependencies opens storage and builds the pluggable components.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	st, err := openStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	logger.Info("storage opened", zap.String("path", cfg.Storage.Path))

	deps := &dependencies{
		store:      st,
		audit:      store.NewExtractionLog(st, time.Now),
		cache:      newCache(cfg.Cache, st),
		ignoreList: ignore.NewPolicy(cfg.Ignore.File, logger.Named("ignore")),
		logger:     logger,
	}
	logger.Info("ignore list loaded",
		zap.String("path", deps.ignoreList.Path()),
		zap.Int("entries", deps.ignoreList.Len()))

	if deps.searcher, err = newSearcher(cfg.Search, logger.Named("search")); err != nil {
		deps.Close()
		return nil, err
	}
	if deps.extractor, err = newExtractor(cfg.Extraction, logger.Named("extraction")); err != nil {
		deps.Close()
		return nil, err
	}

	return deps, nil
}

func openStore(path string) (*store.Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open storage %s: %w", path, err)
	}
	return st, nil
}

// newCache builds the configured cache backend with Prometheus metrics.
func newCache(cfg config.CacheConfig, st *store.Store) cache.Cache {
	var backend cache.Cache
	switch cfg.Backend {
	case config.CacheMemory:
		var opts []cache.MemoryOption
		if cfg.MaxEntries > 0 {
			opts = append(opts, cache.WithMaxEntries(cfg.MaxEntries))
		}
		backend = cache.NewMemory(cfg.TTL.Duration(), opts...)
	default:
		backend = store.NewCacheStore(st, cfg.TTL.Duration(), time.Now)
	}
	return cache.Instrument(backend, cfg.Backend, cache.NewMetrics())
}

func newSearcher(cfg config.SearchConfig, logger *zap.Logger) (search.Searcher, error) {
	switch cfg.Provider {
	case config.SearchGoogle:
		return search.NewGoogleSearcher(search.GoogleConfig{
			APIKey:    cfg.APIKey.Value(),
			EngineID:  cfg.EngineID,
			BaseURL:   cfg.BaseURL,
			Timeout:   cfg.Timeout.Duration(),
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
		}, logger)
	case config.SearchStatic:
		return search.LoadStaticSearcher(cfg.FixturesFile)
	default:
		logger.Warn("web search disabled; extractions will return no suppliers")
		return search.Disabled{}, nil
	}
}

func newExtractor(cfg config.ExtractionConfig, logger *zap.Logger) (extraction.Extractor, error) {
	return extraction.NewExtractor(extraction.Config{
		Provider:      cfg.Provider,
		MinConfidence: cfg.MinConfidence,
		LLM: extraction.LLMConfig{
			Model:   cfg.LLMModel,
			APIKey:  cfg.LLMAPIKey.Value(),
			BaseURL: cfg.LLMBaseURL,
			Timeout: cfg.LLMTimeout.Duration(),
		},
	}, logger)
}

// initServices wires the pipeline over deps.
func initServices(cfg *config.Config, deps *dependencies, logger *zap.Logger) (services.Registry, error) {
	engine := dedup.NewEngine(deps.ignoreList, dedup.NewMerger(cfg.Dedup.SimilarityThreshold), logger.Named("dedup"))

	svc, err := pipeline.NewService(pipeline.Options{
		Searcher:  deps.searcher,
		Extractor: deps.extractor,
		Engine:    engine,
		Cache:     deps.cache,
		Audit:     deps.audit,
		Logger:    logger.Named("pipeline"),
	})
	if err != nil {
		return nil, err
	}

	return services.NewRegistry(services.Options{
		Pipeline:   svc,
		IgnoreList: deps.ignoreList,
		Store:      deps.store,
	}), nil
}
