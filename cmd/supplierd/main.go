// Supplierd serves supplier extraction and deduplication over HTTP.
//
// It searches the web for a company's suppliers, extracts supplier mentions
// from the results, and merges fuzzy duplicates into one record per
// supplier. Results are cached and every uncached extraction is recorded in
// a SQLite audit log.
//
// Configuration comes from ~/.config/supplierd/config.yaml (or --config)
// overridden by environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	supplierd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 SEARCH_API_KEY=... SEARCH_ENGINE_ID=... supplierd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supplierd/internal/config"
	httpserver "github.com/fyrsmithlabs/supplierd/internal/http"
	"github.com/fyrsmithlabs/supplierd/internal/logging"
	"github.com/fyrsmithlabs/supplierd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/supplierd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  supplierd [--config path]   Start the supplierd server\n")
			fmt.Fprintf(os.Stderr, "  supplierd version           Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("supplierd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts supplierd and blocks until ctx is cancelled or the server
// fails. It:
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Opens storage and builds the cache, ignore list, searcher and extractor
//  4. Wires the pipeline and HTTP server
//  5. Shuts down gracefully on cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.New(logCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting supplierd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("search_provider", cfg.Search.Provider),
		zap.String("extraction_provider", cfg.Extraction.Provider),
		zap.String("cache_backend", cfg.Cache.Backend))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	if cfg.Ignore.Watch {
		go func() {
			if err := deps.ignoreList.Watch(ctx); err != nil {
				logger.Warn("ignore list watcher stopped", zap.Error(err))
			}
		}()
	}

	registry, err := initServices(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	srv, err := httpserver.NewServer(registry, logger, &httpserver.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		ExtractRateLimit: cfg.Server.ExtractRateLimit,
		ExtractBurst:     cfg.Server.ExtractBurst,
		AllowOrigins:     cfg.Server.AllowOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("supplierd stopped")
	return nil
}
