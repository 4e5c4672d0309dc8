// Package config provides configuration loading for supplierd.
//
// Values come from hardcoded defaults, then an optional YAML file, then
// environment variables. See LoadWithFile for the precedence rules.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Search providers.
const (
	SearchGoogle   = "google"
	SearchStatic   = "static"
	SearchDisabled = "disabled"
)

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
)

// Extraction providers. They mirror the extraction package constants.
const (
	ExtractionHeuristic = "heuristic"
	ExtractionAnthropic = "anthropic"
	ExtractionOpenAI    = "openai"
	ExtractionDisabled  = "disabled"
)

// Config holds the complete supplierd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Cache      CacheConfig      `koanf:"cache"`
	Ignore     IgnoreConfig     `koanf:"ignore"`
	Search     SearchConfig     `koanf:"search"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Dedup      DedupConfig      `koanf:"dedup"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// ExtractRateLimit is requests per second per client; 0 disables it.
	ExtractRateLimit float64  `koanf:"extract_rate_limit"`
	ExtractBurst     int      `koanf:"extract_burst"`
	AllowOrigins     []string `koanf:"allow_origins"`
}

// StorageConfig locates the SQLite database holding the audit log and cache.
type StorageConfig struct {
	// Path is a file path or ":memory:".
	Path string `koanf:"path"`
}

// CacheConfig controls result caching.
type CacheConfig struct {
	Backend    string   `koanf:"backend"`
	TTL        Duration `koanf:"ttl"`
	MaxEntries int      `koanf:"max_entries"` // memory backend only; 0 is unbounded
}

// IgnoreConfig locates the supplier ignore list.
type IgnoreConfig struct {
	File  string `koanf:"file"`
	Watch bool   `koanf:"watch"`
}

// SearchConfig selects and configures the web search backend.
type SearchConfig struct {
	// Provider is google, static or disabled. Empty picks google when
	// credentials are present and disabled otherwise.
	Provider  string   `koanf:"provider"`
	APIKey    Secret   `koanf:"api_key"`
	EngineID  string   `koanf:"engine_id"`
	BaseURL   string   `koanf:"base_url"`
	Timeout   Duration `koanf:"timeout"`
	RateLimit float64  `koanf:"rate_limit"`
	Burst     int      `koanf:"burst"`

	// FixturesFile is a JSON object of company name to results, for the
	// static provider.
	FixturesFile string `koanf:"fixtures_file"`
}

// ExtractionConfig selects the supplier mention extractor.
type ExtractionConfig struct {
	Provider      string   `koanf:"provider"`
	MinConfidence float64  `koanf:"min_confidence"`
	LLMModel      string   `koanf:"llm_model"`
	LLMAPIKey     Secret   `koanf:"llm_api_key"`
	LLMBaseURL    string   `koanf:"llm_base_url"`
	LLMTimeout    Duration `koanf:"llm_timeout"`
}

// DedupConfig tunes deduplication.
type DedupConfig struct {
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	MetricsEnabled bool     `koanf:"metrics_enabled"`
	ExportInterval Duration `koanf:"export_interval"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "localhost",
			Port:             8000,
			ShutdownTimeout:  Duration(10 * time.Second),
			ExtractRateLimit: 5,
			ExtractBurst:     10,
		},
		Storage: StorageConfig{
			Path: defaultStoragePath(),
		},
		Cache: CacheConfig{
			Backend: CacheSQLite,
			TTL:     Duration(24 * time.Hour),
		},
		Ignore: IgnoreConfig{
			File:  "suppliers/supplier_ignore_list.txt",
			Watch: true,
		},
		Search: SearchConfig{
			Timeout:   Duration(30 * time.Second),
			RateLimit: 1,
			Burst:     5,
		},
		Extraction: ExtractionConfig{
			Provider:      ExtractionHeuristic,
			MinConfidence: 0.5,
			LLMTimeout:    Duration(60 * time.Second),
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 80,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sampling: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SamplingRate:   1.0,
			MetricsEnabled: true,
			ExportInterval: Duration(15 * time.Second),
		},
	}
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "supplierd.db"
	}
	return filepath.Join(home, ".local", "share", "supplierd", "supplierd.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.ExtractRateLimit < 0 {
		return fmt.Errorf("extract_rate_limit must be >= 0, got %v", c.Server.ExtractRateLimit)
	}

	if c.Storage.Path == "" {
		return errors.New("storage path is required")
	}

	switch c.Cache.Backend {
	case CacheSQLite, CacheMemory:
	default:
		return fmt.Errorf("unknown cache backend %q (want sqlite or memory)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache ttl must be positive")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max_entries must be >= 0, got %d", c.Cache.MaxEntries)
	}

	if c.Ignore.File == "" {
		return errors.New("ignore list file is required")
	}

	switch c.Search.Provider {
	case SearchGoogle:
		if !c.Search.APIKey.IsSet() || c.Search.EngineID == "" {
			return errors.New("google search requires search.api_key and search.engine_id")
		}
	case SearchStatic:
		if c.Search.FixturesFile == "" {
			return errors.New("static search requires search.fixtures_file")
		}
	case SearchDisabled:
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}

	switch c.Extraction.Provider {
	case ExtractionHeuristic, ExtractionDisabled:
	case ExtractionAnthropic, ExtractionOpenAI:
		if !c.Extraction.LLMAPIKey.IsSet() {
			return fmt.Errorf("%s extraction requires extraction.llm_api_key", c.Extraction.Provider)
		}
	default:
		return fmt.Errorf("unknown extraction provider %q", c.Extraction.Provider)
	}
	if c.Extraction.MinConfidence < 0 || c.Extraction.MinConfidence > 1 {
		return fmt.Errorf("extraction.min_confidence must be between 0 and 1, got %v", c.Extraction.MinConfidence)
	}

	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 100 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 100], got %v", c.Dedup.SimilarityThreshold)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %v", c.Telemetry.SamplingRate)
		}
	}

	return nil
}
