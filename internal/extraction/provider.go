package extraction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/search"
)

// NewExtractor creates an extractor based on configuration.
// An empty provider selects the heuristic extractor.
func NewExtractor(cfg Config, logger *zap.Logger) (Extractor, error) {
	switch cfg.Provider {
	case "", ProviderHeuristic:
		return NewHeuristicExtractor(cfg)
	case ProviderAnthropic, ProviderOpenAI:
		return NewLLMExtractor(cfg, logger)
	case ProviderDisabled:
		return &NoOpExtractor{}, nil
	default:
		return nil, fmt.Errorf("unknown extraction provider: %s", cfg.Provider)
	}
}

// NoOpExtractor is a no-op implementation of Extractor.
type NoOpExtractor struct{}

// Extract returns an empty slice.
func (n *NoOpExtractor) Extract(_ context.Context, _ string, _ []search.Result) ([]dedup.Mention, error) {
	return []dedup.Mention{}, nil
}

// Ensure interfaces are implemented.
var _ Extractor = (*NoOpExtractor)(nil)
