package dedup

import (
	"go.uber.org/zap"
)

// IgnoreChecker reports whether a raw supplier name is on the ignore list.
// *ignore.Policy satisfies it.
type IgnoreChecker interface {
	IsIgnored(name string) bool
}

// Engine filters ignored mentions and clusters the rest.
type Engine struct {
	ignore IgnoreChecker
	merger *Merger
	logger *zap.Logger
}

// NewEngine creates a deduplication engine. A nil ignore checker ignores nothing;
// a nil merger uses the default threshold.
func NewEngine(ignore IgnoreChecker, merger *Merger, logger *zap.Logger) *Engine {
	if ignore == nil {
		ignore = noIgnore{}
	}
	if merger == nil {
		merger = NewMerger(DefaultSimilarityThreshold)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		ignore: ignore,
		merger: merger,
		logger: logger,
	}
}

// Process drops every mention whose raw name is ignored, then clusters and merges
// the remainder. Filtering happens first, so an ignored name never seeds a
// cluster nor contributes evidence to one.
//
// Returns an empty slice when nothing survives filtering, and ErrInvalidMention
// when any input violates the mention contract.
func (e *Engine) Process(mentions []Mention) ([]Record, error) {
	if err := validateAll(mentions); err != nil {
		return nil, err
	}

	kept := make([]Mention, 0, len(mentions))
	for _, m := range mentions {
		if e.ignore.IsIgnored(m.Name) {
			continue
		}
		kept = append(kept, m)
	}

	records, err := e.merger.ClusterAndMerge(kept)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("deduplicated suppliers",
		zap.Int("mentions", len(mentions)),
		zap.Int("ignored", len(mentions)-len(kept)),
		zap.Int("records", len(records)),
		zap.Float64("threshold", e.merger.Threshold()))

	return records, nil
}

// noIgnore is the IgnoreChecker used when none is configured.
type noIgnore struct{}

func (noIgnore) IsIgnored(string) bool { return false }
