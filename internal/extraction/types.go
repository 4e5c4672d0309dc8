package extraction

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/search"
)

// Provider names accepted by NewExtractor.
const (
	ProviderHeuristic = "heuristic"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderDisabled  = "disabled"
)

// SupplierPlaceholder marks where a pattern captures the supplier name.
const SupplierPlaceholder = "{supplier}"

// Pattern is a weighted supplier-relationship pattern.
type Pattern struct {
	Name   string  `json:"name" koanf:"name"`
	Regex  string  `json:"regex" koanf:"regex"`
	Weight float64 `json:"weight" koanf:"weight"`
}

// Extractor finds supplier mentions for company in search results.
type Extractor interface {
	Extract(ctx context.Context, company string, results []search.Result) ([]dedup.Mention, error)
}

// Config holds extraction settings.
type Config struct {
	// Provider is one of "heuristic", "anthropic", "openai" or "disabled".
	Provider string `json:"provider"`

	// MinConfidence drops mentions scored below it.
	MinConfidence float64 `json:"min_confidence"`

	// Patterns overrides DefaultPatterns for the heuristic extractor.
	Patterns []Pattern `json:"patterns,omitempty"`

	// LLM configures the model-backed providers.
	LLM LLMConfig `json:"llm"`
}

// LLMConfig holds chat-completion provider settings.
type LLMConfig struct {
	Model   string        `json:"model,omitempty"`
	APIKey  string        `json:"-"`
	BaseURL string        `json:"base_url,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// DefaultConfig returns the heuristic configuration.
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderHeuristic,
		MinConfidence: 0.5,
		Patterns:      DefaultPatterns(),
	}
}

// DefaultPatterns returns the built-in supplier-relationship patterns.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Explicit relationship statements
		{Name: "supplier_to", Regex: `{supplier}\s+(?i:is|was|has been|are|were|became)\s+(?i:(?:a|an|the|one of the)\s+)?(?i:(?:key|major|main|leading|preferred|primary|exclusive|largest|long-time)\s+)?(?i:supplier|vendor|provider|manufacturer)s?\s+(?i:to|for|of)\b`, Weight: 0.85},
		{Name: "supplied_by", Regex: `(?i:supplied|provided|sourced|manufactured|produced|delivered)\s+(?i:by|from)\s+{supplier}`, Weight: 0.8},

		// Listings
		{Name: "supplier_list", Regex: `(?i:suppliers?|vendors?)\s*(?:(?i:such as|including|like)\s+|:\s*){supplier}`, Weight: 0.75},

		// Activity verbs
		{Name: "supplies", Regex: `{supplier}\s+(?i:supplies|provides|delivers|sells to)\b`, Weight: 0.7},
		{Name: "sources_from", Regex: `(?i:sources|buys|purchases|procures|imports)\b[^.]{0,40}?\s(?i:from)\s+{supplier}`, Weight: 0.65},

		// Weaker business ties
		{Name: "partnered_with", Regex: `(?i:partnered|partnership|partners|teamed up|contract|agreement|deal)\s+(?i:with)\s+{supplier}`, Weight: 0.6},
		{Name: "works_with", Regex: `(?i:works|working|worked)\s+(?i:with)\s+{supplier}`, Weight: 0.45},
	}
}
