package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/normalize"
	"github.com/fyrsmithlabs/supplierd/internal/search"
)

// LLMExtractor asks a chat model to list the suppliers named in each result.
type LLMExtractor struct {
	client        completer
	minConfidence float64
	logger        *zap.Logger
}

// NewLLMExtractor creates an extractor for the "anthropic" or "openai" provider.
func NewLLMExtractor(cfg Config, logger *zap.Logger) (*LLMExtractor, error) {
	var (
		client completer
		err    error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		client, err = newAnthropicClient(cfg.LLM)
	case ProviderOpenAI:
		client, err = newOpenAIClient(cfg.LLM)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return newLLMExtractor(client, cfg.MinConfidence, logger), nil
}

func newLLMExtractor(client completer, minConfidence float64, logger *zap.Logger) *LLMExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{
		client:        client,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// llmSupplier is one entry of the model's JSON reply.
type llmSupplier struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
}

// Extract sends one request per result. A failed request or unparseable reply
// is logged and contributes no mentions; only context cancellation aborts.
func (l *LLMExtractor) Extract(ctx context.Context, company string, results []search.Result) ([]dedup.Mention, error) {
	companyKey := normalize.Normalize(company)
	mentions := []dedup.Mention{}

	for _, result := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content := fmt.Sprintf("Title: %s\nSnippet: %s", result.Title, result.Snippet)
		reply, err := l.client.Complete(ctx, buildPrompt(company, content, result.Link))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("supplier extraction request failed",
				zap.String("company", company),
				zap.String("source", result.Link),
				zap.Error(err))
			continue
		}

		suppliers, err := parseSuppliersJSON(reply)
		if err != nil {
			l.logger.Warn("unparseable extraction reply",
				zap.String("company", company),
				zap.String("source", result.Link),
				zap.Error(err))
			continue
		}

		for _, s := range suppliers {
			name := strings.TrimSpace(s.Name)
			key := normalize.Normalize(name)
			if key == "" || key == companyKey {
				continue
			}
			confidence := clampConfidence(s.Confidence)
			if confidence < l.minConfidence {
				continue
			}
			mentions = append(mentions, dedup.Mention{
				Name:       name,
				Confidence: confidence,
				SourceURL:  dedup.StringPtr(result.Link),
				Context:    dedup.StringPtr(strings.TrimSpace(s.Context)),
			})
		}
	}

	return mentions, nil
}

// parseSuppliersJSON reads {"suppliers": [...]}, tolerating a fenced code block.
func parseSuppliersJSON(reply string) ([]llmSupplier, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.Trim(text, "`")
		text = strings.TrimPrefix(text, "json")
		text = strings.TrimSpace(text)
	}

	var parsed struct {
		Suppliers []llmSupplier `json:"suppliers"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("decode suppliers: %w", err)
	}
	return parsed.Suppliers, nil
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func buildPrompt(company, content, sourceURL string) string {
	return fmt.Sprintf(`You are an expert at extracting supplier information from business documents. Your task is to identify any supplier companies mentioned in relation to %[1]q.

TEXT TO ANALYZE:
%[2]s

SOURCE: %[3]s

INSTRUCTIONS:
1. Identify any company names that appear to be suppliers, vendors, or business partners of %[1]q
2. Focus on companies that provide goods, services, or materials to %[1]q
3. Exclude %[1]q itself and its subsidiaries
4. For each supplier, provide:
   - Company name (normalized)
   - Confidence score (0.0-1.0)
   - Brief context of the relationship

OUTPUT FORMAT (JSON only):
{"suppliers": [{"name": "Supplier Company Name", "confidence": 0.85, "context": "Brief description of relationship or mention context"}]}

Return ONLY valid JSON. Do not include any other text or explanations.`, company, content, sourceURL)
}

var _ Extractor = (*LLMExtractor)(nil)
