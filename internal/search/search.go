// Package search finds web documents that may mention a company's suppliers.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// MaxResultsPerRequest is the most results the search API returns per call.
const MaxResultsPerRequest = 10

// Result is one web search hit.
type Result struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	Link        string `json:"link"`
	DisplayLink string `json:"displayLink"`
}

// Searcher looks up documents about a company's supply chain.
type Searcher interface {
	Search(ctx context.Context, company string, maxResults int) ([]Result, error)
}

// Query builds the search query used for a company.
func Query(company string) string {
	return fmt.Sprintf(`"%s" suppliers vendors partners supply chain`, strings.TrimSpace(company))
}

// StaticSearcher serves fixed results, keyed by lower-cased company name.
// Unknown companies get no results.
type StaticSearcher struct {
	results map[string][]Result
}

// NewStaticSearcher creates a searcher over fixtures.
func NewStaticSearcher(results map[string][]Result) *StaticSearcher {
	byKey := make(map[string][]Result, len(results))
	for company, rs := range results {
		byKey[strings.ToLower(strings.TrimSpace(company))] = rs
	}
	return &StaticSearcher{results: byKey}
}

// LoadStaticSearcher reads fixtures from a JSON object mapping company
// names to result arrays.
func LoadStaticSearcher(path string) (*StaticSearcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read search fixtures: %w", err)
	}
	var results map[string][]Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("parse search fixtures %s: %w", path, err)
	}
	return NewStaticSearcher(results), nil
}

// Search returns up to maxResults fixtures for company.
func (s *StaticSearcher) Search(ctx context.Context, company string, maxResults int) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs := s.results[strings.ToLower(strings.TrimSpace(company))]
	if maxResults > 0 && len(rs) > maxResults {
		rs = rs[:maxResults]
	}
	out := make([]Result, len(rs))
	copy(out, rs)
	return out, nil
}

// Disabled returns no results for every query.
type Disabled struct{}

// Search always returns an empty result set.
func (Disabled) Search(ctx context.Context, _ string, _ int) ([]Result, error) {
	return []Result{}, ctx.Err()
}

var (
	_ Searcher = (*StaticSearcher)(nil)
	_ Searcher = Disabled{}
)
