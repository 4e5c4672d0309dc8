package extraction

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/supplierd/internal/dedup"
	"github.com/fyrsmithlabs/supplierd/internal/normalize"
	"github.com/fyrsmithlabs/supplierd/internal/search"
)

// supplierCapture matches a capitalized company-name phrase of up to six words.
const supplierCapture = `(?P<supplier>[\p{Lu}0-9][\p{L}\p{N}&'.\-]*(?:[ \t]+(?:&[ \t]+)?[\p{Lu}0-9][\p{L}\p{N}&'.\-]*){0,5})`

// leadingNoise are capitalized words that start sentences rather than names.
var leadingNoise = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "but": true, "also": true,
	"in": true, "on": true, "at": true, "by": true, "for": true, "from": true,
	"with": true, "as": true, "its": true, "their": true, "our": true, "we": true,
	"it": true, "they": true, "this": true, "that": true, "these": true, "those": true,
	"today": true, "meanwhile": true, "since": true, "while": true, "after": true,
	"before": true, "both": true, "including": true, "such": true, "other": true,
}

// HeuristicExtractor implements Extractor using pattern matching.
type HeuristicExtractor struct {
	patterns      []*compiledPattern
	minConfidence float64
}

// compiledPattern holds a pre-compiled regex pattern.
type compiledPattern struct {
	Pattern
	regex *regexp.Regexp
	group int

	// leading is set when the capture precedes the keyword, as in "X supplies".
	leading bool
}

// NewHeuristicExtractor compiles cfg.Patterns, or DefaultPatterns when empty.
func NewHeuristicExtractor(cfg Config) (*HeuristicExtractor, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}

	compiled := make([]*compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		if !strings.Contains(p.Regex, SupplierPlaceholder) {
			return nil, fmt.Errorf("pattern %q: missing %s placeholder", p.Name, SupplierPlaceholder)
		}
		re, err := regexp.Compile(strings.Replace(p.Regex, SupplierPlaceholder, supplierCapture, 1))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p.Name, err)
		}
		compiled = append(compiled, &compiledPattern{
			Pattern: p,
			regex:   re,
			group:   re.SubexpIndex("supplier"),
			leading: strings.HasPrefix(p.Regex, SupplierPlaceholder),
		})
	}

	minConfidence := cfg.MinConfidence
	if minConfidence == 0 {
		minConfidence = 0.5
	}

	return &HeuristicExtractor{
		patterns:      compiled,
		minConfidence: minConfidence,
	}, nil
}

// candidate is one supplier phrase found in a single result.
type candidate struct {
	name    string
	weight  float64
	context string
	order   int
}

// Extract scans the title and snippet of every result.
//
// Within one result, a supplier found by several patterns is reported once
// with the highest weight. Mentions that normalize to the target company,
// or score below the minimum confidence, are dropped.
func (h *HeuristicExtractor) Extract(ctx context.Context, company string, results []search.Result) ([]dedup.Mention, error) {
	companyKey := normalize.Normalize(company)
	mentions := []dedup.Mention{}

	for _, result := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found := make(map[string]*candidate)
		// Title positions sort before snippet positions.
		h.scan(result.Title, 0, companyKey, found)
		h.scan(result.Snippet, len(result.Title)+1, companyKey, found)

		ordered := make([]*candidate, 0, len(found))
		for _, c := range found {
			ordered = append(ordered, c)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })

		for _, c := range ordered {
			mentions = append(mentions, dedup.Mention{
				Name:       c.name,
				Confidence: c.weight,
				SourceURL:  dedup.StringPtr(result.Link),
				Context:    dedup.StringPtr(c.context),
			})
		}
	}

	return mentions, nil
}

// scan records every pattern match in text into found, keyed by normalized name.
func (h *HeuristicExtractor) scan(text string, offset int, companyKey string, found map[string]*candidate) {
	if text == "" {
		return
	}

	for _, p := range h.patterns {
		if p.Weight < h.minConfidence {
			continue
		}
		for _, loc := range p.regex.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*p.group], loc[2*p.group+1]
			if start < 0 {
				continue
			}
			name := cleanName(text[start:end], p.leading)
			key := normalize.Normalize(name)
			if key == "" || key == companyKey {
				continue
			}

			existing, ok := found[key]
			if ok && existing.weight >= p.Weight {
				continue
			}
			order := offset + start
			if ok && existing.order < order {
				order = existing.order
			}
			found[key] = &candidate{
				name:    name,
				weight:  p.Weight,
				context: strings.TrimSpace(text[loc[0]:start] + name + text[end:loc[1]]),
				order:   order,
			}
		}
	}
}

// cleanName cuts a capture at sentence breaks, keeping the segment next to the
// keyword, then strips sentence-starter words and trailing punctuation.
// A word ending in "." breaks the sentence unless it is a single initial.
func cleanName(raw string, leading bool) string {
	var segments [][]string
	var current []string
	for _, word := range strings.Fields(raw) {
		current = append(current, word)
		if strings.HasSuffix(word, ".") && utf8.RuneCountInString(word) > 2 {
			segments = append(segments, current)
			current = nil
		}
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}
	if len(segments) == 0 {
		return ""
	}

	words := segments[0]
	if leading {
		words = segments[len(segments)-1]
	}
	for len(words) > 0 && leadingNoise[strings.ToLower(words[0])] {
		words = words[1:]
	}
	return strings.TrimRight(strings.Join(words, " "), ".,;:'-& ")
}

// Ensure HeuristicExtractor implements Extractor.
var _ Extractor = (*HeuristicExtractor)(nil)
