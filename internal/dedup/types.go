// Package dedup turns a noisy list of supplier mentions into distinct supplier
// records with merged evidence.
//
// Mentions are first filtered through the ignore list, then clustered by the
// similarity of their normalized names, and each cluster is merged into one
// Record.
package dedup

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidMention is returned when a mention cannot enter clustering.
var ErrInvalidMention = errors.New("invalid mention")

// Mention is one unmerged observation of a possible supplier.
type Mention struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	SourceURL  *string `json:"source_url"`
	Context    *string `json:"context"`
}

// Record is a deduplicated supplier built from one or more mentions.
type Record struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	SourceURL  *string `json:"source_url"`
	Context    *string `json:"context"`
}

// Validate checks the caller contract: a non-blank name and a confidence in [0, 1].
func (m Mention) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidMention)
	}
	if math.IsNaN(m.Confidence) || m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v for %q outside [0, 1]", ErrInvalidMention, m.Confidence, m.Name)
	}
	return nil
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// validateAll returns the first contract violation, annotated with its position.
func validateAll(mentions []Mention) error {
	for i, m := range mentions {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("mention %d: %w", i, err)
		}
	}
	return nil
}
