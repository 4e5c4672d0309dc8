// Package normalize canonicalizes free-text company names into comparison keys
// and scores how similar two keys are.
//
// Keys produced here are used purely for comparison and are never shown to end users.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// separatorReplacer turns word separators into spaces so they split words
// instead of fusing them once punctuation is stripped.
var separatorReplacer = strings.NewReplacer("-", " ", "_", " ", "&", " ")

// corporateSuffixes are walked in order; each is anchored to the end of the key.
var corporateSuffixes = []*regexp.Regexp{
	regexp.MustCompile(` inc\.?$`),
	regexp.MustCompile(` corp\.?$`),
	regexp.MustCompile(` llc$`),
	regexp.MustCompile(` ltd\.?$`),
	regexp.MustCompile(` limited$`),
	regexp.MustCompile(` co\.?$`),
	regexp.MustCompile(` group$`),
	regexp.MustCompile(` international$`),
	regexp.MustCompile(` intl\.?$`),
	regexp.MustCompile(` technologies$`),
	regexp.MustCompile(` tech$`),
	regexp.MustCompile(` systems$`),
	regexp.MustCompile(` solutions$`),
}

// Normalize canonicalizes a raw company name into a comparison key.
//
// Steps, in order:
//  1. Lower-case (full Unicode case mapping).
//  2. Replace "-", "_" and "&" with a space.
//  3. Drop every rune that is neither alphanumeric nor whitespace.
//  4. Collapse whitespace runs and trim.
//  5. Strip corporate suffixes ("inc", "corp", "ltd", ...) found at the end.
//
// Normalize is pure and deterministic.
//
// Example:
//
//	normalize.Normalize("A&B Corp.")             // "a b"
//	normalize.Normalize("XYZ Technologies Inc.") // "xyz"
func Normalize(raw string) string {
	s := cases.Lower(language.Und).String(raw)
	s = separatorReplacer.Replace(s)
	s = strings.Map(keepWordOrSpace, s)
	s = strings.Join(strings.Fields(s), " ")
	return stripSuffixes(s)
}

// keepWordOrSpace drops runes that are not letters, digits or whitespace.
func keepWordOrSpace(r rune) rune {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || r == '_' {
		return r
	}
	return -1
}

// stripSuffixes applies each suffix pattern once, in list order. A later pattern
// sees the result of the earlier ones, so "xyz technologies inc" loses both words.
func stripSuffixes(s string) string {
	for _, re := range corporateSuffixes {
		s = re.ReplaceAllString(s, "")
	}
	return s
}
