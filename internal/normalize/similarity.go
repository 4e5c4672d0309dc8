package normalize

import (
	"math"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Ratio scores the similarity of two keys on a 0-100 scale.
//
// The score is 100 * 2M / T rounded half-to-even, where T is the combined rune
// length and M the number of runes a minimal diff keeps in common. Identical
// strings score 100, strings sharing nothing score 0, and the score is symmetric.
func Ratio(a, b string) int {
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 100
	}
	if a == b {
		return 100
	}

	dmp := diffmatchpatch.New()
	// A zero timeout disables the half-match shortcut so the diff stays minimal.
	dmp.DiffTimeout = 0

	matched := 0
	for _, d := range dmp.DiffMain(a, b, false) {
		if d.Type == diffmatchpatch.DiffEqual {
			matched += utf8.RuneCountInString(d.Text)
		}
	}

	return int(math.RoundToEven(100 * float64(2*matched) / float64(total)))
}
