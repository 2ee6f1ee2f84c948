package keyword

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalizes text for case-insensitive comparison: unicode NFC composition (so precomposed and combining-mark Vietnamese diacritics compare equal), then full unicode case folding.
//
// Diacritics are preserved: "nói" and "noi" are different words.
func Normalize(text string) string {
	// a Caser is stateful, so this needs to be created in every function call to prevent a race condition
	fold := cases.Fold()
	return fold.String(norm.NFC.String(text))
}

// Case-insensitive substring test of term against text. An empty (or whitespace-only) term never matches.
func ContainsFold(text, term string) bool {
	t := strings.TrimSpace(Normalize(term))
	if t == "" {
		return false
	}
	return strings.Contains(Normalize(text), t)
}
