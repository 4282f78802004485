package filter

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical form of a prompt used for hashing:
// NFKC folded, lower-cased, trimmed, with every whitespace run collapsed
// to a single space.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	folded := strings.ToLower(norm.NFKC.String(text))
	return strings.Join(strings.Fields(folded), " ")
}

// Words splits normalized text into words. Anything that is not a letter,
// digit or combining mark separates words.
func Words(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !isWordChar(r)
	})
}

// Canonical returns the form a blocked word or phrase is stored under:
// its words joined by single spaces.
func Canonical(phrase string) string {
	return strings.Join(Words(phrase), " ")
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
