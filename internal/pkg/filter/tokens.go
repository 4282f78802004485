package filter

import (
	"strings"
	"unicode"
)

const (
	// MaxPhraseWords is the longest word window ExtractTokens emits.
	MaxPhraseWords = 3
	// MaxRunGram is the longest character window ExtractTokens emits for
	// unsegmented script.
	MaxRunGram = 8
	minRunGram = 2
)

// katakanaProlongedMark belongs to the Common script but only appears inside
// katakana words.
const katakanaProlongedMark = 'ー'

// ExtractTokens returns every candidate blocked term in text, in order of
// first appearance and without duplicates: single words, contiguous 2-word
// and 3-word windows, and for runs of unsegmented script (Han, kana, Hangul)
// the character 2- to 8-grams of each run.
//
// The set over-generates on purpose; each token is only an existence lookup.
func ExtractTokens(text string) []string {
	words := Words(text)
	if len(words) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(words)*MaxPhraseWords)
	tokens := make([]string, 0, len(words)*MaxPhraseWords)
	add := func(tok string) {
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}

	for i := range words {
		for n := 1; n <= MaxPhraseWords && i+n <= len(words); n++ {
			add(strings.Join(words[i:i+n], " "))
		}
	}
	for _, w := range words {
		for _, run := range unsegmentedRuns(w) {
			for n := minRunGram; n <= MaxRunGram && n <= len(run); n++ {
				for i := 0; i+n <= len(run); i++ {
					add(string(run[i : i+n]))
				}
			}
		}
	}
	return tokens
}

// Matchable reports whether a canonical term can be produced by
// ExtractTokens from a prompt that embeds it: at most MaxPhraseWords words,
// and no unsegmented run longer than MaxRunGram characters.
func Matchable(canonical string) bool {
	words := strings.Fields(canonical)
	if len(words) == 0 || len(words) > MaxPhraseWords {
		return false
	}
	for _, w := range words {
		for _, run := range unsegmentedRuns(w) {
			if len(run) > MaxRunGram {
				return false
			}
		}
	}
	return true
}

// unsegmentedRuns returns the maximal runs of word in scripts written
// without spaces between words.
func unsegmentedRuns(word string) [][]rune {
	var (
		runs    [][]rune
		current []rune
	)
	for _, r := range word {
		if isUnsegmented(r) {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			runs = append(runs, current)
			current = nil
		}
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}

func isUnsegmented(r rune) bool {
	return r == katakanaProlongedMark ||
		unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
