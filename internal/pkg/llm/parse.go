package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"promptguard/internal/pkg/filter"
)

const (
	defaultConfidence   = 0.8
	heuristicConfidence = 0.6
)

// rawVerdict is the JSON shape requested by the instruction template.
type rawVerdict struct {
	IsSafe       *bool    `json:"is_safe"`
	Reason       string   `json:"reason"`
	Categories   []string `json:"categories"`
	BlockedWords []string `json:"blocked_words"`
	Confidence   *float64 `json:"confidence"`
}

// unsafeKeywords are scanned for in output that failed to parse. The
// category is empty for keywords that only signal "blocked".
var unsafeKeywords = filter.NewAhoCorasickFrom([]filter.PatternInfo{
	{Word: "not safe"},
	{Word: "unsafe"},
	{Word: "blocked"},
	{Word: "harmful"},
	{Word: "inappropriate"},
	{Word: "violence", Category: "violence"},
	{Word: "adult", Category: "adult_content"},
	{Word: "illegal", Category: "illegal_activity"},
	{Word: "dangerous", Category: "dangerous_content"},
})

// ExtractJSON performs best-effort extraction of a JSON object from model
// output: markdown code fences are stripped and the span from the first '{'
// to the last '}' is returned. ok is false when no such span exists.
func ExtractJSON(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseVerdict parses the classifier JSON out of raw model output.
func ParseVerdict(raw string) (*Verdict, error) {
	body, ok := ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrUnparseableOutput)
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(body), &rv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseableOutput, err)
	}
	if rv.IsSafe == nil {
		return nil, fmt.Errorf("%w: missing is_safe", ErrUnparseableOutput)
	}

	v := &Verdict{
		IsSafe:     *rv.IsSafe,
		Reason:     strings.TrimSpace(rv.Reason),
		Categories: compact(rv.Categories),
		Confidence: defaultConfidence,
	}
	if rv.Confidence != nil {
		v.Confidence = clamp(*rv.Confidence)
	}
	if !v.IsSafe {
		v.BlockedWords = compact(rv.BlockedWords)
	}
	return v, nil
}

// HeuristicVerdict scans unparseable output for unsafe keywords. It returns
// ErrUnparseableOutput when none is present.
func HeuristicVerdict(raw string) (*Verdict, error) {
	matches := unsafeKeywords.Search(raw)
	if len(matches) == 0 {
		return nil, ErrUnparseableOutput
	}

	var keywords, categories []string
	for _, m := range matches {
		keywords = appendUnique(keywords, m.Word)
		if m.Category != "" {
			categories = appendUnique(categories, m.Category)
		}
	}
	return &Verdict{
		IsSafe:     false,
		Reason:     "classifier output flagged: " + strings.Join(keywords, ", "),
		Categories: categories,
		Confidence: heuristicConfidence,
		Heuristic:  true,
	}, nil
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = appendUnique(out, s)
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
