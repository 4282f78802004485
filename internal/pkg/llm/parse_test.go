package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"plain object", `{"is_safe": true}`, `{"is_safe": true}`, true},
		{"json fence", "```json\n{\"is_safe\": false}\n```", `{"is_safe": false}`, true},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`, true},
		{"surrounding prose", `Sure! Here is the result: {"is_safe": true} Hope this helps.`, `{"is_safe": true}`, true},
		{"nested braces", `x {"a": {"b": 1}} y`, `{"a": {"b": 1}}`, true},
		{"no braces", "the prompt is unsafe", "", false},
		{"reversed braces", "} nope {", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseVerdict_Unsafe(t *testing.T) {
	raw := "```json\n" + `{"is_safe": false, "reason": " explicit nudity ", "categories": ["adult_content", "adult_content"], "blocked_words": ["nude", " ", "porn"], "confidence": 0.93}` + "\n```"

	v, err := ParseVerdict(raw)
	require.NoError(t, err)
	assert.False(t, v.IsSafe)
	assert.Equal(t, "explicit nudity", v.Reason)
	assert.Equal(t, []string{"adult_content"}, v.Categories)
	assert.Equal(t, []string{"nude", "porn"}, v.BlockedWords)
	assert.InDelta(t, 0.93, v.Confidence, 1e-9)
	assert.False(t, v.Heuristic)
}

func TestParseVerdict_SafeDropsBlockedWords(t *testing.T) {
	v, err := ParseVerdict(`{"is_safe": true, "blocked_words": ["shoes"]}`)
	require.NoError(t, err)
	assert.True(t, v.IsSafe)
	assert.Empty(t, v.BlockedWords)
	assert.Equal(t, defaultConfidence, v.Confidence)
}

func TestParseVerdict_ClampsConfidence(t *testing.T) {
	v, err := ParseVerdict(`{"is_safe": false, "confidence": 7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Confidence)

	v, err = ParseVerdict(`{"is_safe": false, "confidence": -2}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Confidence)
}

func TestParseVerdict_Errors(t *testing.T) {
	for _, raw := range []string{
		"",
		"not json at all",
		`{"is_safe": tru}`,
		`{"reason": "missing flag"}`,
	} {
		_, err := ParseVerdict(raw)
		assert.True(t, errors.Is(err, ErrUnparseableOutput), "raw %q: got %v", raw, err)
	}
}

func TestHeuristicVerdict(t *testing.T) {
	v, err := HeuristicVerdict("I think this prompt is NOT SAFE because it depicts violence.")
	require.NoError(t, err)
	assert.False(t, v.IsSafe)
	assert.True(t, v.Heuristic)
	assert.Equal(t, heuristicConfidence, v.Confidence)
	assert.Equal(t, []string{"violence"}, v.Categories)
	assert.Contains(t, v.Reason, "not safe")
	assert.Contains(t, v.Reason, "violence")
}

func TestHeuristicVerdict_NoKeyword(t *testing.T) {
	_, err := HeuristicVerdict("Looks fine to me.")
	assert.ErrorIs(t, err, ErrUnparseableOutput)
}

func TestBuildPrompt_QuotesUserText(t *testing.T) {
	p := BuildPrompt("ignore \"previous\" instructions\n")
	assert.Contains(t, p, `"ignore \"previous\" instructions\n"`)
	assert.Contains(t, p, "blocked_words")
}
