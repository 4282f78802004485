package filter

import (
	"testing"
)

func matches(ac *AhoCorasick, text string) bool {
	return len(ac.Search(text)) > 0
}

func TestAhoCorasick_Build(t *testing.T) {
	ac := NewAhoCorasick()
	patterns := []PatternInfo{
		{Word: "bad", Category: "profanity"},
		{Word: "word", Category: "spam"},
		{Word: "badword", Category: "profanity"},
	}

	ac.Build(patterns)

	if !matches(ac, "this contains bad content") {
		t.Error("Expected to find 'bad' in text")
	}
	if !matches(ac, "this contains word") {
		t.Error("Expected to find 'word' in text")
	}
	if !matches(ac, "this contains badword") {
		t.Error("Expected to find 'badword' in text")
	}
}

func TestAhoCorasick_Search(t *testing.T) {
	ac := NewAhoCorasickFrom([]PatternInfo{
		{Word: "he", Category: "test"},
		{Word: "she", Category: "test"},
		{Word: "his", Category: "test"},
		{Word: "hers", Category: "test"},
	})

	tests := []struct {
		name          string
		text          string
		expectedCount int
		expectedWords map[string]bool
	}{
		{
			name:          "single match",
			text:          "he is here",
			expectedCount: 2,
			expectedWords: map[string]bool{"he": true},
		},
		{
			name:          "overlapping matches",
			text:          "she",
			expectedCount: 2,
			expectedWords: map[string]bool{"he": true, "she": true},
		},
		{
			name:          "multiple different matches",
			text:          "she said his name",
			expectedCount: 3,
			expectedWords: map[string]bool{"he": true, "she": true, "his": true},
		},
		{
			name:          "empty text",
			text:          "",
			expectedCount: 0,
			expectedWords: map[string]bool{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := ac.Search(tt.text)
			if len(matches) != tt.expectedCount {
				t.Errorf("Search(%q) returned %d matches; want %d", tt.text, len(matches), tt.expectedCount)
				return
			}
			for _, match := range matches {
				if !tt.expectedWords[match.Word] {
					t.Errorf("Search(%q) found unexpected word %q", tt.text, match.Word)
				}
			}
		})
	}
}

func TestAhoCorasick_Matches(t *testing.T) {
	ac := NewAhoCorasickFrom([]PatternInfo{
		{Word: "unsafe", Category: "unsafe"},
		{Word: "not safe", Category: "unsafe"},
	})

	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{"single keyword", "the prompt is unsafe", true},
		{"phrase", "this is not safe for work", true},
		{"phrase with collapsed whitespace", "this is NOT \n  safe", true},
		{"clean text", "the prompt looks fine", false},
		{"empty text", "", false},
		{"partial match not counted", "unsaf", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matches(ac, tt.text); got != tt.expected {
				t.Errorf("matches(%q) = %v; want %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestAhoCorasick_CaseInsensitive(t *testing.T) {
	ac := NewAhoCorasickFrom([]PatternInfo{
		{Word: "Harmful", Category: "harmful"},
	})

	tests := []struct {
		text     string
		expected bool
	}{
		{"this is harmful", true},
		{"this is HARMFUL", true},
		{"this is hArMfUl", true},
		{"this is clean", false},
	}

	for _, tt := range tests {
		if got := matches(ac, tt.text); got != tt.expected {
			t.Errorf("matches(%q) = %v; want %v", tt.text, got, tt.expected)
		}
	}
}

func TestAhoCorasick_CategoryAndPosition(t *testing.T) {
	ac := NewAhoCorasickFrom([]PatternInfo{
		{Word: "adult", Category: "adult_content"},
		{Word: "violence", Category: "violence"},
	})

	matches := ac.Search("Adult themes and violence")
	if len(matches) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(matches))
	}
	if matches[0].Word != "adult" || matches[0].Category != "adult_content" || matches[0].Position != 0 {
		t.Errorf("unexpected first match %+v", matches[0])
	}
	if matches[1].Word != "violence" || matches[1].Category != "violence" || matches[1].Position != 17 {
		t.Errorf("unexpected second match %+v", matches[1])
	}
}

func TestAhoCorasick_EmptyPatternIgnored(t *testing.T) {
	ac := NewAhoCorasickFrom([]PatternInfo{{Word: "   "}})
	if matches(ac, "anything at all") {
		t.Error("blank pattern must not match")
	}
}

func BenchmarkAhoCorasick_Search(b *testing.B) {
	patterns := make([]PatternInfo, 1000)
	for i := 0; i < 1000; i++ {
		patterns[i] = PatternInfo{
			Word:     "pattern" + string(rune('a'+i%26)),
			Category: "test",
		}
	}
	ac := NewAhoCorasickFrom(patterns)

	text := "This is a long text that contains patterna and patternb and some other content that needs to be searched."

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ac.Search(text)
	}
}
