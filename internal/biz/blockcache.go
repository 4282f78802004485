package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"promptguard/internal/pkg/pagination"
)

// ViolationCategory is the reason a word or prompt is blocked.
type ViolationCategory string

const (
	CategoryAdult     ViolationCategory = "adult_content"
	CategoryViolence  ViolationCategory = "violence"
	CategoryHate      ViolationCategory = "hate_speech"
	CategoryIllegal   ViolationCategory = "illegal_activity"
	CategorySelfHarm  ViolationCategory = "self_harm"
	CategoryDangerous ViolationCategory = "dangerous_content"
	CategoryCustom    ViolationCategory = "custom"
)

func (c ViolationCategory) String() string {
	return string(c)
}

// categorySynonyms maps loose classifier labels onto ViolationCategory.
var categorySynonyms = map[string]ViolationCategory{
	"adult":             CategoryAdult,
	"adult_content":     CategoryAdult,
	"sexual":            CategoryAdult,
	"sexual_content":    CategoryAdult,
	"nsfw":              CategoryAdult,
	"nudity":            CategoryAdult,
	"violence":          CategoryViolence,
	"violent":           CategoryViolence,
	"gore":              CategoryViolence,
	"hate":              CategoryHate,
	"hate_speech":       CategoryHate,
	"harassment":        CategoryHate,
	"illegal":           CategoryIllegal,
	"illegal_activity":  CategoryIllegal,
	"drugs":             CategoryIllegal,
	"self_harm":         CategorySelfHarm,
	"self-harm":         CategorySelfHarm,
	"suicide":           CategorySelfHarm,
	"dangerous":         CategoryDangerous,
	"dangerous_content": CategoryDangerous,
	"weapons":           CategoryDangerous,
	"terrorism":         CategoryDangerous,
	"custom":            CategoryCustom,
}

// ParseViolationCategory maps a free-form label to a category, defaulting
// to CategoryCustom.
func ParseViolationCategory(s string) ViolationCategory {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, " ", "_")
	if c, ok := categorySynonyms[key]; ok {
		return c
	}
	return CategoryCustom
}

// WordSource records where a blocked word came from.
type WordSource string

const (
	SourceSeed WordSource = "seed"
	// SourceClassifier tags words learned from the LLM classifier.
	SourceClassifier WordSource = "gemini"
	SourceManual     WordSource = "manual"
)

func (s WordSource) String() string {
	return string(s)
}

// VerdictSource records which tier produced a Verdict.
type VerdictSource string

const (
	VerdictSourceCache      VerdictSource = "cache"
	VerdictSourceClassifier VerdictSource = "gemini"
	VerdictSourceFallback   VerdictSource = "fallback"
)

// BlockedWordEntry is a word-level cache entry.
type BlockedWordEntry struct {
	Word     string            `json:"word"`
	Reason   ViolationCategory `json:"reason"`
	Source   WordSource        `json:"source"`
	CachedAt time.Time         `json:"cached_at"`
	HitCount int64             `json:"hit_count"`
}

// PromptVerdict is a prompt-level cache entry. It never changes after it is
// written; a repeated prompt rewrites it only once it has expired.
type PromptVerdict struct {
	PromptHash   string    `json:"prompt_hash"`
	IsBlocked    bool      `json:"is_blocked"`
	Reason       string    `json:"reason,omitempty"`
	BlockedWords []string  `json:"blocked_words,omitempty"`
	Categories   []string  `json:"categories,omitempty"`
	Confidence   float64   `json:"confidence"`
	CachedAt     time.Time `json:"cached_at"`
}

// Verdict is the answer CheckPrompt gives a caller.
type Verdict struct {
	IsBlocked    bool          `json:"is_blocked"`
	Reason       string        `json:"reason,omitempty"`
	BlockedWords []string      `json:"blocked_words"`
	Categories   []string      `json:"categories,omitempty"`
	Source       VerdictSource `json:"source"`
	Confidence   float64       `json:"confidence"`
	CachedAt     *time.Time    `json:"cached_at,omitempty"`
}

// Statistic counter fields.
const (
	StatTotalBlockedWords = "total_blocked_words"
	StatCacheHits         = "cache_hits"
	StatPromptCacheHits   = "prompt_cache_hits"
	StatBlockedBySeed     = "blocked_by_seed"
	StatBlockedByGemini   = "blocked_by_gemini"
	StatBlockedByManual   = "blocked_by_manual"
)

// Statistics is a snapshot of the block-cache counters.
type Statistics struct {
	TotalBlockedWords int64 `json:"total_blocked_words"`
	CacheHits         int64 `json:"cache_hits"`
	PromptCacheHits   int64 `json:"prompt_cache_hits"`
	BlockedBySeed     int64 `json:"blocked_by_seed"`
	BlockedByGemini   int64 `json:"blocked_by_gemini"`
	BlockedByManual   int64 `json:"blocked_by_manual"`
	// TotalBlockedWordCount is the number of live word entries, counted by a
	// full key scan.
	TotalBlockedWordCount int64 `json:"total_blocked_word_count"`
}

// ErrEmptyWord is returned when an admin word operation gets blank input.
var ErrEmptyWord = errors.New("blocked word is empty")

// BlockCacheRepo persists the two cache tiers and the counters.
type BlockCacheRepo interface {
	// GetWords looks up canonical words in one round trip. The result is
	// aligned with words; a missing word yields nil.
	GetWords(ctx context.Context, words []string) ([]*BlockedWordEntry, error)
	SaveWord(ctx context.Context, entry *BlockedWordEntry, ttl time.Duration) error
	DeleteWord(ctx context.Context, word string) (bool, error)
	ListWords(ctx context.Context, cursor uint64, count int) ([]*BlockedWordEntry, uint64, error)
	CountWords(ctx context.Context) (int64, error)

	GetVerdict(ctx context.Context, promptHash string, blocked bool) (*PromptVerdict, error)
	SaveVerdict(ctx context.Context, verdict *PromptVerdict, ttl time.Duration) error

	IncrStat(ctx context.Context, field string, delta int64) error
	GetStats(ctx context.Context) (map[string]int64, error)

	// Clear deletes every word and prompt entry and returns how many keys
	// were removed. Counters are kept.
	Clear(ctx context.Context) (int64, error)
}

// ClassifierVerdict is the external classifier's answer.
type ClassifierVerdict struct {
	IsSafe       bool
	Reason       string
	Categories   []string
	BlockedWords []string
	Confidence   float64
}

// Classifier is the LLM safety classifier. Any error means the classifier
// could not produce a verdict.
type Classifier interface {
	Classify(ctx context.Context, text string) (*ClassifierVerdict, error)
}

// WordPage is one page of ListBlockedWords.
type WordPage = pagination.CursorResponse[*BlockedWordEntry]
