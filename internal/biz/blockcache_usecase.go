package biz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"promptguard/internal/conf"
	"promptguard/internal/pkg/filter"
	"promptguard/internal/pkg/hash"
	"promptguard/internal/pkg/pagination"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultWordTTL           = 30 * 24 * time.Hour
	defaultBlockedPromptTTL  = 24 * time.Hour
	defaultSafePromptTTL     = 7 * 24 * time.Hour
	defaultClassifyTimeout   = 15 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultSeedRetryInterval = time.Minute
	seedTimeout              = 30 * time.Second

	wordMatchConfidence = 0.95
	fallbackConfidence  = 0.5
	maxReasonCategories = 3
)

// ErrPhraseTooLong is returned for blocked terms the word tier could never
// match inside a prompt: more than three words, or an unsegmented run
// longer than eight characters.
var ErrPhraseTooLong = errors.New("blocked phrase is too long to match")

// BlockCacheUsecase is the moderation block-cache: a word tier and a
// whole-prompt tier in front of an LLM classifier. One instance serves all
// requests; it holds no locks on the request path.
type BlockCacheUsecase struct {
	repo       BlockCacheRepo
	classifier Classifier

	wordTTL           time.Duration
	blockedPromptTTL  time.Duration
	safePromptTTL     time.Duration
	classifyTimeout   time.Duration
	writeTimeout      time.Duration
	seedRetryInterval time.Duration
	seedOnStartup     bool

	flights singleflight.Group
	pending sync.WaitGroup

	seeded          atomic.Bool
	lastSeedFailure atomic.Int64

	log *log.Helper
}

// NewBlockCacheUsecase creates the block cache. classifier may be nil, in
// which case unseen prompts fail open. The cleanup waits for background
// cache writes.
func NewBlockCacheUsecase(repo BlockCacheRepo, classifier Classifier, c *conf.BlockCache, logger log.Logger) (*BlockCacheUsecase, func()) {
	if c == nil {
		c = &conf.BlockCache{}
	}
	uc := &BlockCacheUsecase{
		repo:              repo,
		classifier:        classifier,
		wordTTL:           c.WordTTL.Or(defaultWordTTL),
		blockedPromptTTL:  c.BlockedPromptTTL.Or(defaultBlockedPromptTTL),
		safePromptTTL:     c.SafePromptTTL.Or(defaultSafePromptTTL),
		classifyTimeout:   c.ClassifyTimeout.Or(defaultClassifyTimeout),
		writeTimeout:      c.WriteTimeout.Or(defaultWriteTimeout),
		seedRetryInterval: c.SeedRetryInterval.Or(defaultSeedRetryInterval),
		seedOnStartup:     c.SeedOnStartup,
		log:               log.NewHelper(log.With(logger, "module", "biz/blockcache")),
	}
	return uc, uc.Close
}

// CheckPrompt returns the moderation verdict for prompt. It never fails:
// store errors degrade to cache misses and classifier errors fail open.
func (uc *BlockCacheUsecase) CheckPrompt(ctx context.Context, prompt string) *Verdict {
	normalized := filter.Normalize(prompt)
	if normalized == "" {
		return &Verdict{Source: VerdictSourceCache, Confidence: 1, BlockedWords: []string{}}
	}
	uc.ensureSeeded(ctx)
	promptHash := hash.Key(normalized)

	if v := uc.lookupPrompt(ctx, promptHash); v != nil {
		return v
	}
	if v := uc.matchWords(ctx, prompt, promptHash); v != nil {
		return v
	}
	return uc.classify(ctx, prompt, promptHash)
}

// lookupPrompt checks the blocked store, then the safe store.
func (uc *BlockCacheUsecase) lookupPrompt(ctx context.Context, promptHash string) *Verdict {
	for _, blocked := range []bool{true, false} {
		pv, err := uc.repo.GetVerdict(ctx, promptHash, blocked)
		if err != nil {
			// A failed blocked lookup must not let a cached safe verdict win.
			uc.log.Warnf("prompt cache lookup failed: %v", err)
			return nil
		}
		if pv != nil {
			uc.incr(StatPromptCacheHits, 1)
			cachedAt := pv.CachedAt
			return &Verdict{
				IsBlocked:    pv.IsBlocked,
				Reason:       pv.Reason,
				BlockedWords: nonNil(pv.BlockedWords),
				Categories:   pv.Categories,
				Source:       VerdictSourceCache,
				Confidence:   pv.Confidence,
				CachedAt:     &cachedAt,
			}
		}
	}
	return nil
}

// matchWords looks every token of prompt up in the word tier.
func (uc *BlockCacheUsecase) matchWords(ctx context.Context, prompt, promptHash string) *Verdict {
	tokens := filter.ExtractTokens(prompt)
	if len(tokens) == 0 {
		return nil
	}
	entries, err := uc.repo.GetWords(ctx, tokens)
	if err != nil {
		uc.log.Warnf("word cache lookup failed: %v", err)
		return nil
	}

	var (
		matched    []*BlockedWordEntry
		words      []string
		categories []string
	)
	for _, e := range entries {
		if e == nil {
			continue
		}
		matched = append(matched, e)
		words = append(words, e.Word)
		categories = appendUnique(categories, e.Reason.String())
	}
	if len(matched) == 0 {
		return nil
	}

	pv := &PromptVerdict{
		PromptHash:   promptHash,
		IsBlocked:    true,
		Reason:       joinReason(categories),
		BlockedWords: words,
		Categories:   categories,
		Confidence:   wordMatchConfidence,
		CachedAt:     time.Now(),
	}
	uc.goWrite(func(ctx context.Context) {
		for _, e := range matched {
			e.HitCount++
			if err := uc.repo.SaveWord(ctx, e, uc.wordTTL); err != nil {
				uc.log.Warnf("refresh blocked word %q: %v", e.Word, err)
			}
		}
		uc.incrSync(ctx, StatCacheHits, int64(len(matched)))
		uc.saveVerdict(ctx, pv, uc.blockedPromptTTL)
	})

	cachedAt := pv.CachedAt
	return &Verdict{
		IsBlocked:    true,
		Reason:       pv.Reason,
		BlockedWords: slices.Clone(words),
		Categories:   slices.Clone(categories),
		Source:       VerdictSourceCache,
		Confidence:   wordMatchConfidence,
		CachedAt:     &cachedAt,
	}
}

// classify asks the classifier once per prompt hash at a time. The call is
// detached from the caller: a caller that gives up gets a fail-open verdict
// while the classification still completes and is cached.
func (uc *BlockCacheUsecase) classify(ctx context.Context, prompt, promptHash string) *Verdict {
	if uc.classifier == nil {
		uc.log.Debug("no classifier configured, failing open")
		return uc.failOpen(promptHash, true)
	}

	uc.pending.Add(1)
	ch := uc.flights.DoChan(promptHash, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.classifyTimeout)
		defer cancel()
		return uc.classifyAndStore(cctx, prompt, promptHash), nil
	})

	select {
	case res := <-ch:
		uc.pending.Done()
		return res.Val.(*Verdict).clone()
	case <-ctx.Done():
		go func() {
			<-ch
			uc.pending.Done()
		}()
		uc.log.Warnf("prompt check abandoned by caller: %v", ctx.Err())
		return uc.failOpen(promptHash, false)
	}
}

func (uc *BlockCacheUsecase) classifyAndStore(ctx context.Context, prompt, promptHash string) *Verdict {
	res, err := uc.classifier.Classify(ctx, prompt)
	if err != nil {
		uc.log.Warnf("classifier failed, failing open: %v", err)
		return uc.failOpen(promptHash, true)
	}

	now := time.Now()
	if res.IsSafe {
		pv := &PromptVerdict{
			PromptHash: promptHash,
			Confidence: res.Confidence,
			CachedAt:   now,
		}
		uc.goWrite(func(ctx context.Context) {
			uc.saveVerdict(ctx, pv, uc.safePromptTTL)
		})
		return &Verdict{
			BlockedWords: []string{},
			Source:       VerdictSourceClassifier,
			Confidence:   res.Confidence,
		}
	}

	var categories []string
	for _, c := range res.Categories {
		categories = appendUnique(categories, ParseViolationCategory(c).String())
	}
	reason := strings.TrimSpace(res.Reason)
	if reason == "" {
		reason = joinReason(categories)
	}
	if reason == "" {
		reason = "flagged by classifier"
	}
	learnAs := CategoryCustom
	if len(categories) > 0 {
		learnAs = ViolationCategory(categories[0])
	}

	var words []string
	for _, w := range res.BlockedWords {
		canonical := filter.Canonical(w)
		if !filter.Matchable(canonical) {
			continue
		}
		words = appendUnique(words, canonical)
	}

	pv := &PromptVerdict{
		PromptHash:   promptHash,
		IsBlocked:    true,
		Reason:       reason,
		BlockedWords: words,
		Categories:   categories,
		Confidence:   res.Confidence,
		CachedAt:     now,
	}
	uc.goWrite(func(ctx context.Context) {
		uc.saveVerdict(ctx, pv, uc.blockedPromptTTL)
		for _, w := range words {
			if _, err := uc.addWord(ctx, w, learnAs, SourceClassifier); err != nil {
				uc.log.Warnf("learn blocked word %q: %v", w, err)
			}
		}
	})

	return &Verdict{
		IsBlocked:    true,
		Reason:       reason,
		BlockedWords: slices.Clone(words),
		Categories:   slices.Clone(categories),
		Source:       VerdictSourceClassifier,
		Confidence:   res.Confidence,
	}
}

// failOpen returns the permissive verdict used when no classification is
// available. When cache is set the verdict is stored as safe so a flaky
// classifier is not retried for the same prompt.
func (uc *BlockCacheUsecase) failOpen(promptHash string, cache bool) *Verdict {
	if cache {
		pv := &PromptVerdict{
			PromptHash: promptHash,
			Confidence: fallbackConfidence,
			CachedAt:   time.Now(),
		}
		uc.goWrite(func(ctx context.Context) {
			uc.saveVerdict(ctx, pv, uc.safePromptTTL)
		})
	}
	return &Verdict{
		BlockedWords: []string{},
		Source:       VerdictSourceFallback,
		Confidence:   fallbackConfidence,
	}
}

// addWord inserts or refreshes a canonical word. Only manual insertions
// overwrite the reason and source of an existing entry; hit count and
// creation time always survive.
func (uc *BlockCacheUsecase) addWord(ctx context.Context, word string, reason ViolationCategory, source WordSource) (bool, error) {
	existing, err := uc.repo.GetWords(ctx, []string{word})
	if err != nil {
		return false, err
	}

	entry := existing[0]
	created := entry == nil
	switch {
	case created:
		entry = &BlockedWordEntry{
			Word:     word,
			Reason:   reason,
			Source:   source,
			CachedAt: time.Now(),
		}
	case source == SourceManual:
		entry.Reason = reason
		entry.Source = source
	}

	if err := uc.repo.SaveWord(ctx, entry, uc.wordTTL); err != nil {
		return false, err
	}
	if created {
		uc.incrSync(ctx, StatTotalBlockedWords, 1)
		uc.incrSync(ctx, statForSource(source), 1)
	}
	return created, nil
}

// AddBlockedWord inserts word directly, bypassing the classifier. An empty
// source means manual and an empty reason means custom.
func (uc *BlockCacheUsecase) AddBlockedWord(ctx context.Context, word string, reason ViolationCategory, source WordSource) error {
	canonical := filter.Canonical(word)
	if canonical == "" {
		return ErrEmptyWord
	}
	if !filter.Matchable(canonical) {
		return ErrPhraseTooLong
	}
	if source == "" {
		source = SourceManual
	}
	if reason == "" {
		reason = CategoryCustom
	}

	created, err := uc.addWord(ctx, canonical, reason, source)
	if err != nil {
		return fmt.Errorf("add blocked word: %w", err)
	}
	uc.log.Infof("AddBlockedWord: %q reason=%s source=%s created=%t", canonical, reason, source, created)
	return nil
}

// RemoveBlockedWord deletes word from the word tier and reports whether it
// existed. Prompt verdicts already cached are left to expire.
func (uc *BlockCacheUsecase) RemoveBlockedWord(ctx context.Context, word string) bool {
	canonical := filter.Canonical(word)
	if canonical == "" {
		return false
	}
	removed, err := uc.repo.DeleteWord(ctx, canonical)
	if err != nil {
		uc.log.Errorf("RemoveBlockedWord %q: %v", canonical, err)
		return false
	}
	uc.log.Infof("RemoveBlockedWord: %q removed=%t", canonical, removed)
	return removed
}

// ListBlockedWords pages through the word tier.
func (uc *BlockCacheUsecase) ListBlockedWords(ctx context.Context, req *pagination.CursorRequest) (*WordPage, error) {
	pos, err := req.Position()
	if err != nil {
		return nil, err
	}
	entries, next, err := uc.repo.ListWords(ctx, pos, req.GetLimit())
	if err != nil {
		return nil, fmt.Errorf("list blocked words: %w", err)
	}
	return pagination.BuildScanResponse(entries, next), nil
}

// GetStatistics returns the counters plus the live word count. The count
// scans the whole word namespace, so this is not meant for frequent polling.
func (uc *BlockCacheUsecase) GetStatistics(ctx context.Context) (*Statistics, error) {
	counters, err := uc.repo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	total, err := uc.repo.CountWords(ctx)
	if err != nil {
		return nil, fmt.Errorf("count blocked words: %w", err)
	}
	return &Statistics{
		TotalBlockedWords:     counters[StatTotalBlockedWords],
		CacheHits:             counters[StatCacheHits],
		PromptCacheHits:       counters[StatPromptCacheHits],
		BlockedBySeed:         counters[StatBlockedBySeed],
		BlockedByGemini:       counters[StatBlockedByGemini],
		BlockedByManual:       counters[StatBlockedByManual],
		TotalBlockedWordCount: total,
	}, nil
}

// ClearAll deletes every word and prompt entry. The next CheckPrompt seeds
// the default word table again.
func (uc *BlockCacheUsecase) ClearAll(ctx context.Context) (int64, error) {
	n, err := uc.repo.Clear(ctx)
	uc.seeded.Store(false)
	uc.lastSeedFailure.Store(0)
	if err != nil {
		return n, fmt.Errorf("clear block cache: %w", err)
	}
	uc.log.Infof("ClearAll: deleted %d keys", n)
	return n, nil
}

// SeedDefaults inserts the built-in word table and returns the number of
// distinct words written. Entries that canonicalize to the same word are
// written once, first entry wins. Calling it again refreshes the entries
// without duplicating them.
func (uc *BlockCacheUsecase) SeedDefaults(ctx context.Context) (int, error) {
	seen := make(map[string]struct{})
	for _, s := range SeedWords() {
		canonical := filter.Canonical(s.Word)
		if _, ok := seen[canonical]; ok {
			continue
		}
		if _, err := uc.addWord(ctx, canonical, s.Category, SourceSeed); err != nil {
			return len(seen), fmt.Errorf("seed %q: %w", s.Word, err)
		}
		seen[canonical] = struct{}{}
	}
	uc.seeded.Store(true)
	uc.lastSeedFailure.Store(0)
	return len(seen), nil
}

// Warmup seeds the word table at startup when configured to.
func (uc *BlockCacheUsecase) Warmup(ctx context.Context) {
	if !uc.seedOnStartup {
		return
	}
	n, err := uc.SeedDefaults(ctx)
	if err != nil {
		uc.log.Warnf("startup seeding stopped after %d words: %v", n, err)
		return
	}
	uc.log.Infof("seeded %d blocked words", n)
}

// ensureSeeded seeds lazily on first use. Concurrent first calls may all
// seed; seeding is idempotent. After a failure it is retried at most once
// per seedRetryInterval.
func (uc *BlockCacheUsecase) ensureSeeded(ctx context.Context) {
	if uc.seeded.Load() {
		return
	}
	if last := uc.lastSeedFailure.Load(); last != 0 && time.Since(time.Unix(0, last)) < uc.seedRetryInterval {
		return
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), seedTimeout)
	defer cancel()
	n, err := uc.SeedDefaults(sctx)
	if err != nil {
		uc.lastSeedFailure.Store(time.Now().UnixNano())
		uc.log.Warnf("seeding blocked words failed after %d words: %v", n, err)
		return
	}
	uc.log.Infof("seeded %d blocked words", n)
}

// Wait blocks until background cache writes have finished.
func (uc *BlockCacheUsecase) Wait() {
	uc.pending.Wait()
}

// Close flushes background writes.
func (uc *BlockCacheUsecase) Close() {
	uc.log.Info("flushing block cache writes")
	uc.Wait()
}

// goWrite runs fn in the background with its own deadline so request
// cancellation cannot leave half-written cache state.
func (uc *BlockCacheUsecase) goWrite(fn func(ctx context.Context)) {
	uc.pending.Add(1)
	go func() {
		defer uc.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), uc.writeTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (uc *BlockCacheUsecase) incr(field string, delta int64) {
	uc.goWrite(func(ctx context.Context) {
		uc.incrSync(ctx, field, delta)
	})
}

func (uc *BlockCacheUsecase) incrSync(ctx context.Context, field string, delta int64) {
	if err := uc.repo.IncrStat(ctx, field, delta); err != nil {
		uc.log.Warnf("increment %s: %v", field, err)
	}
}

func (uc *BlockCacheUsecase) saveVerdict(ctx context.Context, pv *PromptVerdict, ttl time.Duration) {
	if err := uc.repo.SaveVerdict(ctx, pv, ttl); err != nil {
		uc.log.Warnf("cache prompt verdict: %v", err)
	}
}

func statForSource(source WordSource) string {
	switch source {
	case SourceSeed:
		return StatBlockedBySeed
	case SourceClassifier:
		return StatBlockedByGemini
	default:
		return StatBlockedByManual
	}
}

func joinReason(categories []string) string {
	if len(categories) > maxReasonCategories {
		categories = categories[:maxReasonCategories]
	}
	return strings.Join(categories, ", ")
}

func appendUnique(list []string, s string) []string {
	if s == "" || slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func (v *Verdict) clone() *Verdict {
	c := *v
	c.BlockedWords = nonNil(v.BlockedWords)
	c.Categories = slices.Clone(v.Categories)
	if v.CachedAt != nil {
		t := *v.CachedAt
		c.CachedAt = &t
	}
	return &c
}
