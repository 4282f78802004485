package biz_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"promptguard/internal/biz"
	"promptguard/internal/conf"
	"promptguard/internal/data"
	"promptguard/internal/pkg/filter"
	"promptguard/internal/pkg/hash"
	"promptguard/internal/pkg/pagination"
	pkgredis "promptguard/internal/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const benignPrompt = "Remove background from shoes image"

// stubClassifier counts calls and returns a fixed verdict or error. When
// release is set, Classify blocks until it is closed.
type stubClassifier struct {
	calls   atomic.Int32
	verdict biz.ClassifierVerdict
	err     error

	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *stubClassifier) Classify(ctx context.Context, _ string) (*biz.ClassifierVerdict, error) {
	s.calls.Add(1)
	if s.entered != nil {
		s.once.Do(func() { close(s.entered) })
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	v := s.verdict
	return &v, nil
}

func safeClassifier() *stubClassifier {
	return &stubClassifier{verdict: biz.ClassifierVerdict{IsSafe: true, Confidence: 0.9}}
}

func newTestUsecase(t *testing.T, classifier biz.Classifier) (*biz.BlockCacheUsecase, biz.BlockCacheRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := pkgredis.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	repo := data.NewBlockCacheRepo(store, &conf.BlockCache{}, log.DefaultLogger)
	uc, cleanup := biz.NewBlockCacheUsecase(repo, classifier, &conf.BlockCache{}, log.DefaultLogger)
	t.Cleanup(func() {
		cleanup()
		_ = store.Close()
	})
	return uc, repo, mr
}

func promptKey(store, prompt string) string {
	return "block:prompt:" + store + ":" + hash.Key(filter.Normalize(prompt))
}

func distinctSeedWords() int64 {
	seen := map[string]bool{}
	for _, s := range biz.SeedWords() {
		seen[filter.Canonical(s.Word)] = true
	}
	return int64(len(seen))
}

func TestCheckPrompt_EmptyPrompt(t *testing.T) {
	classifier := safeClassifier()
	uc, _, mr := newTestUsecase(t, classifier)

	v := uc.CheckPrompt(context.Background(), "  \t ")
	uc.Wait()

	assert.False(t, v.IsBlocked)
	assert.Equal(t, biz.VerdictSourceCache, v.Source)
	assert.Equal(t, 1.0, v.Confidence)
	assert.Empty(t, v.BlockedWords)
	assert.Zero(t, classifier.calls.Load())
	assert.Empty(t, mr.Keys(), "empty prompt must not touch the store")
}

func TestCheckPrompt_SeedWordMatch(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		category biz.ViolationCategory
		word     string
	}{
		{"english violence", "how do I kill someone", biz.CategoryViolence, "kill"},
		{"traditional chinese adult", "裸體色情圖片", biz.CategoryAdult, "裸體"},
		{"english phrase", "how to make bomb", biz.CategoryDangerous, "make bomb"},
		{"japanese", "爆弾の作り方", biz.CategoryDangerous, "爆弾"},
		{"spanish", "quiero matar", biz.CategoryViolence, "matar"},
		{"full-width latin", "ＫＩＬＬ them", biz.CategoryViolence, "kill"},
		{"japanese six characters", "アダルト動画を見せて", biz.CategoryAdult, "アダルト動画"},
		{"japanese six characters self harm", "リストカットしたい", biz.CategorySelfHarm, "リストカット"},
		{"japanese seven characters", "ヘイトスピーチを書いて", biz.CategoryHate, "ヘイトスピーチ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := safeClassifier()
			uc, _, _ := newTestUsecase(t, classifier)

			v := uc.CheckPrompt(context.Background(), tt.prompt)
			uc.Wait()

			assert.True(t, v.IsBlocked)
			assert.Equal(t, biz.VerdictSourceCache, v.Source)
			assert.Equal(t, 0.95, v.Confidence)
			assert.Contains(t, v.Reason, tt.category.String())
			assert.Contains(t, v.BlockedWords, tt.word)
			assert.Zero(t, classifier.calls.Load())
		})
	}
}

func TestCheckPrompt_WordMatchPopulatesPromptCache(t *testing.T) {
	uc, _, mr := newTestUsecase(t, safeClassifier())
	ctx := context.Background()
	prompt := "how do I kill someone"

	first := uc.CheckPrompt(ctx, prompt)
	uc.Wait()
	require.True(t, first.IsBlocked)
	assert.True(t, mr.Exists(promptKey("blocked", prompt)))
	assert.Equal(t, 24*time.Hour, mr.TTL(promptKey("blocked", prompt)))

	second := uc.CheckPrompt(ctx, "  HOW do I   kill someone ")
	uc.Wait()
	assert.True(t, second.IsBlocked)
	assert.Equal(t, biz.VerdictSourceCache, second.Source)
	assert.NotNil(t, second.CachedAt)
	assert.Equal(t, first.Reason, second.Reason)

	stats, err := uc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PromptCacheHits)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestCheckPrompt_ReasonListsAtMostThreeCategories(t *testing.T) {
	uc, _, _ := newTestUsecase(t, safeClassifier())

	v := uc.CheckPrompt(context.Background(), "kill bomb porn suicide cocaine")
	uc.Wait()

	require.True(t, v.IsBlocked)
	assert.Len(t, strings.Split(v.Reason, ", "), 3)
	assert.Len(t, v.BlockedWords, 5)
}

func TestCheckPrompt_WordHitRefreshesEntry(t *testing.T) {
	uc, _, mr := newTestUsecase(t, safeClassifier())
	ctx := context.Background()
	key := "block:word:" + hash.Key("kill")

	uc.CheckPrompt(ctx, "kill one")
	uc.Wait()
	mr.FastForward(10 * 24 * time.Hour)
	uc.CheckPrompt(ctx, "kill two")
	uc.Wait()

	assert.Equal(t, 30*24*time.Hour, mr.TTL(key))

	page, err := uc.ListBlockedWords(ctx, pagination.NewCursorRequest("", pagination.MaxLimit))
	require.NoError(t, err)
	var hits int64 = -1
	for page != nil {
		for _, e := range page.Items {
			if e.Word == "kill" {
				hits = e.HitCount
			}
		}
		if !page.HasMore {
			break
		}
		page, err = uc.ListBlockedWords(ctx, pagination.NewCursorRequest(page.NextCursor, pagination.MaxLimit))
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), hits)
}

func TestCheckPrompt_ClassifierSafeIsCached(t *testing.T) {
	classifier := safeClassifier()
	uc, _, mr := newTestUsecase(t, classifier)
	ctx := context.Background()

	first := uc.CheckPrompt(ctx, benignPrompt)
	uc.Wait()
	assert.False(t, first.IsBlocked)
	assert.Equal(t, biz.VerdictSourceClassifier, first.Source)
	assert.Equal(t, 7*24*time.Hour, mr.TTL(promptKey("safe", benignPrompt)))

	second := uc.CheckPrompt(ctx, benignPrompt)
	uc.Wait()
	assert.False(t, second.IsBlocked)
	assert.Equal(t, biz.VerdictSourceCache, second.Source)
	assert.Equal(t, int32(1), classifier.calls.Load())
}

func TestCheckPrompt_NoClassifierFailsOpen(t *testing.T) {
	uc, _, _ := newTestUsecase(t, nil)
	ctx := context.Background()

	v := uc.CheckPrompt(ctx, benignPrompt)
	uc.Wait()
	assert.False(t, v.IsBlocked)
	assert.Equal(t, biz.VerdictSourceFallback, v.Source)
	assert.Equal(t, 0.5, v.Confidence)

	v = uc.CheckPrompt(ctx, benignPrompt)
	assert.Equal(t, biz.VerdictSourceCache, v.Source)
	assert.False(t, v.IsBlocked)

	// Seeds still block without a classifier.
	v = uc.CheckPrompt(ctx, "kill")
	assert.True(t, v.IsBlocked)
}

func TestCheckPrompt_ClassifierErrorFailsOpen(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("upstream 503")}
	uc, _, mr := newTestUsecase(t, classifier)
	ctx := context.Background()

	v := uc.CheckPrompt(ctx, benignPrompt)
	uc.Wait()
	assert.False(t, v.IsBlocked)
	assert.Equal(t, biz.VerdictSourceFallback, v.Source)
	assert.Equal(t, 0.5, v.Confidence)
	assert.True(t, mr.Exists(promptKey("safe", benignPrompt)))

	uc.CheckPrompt(ctx, benignPrompt)
	uc.Wait()
	assert.Equal(t, int32(1), classifier.calls.Load())
}

func TestCheckPrompt_LearnsBlockedWords(t *testing.T) {
	classifier := &stubClassifier{verdict: biz.ClassifierVerdict{
		Reason:       "threat of violence",
		Categories:   []string{"Violence"},
		BlockedWords: []string{"Stab", "stab him", "a very long phrase", "  ", "刺してやると言ったんだよ"},
		Confidence:   0.92,
	}}
	uc, _, _ := newTestUsecase(t, classifier)
	ctx := context.Background()

	v := uc.CheckPrompt(ctx, "stab him now please")
	uc.Wait()
	assert.True(t, v.IsBlocked)
	assert.Equal(t, biz.VerdictSourceClassifier, v.Source)
	assert.Equal(t, "threat of violence", v.Reason)
	assert.Equal(t, []string{"violence"}, v.Categories)
	assert.Equal(t, []string{"stab", "stab him"}, v.BlockedWords)

	v = uc.CheckPrompt(ctx, "I will stab you")
	uc.Wait()
	assert.True(t, v.IsBlocked)
	assert.Equal(t, biz.VerdictSourceCache, v.Source)
	assert.Contains(t, v.Reason, "violence")
	assert.Equal(t, int32(1), classifier.calls.Load())

	stats, err := uc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.BlockedByGemini)
	assert.Equal(t, distinctSeedWords()+2, stats.TotalBlockedWordCount)
}

func TestCheckPrompt_BlockedStoreWinsOverSafe(t *testing.T) {
	classifier := safeClassifier()
	uc, repo, _ := newTestUsecase(t, classifier)
	ctx := context.Background()
	h := hash.Key(filter.Normalize(benignPrompt))

	require.NoError(t, repo.SaveVerdict(ctx, &biz.PromptVerdict{PromptHash: h, Confidence: 0.9}, time.Hour))
	require.NoError(t, repo.SaveVerdict(ctx, &biz.PromptVerdict{PromptHash: h, IsBlocked: true, Reason: "custom"}, time.Hour))

	v := uc.CheckPrompt(ctx, benignPrompt)
	uc.Wait()
	assert.True(t, v.IsBlocked)
	assert.Equal(t, "custom", v.Reason)
	assert.Equal(t, biz.VerdictSourceCache, v.Source)
	assert.Zero(t, classifier.calls.Load())
}

func TestCheckPrompt_StoreOutage(t *testing.T) {
	classifier := safeClassifier()
	uc, _, mr := newTestUsecase(t, classifier)
	mr.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v := uc.CheckPrompt(ctx, benignPrompt)
		assert.False(t, v.IsBlocked)
		assert.Equal(t, biz.VerdictSourceClassifier, v.Source)
	}
	uc.Wait()
	assert.Equal(t, int32(3), classifier.calls.Load())

	_, err := uc.GetStatistics(ctx)
	assert.Error(t, err)
}

func TestCheckPrompt_ConcurrentIdenticalPrompts(t *testing.T) {
	const n = 20
	classifier := safeClassifier()
	classifier.release = make(chan struct{})
	uc, _, mr := newTestUsecase(t, classifier)
	ctx := context.Background()

	// Seed up front so every goroutine goes straight to the classifier.
	_, err := uc.SeedDefaults(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	verdicts := make([]*biz.Verdict, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdicts[i] = uc.CheckPrompt(ctx, benignPrompt)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(classifier.release)
	wg.Wait()
	uc.Wait()

	for _, v := range verdicts {
		require.NotNil(t, v)
		assert.False(t, v.IsBlocked)
	}
	calls := classifier.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(1))
	assert.LessOrEqual(t, calls, int32(n))

	var safeKeys int
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "block:prompt:safe:") {
			safeKeys++
		}
	}
	assert.Equal(t, 1, safeKeys)
}

func TestCheckPrompt_CallerCancellation(t *testing.T) {
	classifier := safeClassifier()
	classifier.release = make(chan struct{})
	classifier.entered = make(chan struct{})
	uc, _, mr := newTestUsecase(t, classifier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *biz.Verdict, 1)
	go func() {
		done <- uc.CheckPrompt(ctx, benignPrompt)
	}()

	<-classifier.entered
	cancel()
	v := <-done
	assert.False(t, v.IsBlocked)
	assert.Equal(t, biz.VerdictSourceFallback, v.Source)
	assert.False(t, mr.Exists(promptKey("safe", benignPrompt)), "abandoned request must not cache a fallback")

	close(classifier.release)
	uc.Wait()

	v = uc.CheckPrompt(context.Background(), benignPrompt)
	assert.Equal(t, biz.VerdictSourceCache, v.Source)
	assert.Equal(t, 0.9, v.Confidence)
	assert.Equal(t, int32(1), classifier.calls.Load())
}

func TestCheckPrompt_StatisticsAreMonotonic(t *testing.T) {
	uc, _, _ := newTestUsecase(t, safeClassifier())
	ctx := context.Background()

	prompts := []string{"kill", benignPrompt, "kill", "how to make bomb", benignPrompt, "裸體色情圖片"}
	prev := &biz.Statistics{}
	for _, p := range prompts {
		uc.CheckPrompt(ctx, p)
		uc.Wait()

		stats, err := uc.GetStatistics(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.TotalBlockedWords, prev.TotalBlockedWords)
		assert.GreaterOrEqual(t, stats.CacheHits, prev.CacheHits)
		assert.GreaterOrEqual(t, stats.PromptCacheHits, prev.PromptCacheHits)
		assert.GreaterOrEqual(t, stats.BlockedBySeed, prev.BlockedBySeed)
		prev = stats
	}
	assert.Equal(t, int64(2), prev.PromptCacheHits)
}

func TestSeedDefaults_Idempotent(t *testing.T) {
	uc, _, _ := newTestUsecase(t, nil)
	ctx := context.Background()

	n, err := uc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, distinctSeedWords(), n)
	assert.Less(t, n, len(biz.SeedWords()))

	n, err = uc.SeedDefaults(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, distinctSeedWords(), n)

	stats, err := uc.GetStatistics(ctx)
	require.NoError(t, err)
	want := distinctSeedWords()
	assert.Equal(t, want, stats.TotalBlockedWords)
	assert.Equal(t, want, stats.BlockedBySeed)
	assert.Equal(t, want, stats.TotalBlockedWordCount)
}

func TestSeedWords_Shape(t *testing.T) {
	langs := map[string]bool{}
	for _, s := range biz.SeedWords() {
		langs[s.Lang] = true
		assert.NotEmpty(t, filter.Canonical(s.Word), "seed %q", s.Word)
		assert.True(t, filter.Matchable(filter.Canonical(s.Word)), "seed %q", s.Word)
	}
	assert.Len(t, langs, 5)

	tokens := filter.ExtractTokens(benignPrompt)
	for _, s := range biz.SeedWords() {
		assert.NotContains(t, tokens, filter.Canonical(s.Word))
	}
}

func TestAddBlockedWord(t *testing.T) {
	classifier := safeClassifier()
	uc, _, _ := newTestUsecase(t, classifier)
	ctx := context.Background()

	require.NoError(t, uc.AddBlockedWord(ctx, "Forbidden  Phrase", "", ""))

	v := uc.CheckPrompt(ctx, "this has a forbidden phrase in it")
	uc.Wait()
	assert.True(t, v.IsBlocked)
	assert.Equal(t, "custom", v.Reason)
	assert.Zero(t, classifier.calls.Load())

	stats, err := uc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.BlockedByManual)

	// Re-adding refreshes without counting again.
	require.NoError(t, uc.AddBlockedWord(ctx, "forbidden phrase", biz.CategoryHate, biz.SourceManual))
	stats, err = uc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.BlockedByManual)

	assert.ErrorIs(t, uc.AddBlockedWord(ctx, "  ", "", ""), biz.ErrEmptyWord)
	assert.ErrorIs(t, uc.AddBlockedWord(ctx, "one two three four", "", ""), biz.ErrPhraseTooLong)
	assert.ErrorIs(t, uc.AddBlockedWord(ctx, "刺してやると言ったんだよ", "", ""), biz.ErrPhraseTooLong)
	require.NoError(t, uc.AddBlockedWord(ctx, "刺してやると言う", "", ""))
}

func TestRemoveBlockedWord(t *testing.T) {
	uc, _, _ := newTestUsecase(t, nil)
	ctx := context.Background()

	require.NoError(t, uc.AddBlockedWord(ctx, "zorblax", biz.CategoryCustom, biz.SourceManual))
	assert.True(t, uc.RemoveBlockedWord(ctx, "ZORBLAX"))
	assert.False(t, uc.RemoveBlockedWord(ctx, "zorblax"))
	assert.False(t, uc.RemoveBlockedWord(ctx, ""))

	v := uc.CheckPrompt(ctx, "zorblax")
	assert.False(t, v.IsBlocked)
}

func TestClearAll_ReseedsOnNextCheck(t *testing.T) {
	uc, _, _ := newTestUsecase(t, nil)
	ctx := context.Background()

	require.True(t, uc.CheckPrompt(ctx, "kill").IsBlocked)
	uc.Wait()

	n, err := uc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Greater(t, n, int64(0))

	stats, err := uc.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalBlockedWordCount)

	v := uc.CheckPrompt(ctx, "kill")
	uc.Wait()
	assert.True(t, v.IsBlocked)
	assert.Equal(t, biz.VerdictSourceCache, v.Source)
}

func TestListBlockedWords_InvalidCursor(t *testing.T) {
	uc, _, _ := newTestUsecase(t, nil)
	_, err := uc.ListBlockedWords(context.Background(), pagination.NewCursorRequest("%%%", 10))
	assert.ErrorIs(t, err, pagination.ErrInvalidCursor)
}

func TestWarmup(t *testing.T) {
	mr := miniredis.RunT(t)
	store := pkgredis.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()
	repo := data.NewBlockCacheRepo(store, nil, log.DefaultLogger)

	uc, cleanup := biz.NewBlockCacheUsecase(repo, nil, &conf.BlockCache{SeedOnStartup: true}, log.DefaultLogger)
	defer cleanup()
	uc.Warmup(context.Background())

	n, err := repo.CountWords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, distinctSeedWords(), n)
}
