package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"promptguard/internal/biz"
	"promptguard/internal/conf"
	"promptguard/internal/pkg/hash"
	pkgredis "promptguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultKeyPrefix = "block"
	clearBatchSize   = 500
)

type blockCacheRepo struct {
	store  pkgredis.Store
	prefix string
	log    *log.Helper
}

// NewBlockCacheRepo creates a BlockCacheRepo storing JSON records under
// {prefix}:word:*, {prefix}:prompt:{blocked,safe}:* and {prefix}:stats.
func NewBlockCacheRepo(store pkgredis.Store, c *conf.BlockCache, logger log.Logger) biz.BlockCacheRepo {
	prefix := defaultKeyPrefix
	if c != nil && c.KeyPrefix != "" {
		prefix = strings.TrimSuffix(c.KeyPrefix, ":")
	}
	return &blockCacheRepo{
		store:  store,
		prefix: prefix,
		log:    log.NewHelper(log.With(logger, "module", "data/blockcache")),
	}
}

func (r *blockCacheRepo) wordPrefix() string {
	return r.prefix + ":word:"
}

func (r *blockCacheRepo) promptPrefix() string {
	return r.prefix + ":prompt:"
}

func (r *blockCacheRepo) wordKey(word string) string {
	return r.wordPrefix() + hash.Key(word)
}

func (r *blockCacheRepo) verdictKey(promptHash string, blocked bool) string {
	if blocked {
		return r.promptPrefix() + "blocked:" + promptHash
	}
	return r.promptPrefix() + "safe:" + promptHash
}

func (r *blockCacheRepo) statsKey() string {
	return r.prefix + ":stats"
}

func (r *blockCacheRepo) GetWords(ctx context.Context, words []string) ([]*biz.BlockedWordEntry, error) {
	if len(words) == 0 {
		return nil, nil
	}
	keys := make([]string, len(words))
	for i, w := range words {
		keys[i] = r.wordKey(w)
	}
	values, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	entries := make([]*biz.BlockedWordEntry, len(words))
	for i, v := range values {
		if !v.OK {
			continue
		}
		entry, err := decodeWord(v.Data)
		if err != nil {
			r.log.Warnf("skip corrupt word entry %s: %v", keys[i], err)
			continue
		}
		// A truncated-hash collision reads another word's entry.
		if entry.Word != words[i] {
			continue
		}
		entries[i] = entry
	}
	return entries, nil
}

func (r *blockCacheRepo) SaveWord(ctx context.Context, entry *biz.BlockedWordEntry, ttl time.Duration) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.store.SetWithExpiry(ctx, r.wordKey(entry.Word), string(b), ttl)
}

func (r *blockCacheRepo) DeleteWord(ctx context.Context, word string) (bool, error) {
	n, err := r.store.Del(ctx, r.wordKey(word))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *blockCacheRepo) ListWords(ctx context.Context, cursor uint64, count int) ([]*biz.BlockedWordEntry, uint64, error) {
	keys, next, err := r.store.Scan(ctx, cursor, r.wordPrefix()+"*", int64(count))
	if err != nil {
		return nil, 0, err
	}
	if len(keys) == 0 {
		return nil, next, nil
	}

	values, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, 0, err
	}
	entries := make([]*biz.BlockedWordEntry, 0, len(values))
	for i, v := range values {
		// Expired between SCAN and MGET.
		if !v.OK {
			continue
		}
		entry, err := decodeWord(v.Data)
		if err != nil {
			r.log.Warnf("skip corrupt word entry %s: %v", keys[i], err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, next, nil
}

func (r *blockCacheRepo) CountWords(ctx context.Context) (int64, error) {
	var n int64
	for _, err := range r.store.ScanPrefix(ctx, r.wordPrefix()) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (r *blockCacheRepo) GetVerdict(ctx context.Context, promptHash string, blocked bool) (*biz.PromptVerdict, error) {
	raw, err := r.store.Get(ctx, r.verdictKey(promptHash, blocked))
	if errors.Is(err, pkgredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var pv biz.PromptVerdict
	if err := json.Unmarshal([]byte(raw), &pv); err != nil {
		r.log.Warnf("skip corrupt prompt verdict %s: %v", promptHash, err)
		return nil, nil
	}
	return &pv, nil
}

func (r *blockCacheRepo) SaveVerdict(ctx context.Context, verdict *biz.PromptVerdict, ttl time.Duration) error {
	b, err := json.Marshal(verdict)
	if err != nil {
		return err
	}
	return r.store.SetWithExpiry(ctx, r.verdictKey(verdict.PromptHash, verdict.IsBlocked), string(b), ttl)
}

func (r *blockCacheRepo) IncrStat(ctx context.Context, field string, delta int64) error {
	return r.store.HIncrBy(ctx, r.statsKey(), field, delta)
}

func (r *blockCacheRepo) GetStats(ctx context.Context) (map[string]int64, error) {
	raw, err := r.store.HGetAll(ctx, r.statsKey())
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.log.Warnf("skip non-numeric counter %s=%q", field, v)
			continue
		}
		stats[field] = n
	}
	return stats, nil
}

func (r *blockCacheRepo) Clear(ctx context.Context) (int64, error) {
	var deleted int64
	for _, prefix := range []string{r.wordPrefix(), r.promptPrefix()} {
		batch := make([]string, 0, clearBatchSize)
		for key, err := range r.store.ScanPrefix(ctx, prefix) {
			if err != nil {
				return deleted, err
			}
			batch = append(batch, key)
			if len(batch) == clearBatchSize {
				n, err := r.store.Del(ctx, batch...)
				if err != nil {
					return deleted, err
				}
				deleted += n
				batch = batch[:0]
			}
		}
		n, err := r.store.Del(ctx, batch...)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

func decodeWord(raw string) (*biz.BlockedWordEntry, error) {
	var entry biz.BlockedWordEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode word entry: %w", err)
	}
	return &entry, nil
}
