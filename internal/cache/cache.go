// Package cache implements the semantic prompt cache: an exact SHA-256
// lookup backed by internal/kv, with a cosine-similarity vector fallback
// over github.com/philippgille/chromem-go for near-duplicate prompts.
// Adapted from the check-cache/fetch/stale-fallback pattern in
// runtime/registry/manager.go's DiscoverToolset.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/homemesh/orchestrator/internal/kv"
	"github.com/homemesh/orchestrator/internal/telemetry"
)

type (
	// EmbeddingProvider generates embeddings for text, used for the
	// semantic-similarity fallback lookup.
	EmbeddingProvider interface {
		Embed(ctx context.Context, texts []string) ([][]float32, error)
	}

	// Entry is a cached routing decision for a normalized prompt. Key is
	// the exact-index key (see hashKey) and is what Evict expects back.
	Entry struct {
		Key       string `json:"-"`
		Prompt    string
		Decision  json.RawMessage
		StoredAt  time.Time
		HitCount  int
		LastHitAt time.Time
	}

	// Stats summarizes the exact-match index's current contents.
	Stats struct {
		Entries   int
		TotalHits int
	}

	// Options configures a Cache.
	Options struct {
		// TTL is the exact-match entry expiry; zero means entries do not
		// expire.
		TTL time.Duration
		// SimilarityThreshold is the minimum cosine similarity (0..1)
		// required to admit a semantic-fallback hit.
		SimilarityThreshold float32
		// MaxEntries bounds the semantic index size; once the bound is
		// exceeded, the entry least recently added or returned by Lookup is
		// evicted from both indexes. Entries stored while the semantic index
		// is disabled are not counted against the bound.
		MaxEntries int
	}

	// Cache is the semantic prompt cache: exact hash lookups hit
	// internal/kv directly; on a miss, a vector query against chromem-go
	// finds a near-duplicate prompt above the configured similarity
	// threshold.
	Cache struct {
		exact      kv.Store
		embed      EmbeddingProvider
		log        telemetry.Logger
		ttl        time.Duration
		threshold  float32
		maxEntries int

		mu    sync.Mutex
		db    *chromem.DB
		coll  *chromem.Collection
		order []string
	}
)

const collectionName = "prompt-cache"

// cacheKeyPrefix namespaces every exact-index key this package writes, so
// List/Stats/Evict can enumerate entries without touching unrelated keys
// sharing the same kv.Store.
const cacheKeyPrefix = "cache/prompts/"

// New constructs a Cache. exact provides the SHA-256 exact-match index
// (in-process or cluster-shared via internal/kv/redisstore); embed provides
// vectors for the semantic fallback, and may be nil to disable it.
func New(exact kv.Store, embed EmbeddingProvider, log telemetry.Logger, opts Options) (*Cache, error) {
	if exact == nil {
		return nil, errors.New("cache: exact store is required")
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.92
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	c := &Cache{
		exact:      exact,
		embed:      embed,
		log:        log,
		ttl:        opts.TTL,
		threshold:  opts.SimilarityThreshold,
		maxEntries: opts.MaxEntries,
	}
	if embed != nil {
		c.db = chromem.NewDB()
		coll, err := c.db.GetOrCreateCollection(collectionName, nil, chromemEmbeddingFunc(embed))
		if err != nil {
			return nil, fmt.Errorf("cache: create vector collection: %w", err)
		}
		c.coll = coll
	}
	return c, nil
}

// Lookup normalizes prompt, checks the exact index, and on a miss falls back
// to a semantic similarity query. ok is false when no admissible entry was
// found.
func (c *Cache) Lookup(ctx context.Context, prompt string) (entry Entry, ok bool, err error) {
	norm := normalize(prompt)
	key := hashKey(norm)

	raw, found, err := c.exact.GetOK(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: exact lookup: %w", err)
	}
	if found {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return Entry{}, false, fmt.Errorf("cache: decode exact entry: %w", err)
		}
		e.Key = key
		c.log.Debug(ctx, "cache exact hit", "key", key)
		go c.bumpHit(key)
		return e, true, nil
	}
	c.log.Debug(ctx, "cache exact miss", "key", key)

	if c.coll == nil {
		return Entry{}, false, nil
	}
	results, err := c.coll.Query(ctx, norm, 1, nil, nil)
	if err != nil || len(results) == 0 {
		if err != nil {
			c.log.Warn(ctx, "cache semantic query failed", "error", err)
		}
		return Entry{}, false, nil
	}
	best := results[0]
	if best.Similarity < c.threshold {
		return Entry{}, false, nil
	}
	raw, found, err = c.exact.GetOK(ctx, best.ID)
	if err != nil || !found {
		// The vector index and the exact store have drifted (e.g. the
		// exact entry expired while the vector entry is still present);
		// treat it as a miss rather than surfacing stale data.
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, fmt.Errorf("cache: decode semantic entry: %w", err)
	}
	e.Key = best.ID
	c.log.Debug(ctx, "cache semantic hit", "key", best.ID, "similarity", fmt.Sprintf("%.3f", best.Similarity))
	go c.bumpHit(best.ID)
	return e, true, nil
}

// bumpHit updates an entry's hit counter and last-hit timestamp off the
// request path, per the cache's "a hit updates ... asynchronously"
// contract. It uses a background context since the request that triggered
// the hit may already be winding down by the time this runs.
func (c *Cache) bumpHit(key string) {
	ctx := context.Background()
	raw, found, err := c.exact.GetOK(ctx, key)
	if err != nil || !found {
		return
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return
	}
	e.HitCount++
	e.LastHitAt = time.Now().UTC()
	updated, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.exact.Set(ctx, key, updated, c.ttl); err != nil {
		c.log.Warn(ctx, "cache: failed to record hit", "key", key, "error", err)
	}
	c.mu.Lock()
	for i, k := range c.order {
		if k == key {
			c.order = append(append(c.order[:i:i], c.order[i+1:]...), key)
			break
		}
	}
	c.mu.Unlock()
}

// Store admits a routing decision for prompt into both the exact and
// semantic indexes. Calling Store twice with the same normalized text does
// not duplicate the entry: the existing entry's creation timestamp is kept
// and its hit counter is incremented rather than the entry being replaced
// wholesale.
func (c *Cache) Store(ctx context.Context, prompt string, decision json.RawMessage) error {
	norm := normalize(prompt)
	key := hashKey(norm)

	entry := Entry{Prompt: norm, Decision: decision, StoredAt: time.Now().UTC()}
	existingRaw, found, err := c.exact.GetOK(ctx, key)
	if err != nil {
		return fmt.Errorf("cache: read existing entry: %w", err)
	}
	if found {
		var existing Entry
		if err := json.Unmarshal(existingRaw, &existing); err == nil {
			entry.StoredAt = existing.StoredAt
			entry.HitCount = existing.HitCount + 1
			entry.LastHitAt = time.Now().UTC()
		}
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	if err := c.exact.Set(ctx, key, raw, c.ttl); err != nil {
		return fmt.Errorf("cache: store exact entry: %w", err)
	}
	if found || c.coll == nil {
		return nil
	}
	if err := c.coll.AddDocument(ctx, chromem.Document{ID: key, Content: norm}); err != nil {
		c.log.Warn(ctx, "cache: store semantic entry failed", "error", err)
		return nil
	}
	c.mu.Lock()
	c.order = append(c.order, key)
	for len(c.order) > c.maxEntries {
		stale := c.order[0]
		c.order = c.order[1:]
		_ = c.coll.Delete(ctx, nil, nil, stale)
		_ = c.exact.Delete(ctx, stale)
	}
	c.mu.Unlock()
	return nil
}

// Stats summarizes the exact-match index: total entry count and the sum of
// every entry's hit counter.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	keys, err := c.exact.Keys(ctx, cacheKeyPrefix)
	if err != nil {
		return Stats{}, fmt.Errorf("cache: list keys: %w", err)
	}
	stats := Stats{Entries: len(keys)}
	for _, key := range keys {
		raw, found, err := c.exact.GetOK(ctx, key)
		if err != nil || !found {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		stats.TotalHits += e.HitCount
	}
	return stats, nil
}

// List returns every entry currently in the exact-match index, for
// administrative inspection.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	keys, err := c.exact.Keys(ctx, cacheKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("cache: list keys: %w", err)
	}
	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		raw, found, err := c.exact.GetOK(ctx, key)
		if err != nil || !found {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		e.Key = key
		entries = append(entries, e)
	}
	return entries, nil
}

// Evict removes the entry for the given normalized-prompt cache key (as
// produced by hashKey, and returned alongside each Entry via List/Lookup's
// exact-match ID) from both the exact and semantic indexes.
func (c *Cache) Evict(ctx context.Context, key string) error {
	if err := c.exact.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache: evict exact entry: %w", err)
	}
	if c.coll == nil {
		return nil
	}
	_ = c.coll.Delete(ctx, nil, nil, key)
	c.mu.Lock()
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return nil
}

func normalize(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(prompt))), " ")
}

func hashKey(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func chromemEmbeddingFunc(p EmbeddingProvider) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := p.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) == 0 {
			return nil, errors.New("cache: embedding provider returned no vectors")
		}
		return vecs[0], nil
	}
}
