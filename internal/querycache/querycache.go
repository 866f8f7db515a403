// Package querycache is the look-aside cache for retrieval results, answers,
// and folder fingerprints. The backing store is external (Redis in
// production, in-memory in tests); every store failure degrades to a cache
// miss so retrieval keeps working with a cold cache.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/opencampus/docqa/internal/models"
)

// Store is the raw key/value surface the cache runs on. Implementations
// report failures by behaving as a miss or no-op; they never propagate
// connectivity errors to callers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	ClearPrefix(ctx context.Context, prefix string) int
	Close() error
}

// Envelope wraps every cached payload with its kind, so a key collision or
// format drift surfaces as a miss instead of a misparse.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

const (
	kindRetrieval   = "retrieval"
	kindAnswer      = "answer"
	kindFingerprint = "fingerprint"
)

// queryKeyLimit bounds how much of the query participates in the key.
const queryKeyLimit = 100

// Cache provides the typed caching operations over a Store.
type Cache struct {
	store          Store
	keyPrefix      string
	ttl            time.Duration
	fingerprintTTL time.Duration
	logger         *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFingerprintTTL overrides the TTL used for fingerprint entries.
func WithFingerprintTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.fingerprintTTL = ttl
		}
	}
}

// New creates a Cache over store. keyPrefix scopes all keys (one deployment
// can share a Redis instance); ttl applies to retrieval and answer entries.
func New(store Store, keyPrefix string, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		store:          store,
		keyPrefix:      keyPrefix,
		ttl:            ttl,
		fingerprintTTL: ttl,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Hits returns the number of cache hits since startup.
func (c *Cache) Hits() int64 { return c.hits.Load() }

// Misses returns the number of cache misses since startup.
func (c *Cache) Misses() int64 { return c.misses.Load() }

// normalizeQuery collapses whitespace, lowercases, and truncates so
// incidental formatting differences map to the same key.
func normalizeQuery(query string) string {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if len(q) > queryKeyLimit {
		q = q[:queryKeyLimit]
	}
	return q
}

func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// RetrievalKey derives the cache key for a (corpus, query, k) retrieval.
func (c *Cache) RetrievalKey(corpus, query string, k int) string {
	return fmt.Sprintf("%s:%s:retrieval:%s", c.keyPrefix, corpus, hashKey(normalizeQuery(query), fmt.Sprint(k)))
}

// retrievalPrefix is the invalidation prefix for one corpus.
func (c *Cache) retrievalPrefix(corpus string) string {
	return fmt.Sprintf("%s:%s:retrieval:", c.keyPrefix, corpus)
}

// AnswerKey derives the cache key for a generated answer within a session.
func (c *Cache) AnswerKey(session, query string) string {
	return fmt.Sprintf("%s:answer:%s:%s", c.keyPrefix, session, hashKey(normalizeQuery(query)))
}

func (c *Cache) fingerprintKey(corpus string) string {
	return fmt.Sprintf("%s:%s:fp", c.keyPrefix, corpus)
}

func (c *Cache) get(ctx context.Context, key, kind string, out any) bool {
	data, ok := c.store.Get(ctx, key)
	if !ok {
		c.misses.Add(1)
		return false
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Kind != kind {
		c.logger.Debug("cache entry rejected",
			zap.String("key", key),
			zap.String("expected_kind", kind))
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

func (c *Cache) set(ctx context.Context, key, kind string, value any, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug("cache payload marshal failed", zap.String("key", key), zap.Error(err))
		return
	}
	data, err := json.Marshal(Envelope{Kind: kind, Payload: payload})
	if err != nil {
		return
	}
	c.store.Set(ctx, key, data, ttl)
}

// GetRetrieval returns the cached retrieval result for key.
func (c *Cache) GetRetrieval(ctx context.Context, key string) (*models.RetrievalResult, bool) {
	var result models.RetrievalResult
	if !c.get(ctx, key, kindRetrieval, &result) {
		return nil, false
	}
	return &result, true
}

// SetRetrieval caches a retrieval result under key.
func (c *Cache) SetRetrieval(ctx context.Context, key string, result *models.RetrievalResult) {
	c.set(ctx, key, kindRetrieval, result, c.ttl)
}

// Answer is the cached payload for a generated answer: the text together
// with the sources that supported it, so a hit serves both.
type Answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources,omitempty"`
}

// GetAnswer returns the cached answer for key.
func (c *Cache) GetAnswer(ctx context.Context, key string) (*Answer, bool) {
	var answer Answer
	if !c.get(ctx, key, kindAnswer, &answer) {
		return nil, false
	}
	return &answer, true
}

// SetAnswer caches a generated answer under key.
func (c *Cache) SetAnswer(ctx context.Context, key string, answer *Answer) {
	c.set(ctx, key, kindAnswer, answer, c.ttl)
}

// GetFingerprint returns the last cached folder fingerprint hash for corpus.
func (c *Cache) GetFingerprint(ctx context.Context, corpus string) (string, bool) {
	var hash string
	if !c.get(ctx, c.fingerprintKey(corpus), kindFingerprint, &hash) {
		return "", false
	}
	return hash, true
}

// SetFingerprint caches the folder fingerprint hash for corpus.
func (c *Cache) SetFingerprint(ctx context.Context, corpus, hash string) {
	c.set(ctx, c.fingerprintKey(corpus), kindFingerprint, hash, c.fingerprintTTL)
}

// InvalidateCorpus clears every retrieval entry for corpus and its cached
// fingerprint, returning the number of entries removed. Called when the
// corpus mutates: the old entries describe an index that no longer exists.
func (c *Cache) InvalidateCorpus(ctx context.Context, corpus string) int {
	c.store.Delete(ctx, c.fingerprintKey(corpus))
	n := c.store.ClearPrefix(ctx, c.retrievalPrefix(corpus))
	if n > 0 {
		c.logger.Debug("retrieval cache invalidated",
			zap.String("corpus", corpus),
			zap.Int("removed", n))
	}
	return n
}

// Close releases the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}
