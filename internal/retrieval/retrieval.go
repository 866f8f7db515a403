// Package retrieval is the public facade the question-answering layer calls:
// one Search composing the query cache, the vector index, and source-name
// extraction.
package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/opencampus/docqa/internal/models"
	"github.com/opencampus/docqa/internal/querycache"
)

// Searcher is the index surface the service reads from.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]models.ScoredChunk, error)
	Corpus() string
}

// Service serves retrieval requests for one corpus, cache-aside.
type Service struct {
	index      Searcher
	cache      *querycache.Cache
	defaultK   int
	maxK       int
	maxSources int
	logger     *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLimits sets the default and maximum k and the source-list cap.
func WithLimits(defaultK, maxK, maxSources int) Option {
	return func(s *Service) {
		if defaultK > 0 {
			s.defaultK = defaultK
		}
		if maxK > 0 {
			s.maxK = maxK
		}
		if maxSources > 0 {
			s.maxSources = maxSources
		}
	}
}

// New creates a Service. cache may be nil for cache-less operation.
func New(index Searcher, cache *querycache.Cache, opts ...Option) *Service {
	s := &Service{
		index:      index,
		cache:      cache,
		defaultK:   5,
		maxK:       50,
		maxSources: 5,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the top-k chunks and their deduplicated source names.
// A cached result is served as-is; on a miss the index is queried and the
// result cached. k <= 0 uses the default, k above the maximum is clamped.
func (s *Service) Search(ctx context.Context, query string, k int) (*models.RetrievalResult, error) {
	if k <= 0 {
		k = s.defaultK
	}
	if k > s.maxK {
		k = s.maxK
	}

	var key string
	if s.cache != nil {
		key = s.cache.RetrievalKey(s.index.Corpus(), query, k)
		if cached, ok := s.cache.GetRetrieval(ctx, key); ok {
			s.logger.Debug("retrieval cache hit",
				zap.String("corpus", s.index.Corpus()),
				zap.Int("k", k))
			return cached, nil
		}
	}

	chunks, err := s.index.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	result := &models.RetrievalResult{
		Chunks:  chunks,
		Sources: extractSources(chunks, s.maxSources),
	}
	if s.cache != nil {
		s.cache.SetRetrieval(ctx, key, result)
	}
	return result, nil
}

// Invalidate clears this corpus's cached retrieval results.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateCorpus(ctx, s.index.Corpus())
	}
}

// extractSources collects source document names from the ranked chunks,
// first-seen order, duplicates collapsed, capped at max.
func extractSources(chunks []models.ScoredChunk, max int) []string {
	seen := make(map[string]struct{}, len(chunks))
	var sources []string
	for _, sc := range chunks {
		name := sc.Chunk.Metadata.FileName
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		sources = append(sources, name)
		if len(sources) >= max {
			break
		}
	}
	return sources
}
