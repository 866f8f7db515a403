// Package pipeline runs extraction and chunking over batches of corpus files
// with bounded parallelism.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/opencampus/docqa/internal/chunker"
	"github.com/opencampus/docqa/internal/extract"
	"github.com/opencampus/docqa/internal/models"
)

// FileEntry is one file scheduled for processing. DisplayName is what shows
// up as a source in retrieval results; for uploaded documents it is the
// original upload name rather than the content-hashed stored name.
type FileEntry struct {
	Path        string
	DisplayName string
	DocID       string
}

// FileError records a per-file processing failure. Failed files are excluded
// from the batch result without aborting sibling files.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("process %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Pipeline extracts and chunks files.
type Pipeline struct {
	extractor  *extract.Extractor
	chunker    *chunker.Chunker
	maxWorkers int
	minText    int
	logger     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMinTextLength skips documents whose extracted text is shorter than n
// characters. Skipped files produce no chunks and no failure.
func WithMinTextLength(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.minText = n
		}
	}
}

// WithMaxWorkers bounds concurrent file processing.
func WithMaxWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxWorkers = n
		}
	}
}

// New creates a Pipeline.
func New(extractor *extract.Extractor, ch *chunker.Chunker, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:  extractor,
		chunker:    ch,
		maxWorkers: 4,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessBatch extracts and chunks every file in the batch. Per-file failures
// are collected and returned alongside the chunks of the files that
// succeeded; only context cancellation aborts the batch. Chunk order follows
// the input file order, with each document's chunks in sequence order.
func (p *Pipeline) ProcessBatch(ctx context.Context, files []FileEntry) ([]models.Chunk, []FileError, error) {
	type result struct {
		idx    int
		chunks []models.Chunk
	}

	var (
		mu       sync.Mutex
		results  []result
		failures []FileError
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunks, err := p.processFile(ctx, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("file processing failed",
					zap.String("path", f.Path),
					zap.Error(err))
				failures = append(failures, FileError{Path: f.Path, Err: err})
				return nil
			}
			results = append(results, result{idx: i, chunks: chunks})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].idx < results[b].idx })
	var chunks []models.Chunk
	for _, r := range results {
		chunks = append(chunks, r.chunks...)
	}
	return chunks, failures, nil
}

func (p *Pipeline) processFile(ctx context.Context, f FileEntry) ([]models.Chunk, error) {
	res, err := p.extractor.Extract(ctx, f.Path)
	if err != nil {
		return nil, err
	}
	if p.minText > 0 && len(strings.TrimSpace(res.Text)) < p.minText {
		p.logger.Debug("skipping short document",
			zap.String("path", f.Path),
			zap.Int("length", len(res.Text)))
		return nil, nil
	}
	meta := models.ChunkMetadata{
		FileName: f.DisplayName,
		FilePath: f.Path,
		FileType: string(res.Kind),
		Encoding: res.Encoding,
	}
	if meta.FileName == "" {
		meta.FileName = filepath.Base(f.Path)
	}
	chunks := p.chunker.Chunk(f.DocID, res.Text, meta)
	p.logger.Debug("processed file",
		zap.String("path", f.Path),
		zap.String("kind", string(res.Kind)),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// SupportedFile reports whether ext (with leading dot) is one of the allowed
// extensions.
func SupportedFile(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
