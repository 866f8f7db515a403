// Package index owns the per-corpus vector index lifecycle: deciding between
// loading a persisted snapshot and rebuilding from source documents,
// serializing rebuilds, and serving similarity search from an atomically
// swapped snapshot.
package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/opencampus/docqa/internal/embedding"
	"github.com/opencampus/docqa/internal/fingerprint"
	"github.com/opencampus/docqa/internal/models"
	"github.com/opencampus/docqa/internal/pipeline"
	"github.com/opencampus/docqa/internal/vector"
)

// State is the corpus index lifecycle state.
type State int32

const (
	StateLoading State = iota
	StateReady
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRebuilding:
		return "rebuilding"
	default:
		return "unknown"
	}
}

const (
	vectorsFile     = "vectors.bin"
	chunksFile      = "chunks.json"
	fingerprintFile = "fingerprint.json"
)

// FileLister enumerates the corpus files to index. The catalog-backed lister
// surfaces original upload names; the plain directory lister derives IDs
// from file paths.
type FileLister interface {
	ListFiles(ctx context.Context) ([]pipeline.FileEntry, error)
}

// DocumentStore is the document metadata log behind AddDocument and
// DeleteDocument.
type DocumentStore interface {
	Add(ctx context.Context, req models.UploadRequest) (*models.Document, error)
	Delete(ctx context.Context, id string) (*models.Document, error)
}

// FingerprintCache is a TTL cache of the last observed folder fingerprint
// hash, used to short-circuit staleness checks between rebuild triggers.
type FingerprintCache interface {
	GetFingerprint(ctx context.Context, corpus string) (string, bool)
	SetFingerprint(ctx context.Context, corpus, hash string)
}

// snapshot is one immutable generation of the index. Readers hold whichever
// snapshot pointer was current at call time; rebuilds construct a fresh one
// and swap the pointer only after persistence succeeded.
type snapshot struct {
	vectors *vector.Index
	chunks  map[string]models.Chunk
	fp      *fingerprint.FolderFingerprint
}

// Manager orchestrates rebuild-vs-load for one corpus and serves search from
// the current snapshot.
type Manager struct {
	corpus   string
	dataDir  string
	indexDir string

	tracker  *fingerprint.Tracker
	pipe     *pipeline.Pipeline
	embedder embedding.Embedder
	lister   FileLister
	docs     DocumentStore
	fpCache  FingerprintCache
	logger   *zap.Logger

	onSwap func(ctx context.Context)

	rebuildMu sync.Mutex // exclusive per-corpus rebuild

	mu    sync.RWMutex // guards snap and state
	snap  *snapshot
	state State
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDocumentStore wires the document metadata log used by AddDocument and
// DeleteDocument.
func WithDocumentStore(docs DocumentStore) Option {
	return func(m *Manager) { m.docs = docs }
}

// WithFileLister overrides how corpus files are enumerated.
func WithFileLister(l FileLister) Option {
	return func(m *Manager) {
		if l != nil {
			m.lister = l
		}
	}
}

// WithFingerprintCache enables the cached staleness short-circuit.
func WithFingerprintCache(c FingerprintCache) Option {
	return func(m *Manager) { m.fpCache = c }
}

// WithOnSwap registers a hook invoked after every successful snapshot swap,
// used to invalidate retrieval caches that reference the replaced index.
func WithOnSwap(fn func(ctx context.Context)) Option {
	return func(m *Manager) { m.onSwap = fn }
}

// NewManager creates a Manager for one corpus.
func NewManager(corpus, dataDir, indexDir string, tracker *fingerprint.Tracker, pipe *pipeline.Pipeline, embedder embedding.Embedder, opts ...Option) *Manager {
	m := &Manager{
		corpus:   corpus,
		dataDir:  dataDir,
		indexDir: indexDir,
		tracker:  tracker,
		pipe:     pipe,
		embedder: embedder,
		logger:   zap.NewNop(),
		state:    StateLoading,
	}
	m.lister = &DirLister{Dir: dataDir}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Corpus returns the corpus name.
func (m *Manager) Corpus() string { return m.corpus }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Size returns the chunk count of the current snapshot, 0 if none.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snap == nil {
		return 0
	}
	return len(m.snap.chunks)
}

// Initialize loads the persisted snapshot when its fingerprint still matches
// the corpus folder, and rebuilds otherwise. Called once at startup.
func (m *Manager) Initialize(ctx context.Context) error {
	current, err := m.tracker.Fingerprint(m.dataDir)
	if err != nil {
		return &BuildError{Corpus: m.corpus, Err: err}
	}
	stored, err := fingerprint.Load(filepath.Join(m.indexDir, fingerprintFile))
	if err != nil {
		m.logger.Warn("fingerprint load failed, rebuilding",
			zap.String("corpus", m.corpus),
			zap.Error(err))
	}
	if stored != nil && fingerprint.Matches(current, stored) {
		if err := m.loadSnapshot(stored); err == nil {
			m.logger.Info("loaded persisted index",
				zap.String("corpus", m.corpus),
				zap.Int("chunks", m.Size()))
			return nil
		} else {
			m.logger.Warn("snapshot load failed, rebuilding",
				zap.String("corpus", m.corpus),
				zap.Error(err))
		}
	}
	return m.Rebuild(ctx)
}

func (m *Manager) loadSnapshot(fp *fingerprint.FolderFingerprint) error {
	ix, err := vector.NewIndex(m.embedder.Dimensions())
	if err != nil {
		return err
	}
	if err := ix.Load(filepath.Join(m.indexDir, vectorsFile)); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(m.indexDir, chunksFile))
	if err != nil {
		return err
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return fmt.Errorf("parse chunk table: %w", err)
	}
	if ix.Size() != len(chunks) {
		return fmt.Errorf("snapshot inconsistent: %d vectors, %d chunks", ix.Size(), len(chunks))
	}
	table := make(map[string]models.Chunk, len(chunks))
	for _, c := range chunks {
		table[c.ID] = c
	}
	m.swap(&snapshot{vectors: ix, chunks: table, fp: fp})
	return nil
}

// Rebuild re-extracts, re-chunks, and re-embeds every corpus file, persists
// the new snapshot, then swaps it in. On any failure the previous snapshot
// remains authoritative. The per-corpus rebuild lock serializes concurrent
// callers; search is never blocked by a rebuild.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.setState(StateRebuilding)
	err := m.rebuildLocked(ctx)
	if err != nil {
		m.logger.Warn("rebuild failed, previous snapshot remains authoritative",
			zap.String("corpus", m.corpus),
			zap.Error(err))
		// Ready only if something older is still servable.
		m.mu.Lock()
		if m.snap != nil {
			m.state = StateReady
		} else {
			m.state = StateLoading
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) rebuildLocked(ctx context.Context) error {
	current, err := m.tracker.Fingerprint(m.dataDir)
	if err != nil {
		return &BuildError{Corpus: m.corpus, Err: err}
	}
	files, err := m.lister.ListFiles(ctx)
	if err != nil {
		return &BuildError{Corpus: m.corpus, Err: err}
	}

	chunks, failures, err := m.pipe.ProcessBatch(ctx, files)
	if err != nil {
		return &BuildError{Corpus: m.corpus, Err: err}
	}
	for _, f := range failures {
		m.logger.Warn("file excluded from index",
			zap.String("corpus", m.corpus),
			zap.String("path", f.Path),
			zap.Error(f.Err))
	}

	ix, err := vector.NewIndex(m.embedder.Dimensions())
	if err != nil {
		return &BuildError{Corpus: m.corpus, Err: err}
	}
	table := make(map[string]models.Chunk, len(chunks))
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
			ids[i] = c.ID
			table[c.ID] = c
		}
		vectors, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return &BuildError{Corpus: m.corpus, Err: fmt.Errorf("embed chunks: %w", err)}
		}
		if err := ix.Add(ctx, ids, vectors); err != nil {
			return &BuildError{Corpus: m.corpus, Err: err}
		}
	}

	snap := &snapshot{vectors: ix, chunks: table, fp: current}
	if err := m.persist(snap); err != nil {
		return err
	}
	m.swap(snap)
	if m.fpCache != nil {
		m.fpCache.SetFingerprint(ctx, m.corpus, current.Hash)
	}
	if m.onSwap != nil {
		m.onSwap(ctx)
	}
	m.logger.Info("index rebuilt",
		zap.String("corpus", m.corpus),
		zap.Int("files", len(files)),
		zap.Int("failed_files", len(failures)),
		zap.Int("chunks", len(table)))
	return nil
}

// persist writes the snapshot files before the in-memory swap. Each file is
// written to a temp name and renamed so a crash mid-write never leaves a
// half-written file under the canonical name.
func (m *Manager) persist(snap *snapshot) error {
	if err := os.MkdirAll(m.indexDir, 0755); err != nil {
		return &PersistenceError{Path: m.indexDir, Err: err}
	}

	vecPath := filepath.Join(m.indexDir, vectorsFile)
	if err := snap.vectors.Save(vecPath + ".tmp"); err != nil {
		return &PersistenceError{Path: vecPath, Err: err}
	}
	if err := os.Rename(vecPath+".tmp", vecPath); err != nil {
		return &PersistenceError{Path: vecPath, Err: err}
	}

	chunks := make([]models.Chunk, 0, len(snap.chunks))
	for _, c := range snap.chunks {
		chunks = append(chunks, c)
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return &PersistenceError{Path: chunksFile, Err: err}
	}
	chunkPath := filepath.Join(m.indexDir, chunksFile)
	if err := os.WriteFile(chunkPath+".tmp", data, 0644); err != nil {
		return &PersistenceError{Path: chunkPath, Err: err}
	}
	if err := os.Rename(chunkPath+".tmp", chunkPath); err != nil {
		return &PersistenceError{Path: chunkPath, Err: err}
	}

	fpPath := filepath.Join(m.indexDir, fingerprintFile)
	if err := fingerprint.Save(fpPath+".tmp", snap.fp); err != nil {
		return &PersistenceError{Path: fpPath, Err: err}
	}
	if err := os.Rename(fpPath+".tmp", fpPath); err != nil {
		return &PersistenceError{Path: fpPath, Err: err}
	}
	return nil
}

func (m *Manager) swap(snap *snapshot) {
	m.mu.Lock()
	m.snap = snap
	m.state = StateReady
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) current() *snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

// RebuildIfStale rebuilds only when the corpus folder no longer matches the
// serving snapshot's fingerprint. A fresh cache entry matching the serving
// snapshot is trusted without walking the folder, bounding repeated checks on
// large corpora to the cache TTL.
func (m *Manager) RebuildIfStale(ctx context.Context) error {
	if m.fpCache != nil {
		if hash, ok := m.fpCache.GetFingerprint(ctx, m.corpus); ok {
			if snap := m.current(); snap != nil && snap.fp != nil && snap.fp.Hash == hash {
				return nil
			}
		}
	}
	current, err := m.tracker.Fingerprint(m.dataDir)
	if err != nil {
		return &BuildError{Corpus: m.corpus, Err: err}
	}
	snap := m.current()
	if snap != nil && fingerprint.Matches(current, snap.fp) {
		if m.fpCache != nil {
			m.fpCache.SetFingerprint(ctx, m.corpus, current.Hash)
		}
		return nil
	}
	return m.Rebuild(ctx)
}

// AddDocument records the upload in the document log, then rebuilds.
// Identical active content resolves to the existing document without growing
// the corpus.
func (m *Manager) AddDocument(ctx context.Context, req models.UploadRequest) (*models.Document, error) {
	if m.docs == nil {
		return nil, fmt.Errorf("no document store configured for corpus %s", m.corpus)
	}
	doc, err := m.docs.Add(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := m.Rebuild(ctx); err != nil {
		// The document is recorded; the index catches up on the next rebuild.
		m.logger.Warn("rebuild after upload failed",
			zap.String("corpus", m.corpus),
			zap.String("document", doc.ID),
			zap.Error(err))
	}
	return doc, nil
}

// DeleteDocument soft-deletes the document, then rebuilds.
func (m *Manager) DeleteDocument(ctx context.Context, id string) error {
	if m.docs == nil {
		return fmt.Errorf("no document store configured for corpus %s", m.corpus)
	}
	if _, err := m.docs.Delete(ctx, id); err != nil {
		return err
	}
	if err := m.Rebuild(ctx); err != nil {
		m.logger.Warn("rebuild after delete failed",
			zap.String("corpus", m.corpus),
			zap.String("document", id),
			zap.Error(err))
	}
	return nil
}

// Search embeds the query and returns the top-k chunks from the current
// snapshot. Returns ErrNotReady if no snapshot has ever completed building.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	snap := m.current()
	if snap == nil {
		return nil, ErrNotReady
	}
	queryVec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := snap.vectors.Search(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}
	results := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		chunk, ok := snap.chunks[h.ID]
		if !ok {
			continue
		}
		results = append(results, models.ScoredChunk{Chunk: chunk, Score: h.Score})
	}
	return results, nil
}
