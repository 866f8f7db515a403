package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/opencampus/docqa/internal/chunker"
	"github.com/opencampus/docqa/internal/embedding"
	"github.com/opencampus/docqa/internal/extract"
	"github.com/opencampus/docqa/internal/fingerprint"
	"github.com/opencampus/docqa/internal/models"
	"github.com/opencampus/docqa/internal/pipeline"
)

func newTestManager(t *testing.T, dataDir, indexDir string, opts ...Option) *Manager {
	t.Helper()
	pipe := pipeline.New(extract.NewExtractor(), chunker.NewChunker(512, 256, 150))
	return NewManager("test", dataDir, indexDir,
		fingerprint.NewTracker([]string{".txt"}),
		pipe,
		embedding.NewMockEmbedder(64),
		opts...)
}

func writeCorpusFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestManager_InitializeEmptyCorpus(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"))

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if m.State() != StateReady {
		t.Errorf("state = %s, want ready", m.State())
	}
	results, err := m.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search on empty ready index: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestManager_SearchBeforeInitialize(t *testing.T) {
	m := newTestManager(t, t.TempDir(), t.TempDir())
	_, err := m.Search(context.Background(), "query", 5)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestManager_RebuildAndSearch(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	writeCorpusFile(t, dataDir, "info.txt", "The campus library opens at eight in the morning.")

	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if m.Size() == 0 {
		t.Fatal("expected chunks after rebuild")
	}

	results, err := m.Search(context.Background(), "library opening hours", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].Chunk.Metadata.FileName != "info.txt" {
		t.Errorf("source = %q, want info.txt", results[0].Chunk.Metadata.FileName)
	}
}

func TestManager_InitializeLoadsMatchingSnapshot(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	indexDir := filepath.Join(t.TempDir(), "index")
	writeCorpusFile(t, dataDir, "a.txt", "Persistent corpus content for loading.")

	first := newTestManager(t, dataDir, indexDir)
	if err := first.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	size := first.Size()

	// A second manager over the same dirs should load, not rebuild. Detect
	// rebuild by giving it a lister that fails: load path never lists files.
	second := newTestManager(t, dataDir, indexDir, WithFileLister(failingLister{}))
	if err := second.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize should load snapshot: %v", err)
	}
	if second.Size() != size {
		t.Errorf("loaded size = %d, want %d", second.Size(), size)
	}
}

type failingLister struct{}

func (failingLister) ListFiles(context.Context) ([]pipeline.FileEntry, error) {
	return nil, errors.New("lister should not be called")
}

func TestManager_InitializeRebuildsOnChangedCorpus(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	indexDir := filepath.Join(t.TempDir(), "index")
	writeCorpusFile(t, dataDir, "a.txt", "Original content here.")

	first := newTestManager(t, dataDir, indexDir)
	if err := first.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	writeCorpusFile(t, dataDir, "b.txt", "A second document arrives.")

	second := newTestManager(t, dataDir, indexDir)
	if err := second.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if second.Size() <= first.Size() {
		t.Errorf("expected rebuild to pick up new file: %d <= %d", second.Size(), first.Size())
	}
}

func TestManager_FailedRebuildKeepsPreviousSnapshot(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	writeCorpusFile(t, dataDir, "a.txt", "Stable corpus content.")

	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	sizeBefore := m.Size()

	// Swap in a lister that fails, forcing the next rebuild to error.
	m.lister = failingLister{}
	if err := m.Rebuild(context.Background()); err == nil {
		t.Fatal("expected rebuild error")
	}
	if m.State() != StateReady {
		t.Errorf("state = %s, want ready (previous snapshot serving)", m.State())
	}
	if m.Size() != sizeBefore {
		t.Errorf("size changed after failed rebuild: %d != %d", m.Size(), sizeBefore)
	}
	if _, err := m.Search(context.Background(), "corpus", 3); err != nil {
		t.Errorf("search should still serve previous snapshot: %v", err)
	}
}

func TestManager_RebuildIfStale(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	writeCorpusFile(t, dataDir, "a.txt", "First version of the corpus.")

	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// Unchanged corpus: no rebuild happens (lister failure would surface).
	m.lister = failingLister{}
	if err := m.RebuildIfStale(context.Background()); err != nil {
		t.Fatalf("RebuildIfStale on fresh corpus: %v", err)
	}

	// Changed corpus: rebuild runs.
	m.lister = &DirLister{Dir: dataDir, Extensions: []string{".txt"}}
	writeCorpusFile(t, dataDir, "b.txt", "Another document appears with plenty of text.")
	if err := m.RebuildIfStale(context.Background()); err != nil {
		t.Fatalf("RebuildIfStale after change: %v", err)
	}
	if m.Size() < 2 {
		t.Errorf("expected chunks from both files, got %d", m.Size())
	}
}

type memFingerprintCache struct {
	mu sync.Mutex
	m  map[string]string
}

func (c *memFingerprintCache) GetFingerprint(_ context.Context, corpus string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.m[corpus]
	return h, ok
}

func (c *memFingerprintCache) SetFingerprint(_ context.Context, corpus, hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[corpus] = hash
}

func TestManager_FingerprintCacheShortCircuits(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	writeCorpusFile(t, dataDir, "a.txt", "Cached fingerprint corpus.")

	cache := &memFingerprintCache{m: make(map[string]string)}
	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"), WithFingerprintCache(cache))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, ok := cache.GetFingerprint(context.Background(), "test"); !ok {
		t.Fatal("rebuild should populate the fingerprint cache")
	}

	m.lister = failingLister{}
	if err := m.RebuildIfStale(context.Background()); err != nil {
		t.Errorf("cached fingerprint should short-circuit: %v", err)
	}
}

func TestManager_FreshCacheEntrySkipsFolderScan(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	writeCorpusFile(t, dataDir, "a.txt", "Initial corpus content for the scan test.")

	cache := &memFingerprintCache{m: make(map[string]string)}
	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"), WithFingerprintCache(cache))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	size := m.Size()

	// The folder changes, but the cache entry is still fresh: the check
	// trusts it and returns without scanning the folder or rebuilding.
	writeCorpusFile(t, dataDir, "b.txt", "A new file lands within the cache TTL window.")
	if err := m.RebuildIfStale(context.Background()); err != nil {
		t.Fatalf("RebuildIfStale with fresh cache entry: %v", err)
	}
	if m.Size() != size {
		t.Errorf("rebuild ran despite fresh cache entry: size %d != %d", m.Size(), size)
	}

	// Entry expired: the scan sees the new file and rebuilds.
	cache.mu.Lock()
	delete(cache.m, "test")
	cache.mu.Unlock()
	if err := m.RebuildIfStale(context.Background()); err != nil {
		t.Fatalf("RebuildIfStale after expiry: %v", err)
	}
	if m.Size() <= size {
		t.Errorf("expected rebuild after cache expiry, size still %d", m.Size())
	}
}

type memDocStore struct {
	mu      sync.Mutex
	dataDir string
	docs    map[string]*models.Document
}

func (s *memDocStore) Add(_ context.Context, req models.UploadRequest) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "doc-" + req.OriginalName
	path := filepath.Join(s.dataDir, req.OriginalName)
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, req.Content, 0644); err != nil {
		return nil, err
	}
	doc := &models.Document{ID: id, OriginalName: req.OriginalName, StoredName: req.OriginalName, Status: models.StatusActive}
	s.docs[id] = doc
	return doc, nil
}

func (s *memDocStore) Delete(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	doc.Status = models.StatusDeleted
	_ = os.Remove(filepath.Join(s.dataDir, doc.StoredName))
	return doc, nil
}

func TestManager_AddAndDeleteDocument(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	store := &memDocStore{dataDir: dataDir, docs: make(map[string]*models.Document)}

	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"), WithDocumentStore(store))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	doc, err := m.AddDocument(context.Background(), models.UploadRequest{
		OriginalName: "notes.txt",
		Content:      []byte("Uploaded document content for the index."),
	})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if m.Size() == 0 {
		t.Fatal("index should contain the uploaded document")
	}

	if err := m.DeleteDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if m.Size() != 0 {
		t.Errorf("index should be empty after delete, size = %d", m.Size())
	}
}

func TestManager_OnSwapHook(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	writeCorpusFile(t, dataDir, "a.txt", "Hook trigger content.")

	calls := 0
	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"),
		WithOnSwap(func(context.Context) { calls++ }))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if calls != 1 {
		t.Errorf("swap hook calls = %d, want 1", calls)
	}
}

func TestManager_ConcurrentSearchDuringRebuild(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	writeCorpusFile(t, dataDir, "a.txt", "Concurrent access corpus content.")

	m := newTestManager(t, dataDir, filepath.Join(t.TempDir(), "index"))
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := m.Search(context.Background(), "corpus content", 3); err != nil {
					t.Errorf("Search: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Rebuild(context.Background()); err != nil {
				t.Errorf("Rebuild: %v", err)
			}
		}()
	}
	wg.Wait()
}
