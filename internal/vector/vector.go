// Package vector provides an in-memory vector index with brute-force inner
// product search and a compact binary persistence format.
package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Result is a single vector search hit; ID is the chunk ID.
type Result struct {
	ID    string
	Score float64 // inner product; cosine similarity for normalized vectors
}

// Index stores vectors and serves top-k similarity search. Brute force scan
// is adequate at corpus scale (thousands of chunks); all vectors are assumed
// L2-normalized so inner product equals cosine similarity.
type Index struct {
	mu         sync.RWMutex
	dimensions int
	ids        []string
	vectors    [][]float32
}

// NewIndex creates an empty index of the given dimension.
func NewIndex(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &Index{dimensions: dimensions}, nil
}

// Dimensions returns the vector dimension.
func (ix *Index) Dimensions() int { return ix.dimensions }

// Add appends vectors under the given IDs. Input slices are copied.
func (ix *Index) Add(_ context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, id := range ids {
		if len(vectors[i]) != ix.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), ix.dimensions)
		}
		vec := make([]float32, ix.dimensions)
		copy(vec, vectors[i])
		ix.ids = append(ix.ids, id)
		ix.vectors = append(ix.vectors, vec)
	}
	return nil
}

// Search returns the top-k entries by inner product with query, descending.
// Ties are broken by ID so results are deterministic.
func (ix *Index) Search(_ context.Context, query []float32, k int) ([]Result, error) {
	if len(query) != ix.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), ix.dimensions)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if k <= 0 || len(ix.ids) == 0 {
		return nil, nil
	}
	results := make([]Result, len(ix.ids))
	for i, vec := range ix.vectors {
		var dot float64
		for j := 0; j < ix.dimensions; j++ {
			dot += float64(query[j]) * float64(vec[j])
		}
		results[i] = Result{ID: ix.ids[i], Score: dot}
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].ID < results[b].ID
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Size returns the number of stored vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// Save writes the index to path. Layout, all little-endian: dimension
// (uint32), count (uint32), then per vector: id length (uint32), id bytes,
// dimension float32 values.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	if err := binary.Write(f, binary.LittleEndian, uint32(ix.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(ix.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range ix.ids {
		if err := binary.Write(f, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id length: %w", err)
		}
		if _, err := f.Write([]byte(id)); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, ix.vectors[i]); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads an index from path, replacing current contents. The stored
// dimension must match. A missing file leaves the index unchanged.
func (ix *Index) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var dim, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != ix.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, ix.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	ids := make([]string, 0, count)
	vectors := make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		var idLen uint32
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id length: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		vec := make([]float32, ix.dimensions)
		if err := binary.Read(f, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		ids = append(ids, string(idBytes))
		vectors = append(vectors, vec)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.ids = ids
	ix.vectors = vectors
	return nil
}

// CosineSimilarity returns the clamped cosine similarity of two normalized
// vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return math.Max(0, math.Min(1, dot))
}
