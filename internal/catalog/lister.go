package catalog

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencampus/docqa/internal/fileid"
	"github.com/opencampus/docqa/internal/pipeline"
)

// Lister enumerates corpus files for indexing, resolving stored names back
// to catalog documents so retrieval results show original upload names.
// Files present in the folder without a catalog row (dropped in manually)
// are listed under a path-derived identity.
type Lister struct {
	Catalog    *Catalog
	Extensions []string
}

// ListFiles walks the corpus folder.
func (l *Lister) ListFiles(ctx context.Context) ([]pipeline.FileEntry, error) {
	docs, err := l.Catalog.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byStoredName := make(map[string]*documentIdentity, len(docs))
	for _, d := range docs {
		byStoredName[d.StoredName] = &documentIdentity{id: d.ID, displayName: d.OriginalName}
	}

	var entries []pipeline.FileEntry
	root := l.Catalog.DataDir()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(l.Extensions) > 0 && !pipeline.SupportedFile(path, l.Extensions) {
			return nil
		}
		entry := pipeline.FileEntry{Path: path}
		if ident, ok := byStoredName[filepath.Base(path)]; ok {
			entry.DocID = ident.id
			entry.DisplayName = ident.displayName
		} else {
			entry.DocID = fileid.FileDocID(path)
			entry.DisplayName = filepath.Base(path)
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return entries, nil
}

type documentIdentity struct {
	id          string
	displayName string
}
