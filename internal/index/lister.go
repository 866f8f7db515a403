package index

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencampus/docqa/internal/fileid"
	"github.com/opencampus/docqa/internal/pipeline"
)

// DirLister enumerates supported files directly from a corpus folder.
// Document IDs are derived from file paths, so a file dropped into the
// folder without going through the upload API still gets a stable identity.
type DirLister struct {
	Dir        string
	Extensions []string
}

// ListFiles walks the folder recursively. A missing folder yields an empty
// list.
func (l *DirLister) ListFiles(_ context.Context) ([]pipeline.FileEntry, error) {
	var entries []pipeline.FileEntry
	err := filepath.WalkDir(l.Dir, func(path string, d fs.DirEntry, walkErr error) error {
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
		entries = append(entries, pipeline.FileEntry{
			Path:        path,
			DisplayName: filepath.Base(path),
			DocID:       fileid.FileDocID(path),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return entries, nil
}
