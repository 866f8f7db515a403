// Package fingerprint computes content fingerprints of document folders,
// used to decide whether a persisted index snapshot is stale.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStat is the per-file portion of a folder fingerprint.
type FileStat struct {
	Size  int64 `json:"size"`
	MTime int64 `json:"mtime"` // unix nanoseconds
}

// FolderFingerprint summarizes a folder's file set and modification state.
// Hash is a deterministic function of the sorted Files map: any change to
// the file set, a size, or an mtime changes it.
type FolderFingerprint struct {
	Files map[string]FileStat `json:"files"`
	Hash  string              `json:"hash"`
}

// Tracker computes folder fingerprints, filtered to the given extensions
// (with leading dot, case-insensitive). It has no side effects.
type Tracker struct {
	extensions []string
}

// NewTracker returns a tracker that considers only files with the given
// extensions. An empty list means all regular files count.
func NewTracker(extensions []string) *Tracker {
	return &Tracker{extensions: extensions}
}

// Fingerprint walks folder recursively and returns its fingerprint.
// A missing folder yields an empty fingerprint, not an error, so a corpus
// that has not received any upload yet fingerprints the same as an empty one.
func (t *Tracker) Fingerprint(folder string) (*FolderFingerprint, error) {
	files := make(map[string]FileStat)
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() || !t.matches(path) {
			return nil
		}
		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(folder, path)
		if relErr != nil {
			return relErr
		}
		files[filepath.ToSlash(rel)] = FileStat{
			Size:  info.Size(),
			MTime: info.ModTime().UnixNano(),
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("walk folder: %w", err)
	}
	hash, err := hashFiles(files)
	if err != nil {
		return nil, err
	}
	return &FolderFingerprint{Files: files, Hash: hash}, nil
}

// hashFiles serializes the per-file map with sorted keys (encoding/json sorts
// map keys) and hashes the result.
func hashFiles(files map[string]FileStat) (string, error) {
	data, err := json.Marshal(files)
	if err != nil {
		return "", fmt.Errorf("serialize fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (t *Tracker) matches(path string) bool {
	if len(t.extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range t.extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// Matches reports whether stored describes the same folder state as current.
// A nil stored fingerprint never matches.
func Matches(current, stored *FolderFingerprint) bool {
	if current == nil || stored == nil {
		return false
	}
	return current.Hash == stored.Hash
}

// Save writes fp to path as JSON.
func Save(path string, fp *FolderFingerprint) error {
	data, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write fingerprint: %w", err)
	}
	return nil
}

// Load reads a fingerprint from path. Returns (nil, nil) if the file does not exist.
func Load(path string) (*FolderFingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read fingerprint: %w", err)
	}
	var fp FolderFingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return nil, fmt.Errorf("parse fingerprint: %w", err)
	}
	return &fp, nil
}
