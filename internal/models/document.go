// Package models defines core data structures for documents, chunks, and retrieval results.
package models

import "time"

// DocumentStatus is the lifecycle state of a catalog document.
type DocumentStatus string

const (
	StatusActive  DocumentStatus = "active"
	StatusDeleted DocumentStatus = "deleted"
)

// Document is one entry in the corpus metadata log. Identity is ContentHash:
// two uploads with identical content and active status resolve to the same
// logical document. Deleted documents keep their row (status flip) while the
// stored file is removed from disk.
type Document struct {
	ID           string         `json:"id" db:"id"`
	OriginalName string         `json:"original_name" db:"original_name"`
	StoredName   string         `json:"stored_name" db:"stored_name"`
	ContentHash  string         `json:"content_hash" db:"content_hash"`
	SizeBytes    int64          `json:"size_bytes" db:"size_bytes"`
	Title        string         `json:"title" db:"title"`
	Description  string         `json:"description,omitempty" db:"description"`
	Tags         []string       `json:"tags,omitempty" db:"tags"`
	UploadTime   time.Time      `json:"upload_time" db:"upload_time"`
	DeletedTime  *time.Time     `json:"deleted_time,omitempty" db:"deleted_time"`
	Status       DocumentStatus `json:"status" db:"status"`
}

// Active reports whether the document is part of the live corpus.
func (d *Document) Active() bool {
	return d.Status == StatusActive
}
