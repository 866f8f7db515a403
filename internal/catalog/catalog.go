// Package catalog is the document metadata log for one corpus: a SQLite
// append-mostly table of uploads keyed by content hash, the stored files on
// disk, and a bleve index over titles, descriptions, and tags.
package catalog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/opencampus/docqa/internal/models"
)

// ErrNotFound is returned when no active document matches the given ID.
var ErrNotFound = errors.New("document not found")

// Catalog records uploads for one corpus. Identity is the content hash: an
// upload whose bytes match an active document returns that document instead
// of inserting a duplicate. Deletion flips status and removes the stored
// file; the row is never removed.
type Catalog struct {
	db      *sql.DB
	titles  *TitleIndex
	dataDir string
	logger  *zap.Logger

	addMu sync.Mutex // serializes the hash-check-then-insert in Add
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTitleIndex wires the metadata search index. Without it, SearchMeta
// returns an error.
func WithTitleIndex(t *TitleIndex) Option {
	return func(c *Catalog) { c.titles = t }
}

// New opens or creates the catalog database at dbPath. Uploaded files are
// stored under dataDir. Parent directories are created as needed.
func New(dbPath, dataDir string, opts ...Option) (*Catalog, error) {
	for _, dir := range []string{filepath.Dir(dbPath), dataDir} {
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create directory %s: %w", dir, err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	c := &Catalog{db: db, dataDir: dataDir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		original_name TEXT NOT NULL,
		stored_name TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		title TEXT,
		description TEXT,
		tags TEXT,
		upload_time TIMESTAMP NOT NULL,
		deleted_time TIMESTAMP,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_hash_status ON documents(content_hash, status);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_active_hash
		ON documents(content_hash) WHERE status = 'active';
	`
	_, err := db.Exec(schema)
	return err
}

// DataDir returns the folder holding the stored files.
func (c *Catalog) DataDir() string { return c.dataDir }

// Add records an upload. If an active document with identical content
// already exists, it is returned unchanged and nothing is written. Safe for
// concurrent use; simultaneous identical uploads resolve to one document.
func (c *Catalog) Add(ctx context.Context, req models.UploadRequest) (*models.Document, error) {
	c.addMu.Lock()
	defer c.addMu.Unlock()

	sum := sha256.Sum256(req.Content)
	hash := hex.EncodeToString(sum[:])

	if existing, err := c.getByHash(ctx, hash); err != nil {
		return nil, err
	} else if existing != nil {
		c.logger.Info("duplicate upload resolved to existing document",
			zap.String("document", existing.ID),
			zap.String("original_name", req.OriginalName))
		return existing, nil
	}

	now := time.Now().UTC()
	doc := &models.Document{
		ID:           uuid.New().String(),
		OriginalName: req.OriginalName,
		StoredName:   storedName(now, req.OriginalName),
		ContentHash:  hash,
		SizeBytes:    int64(len(req.Content)),
		Title:        req.Title,
		Description:  req.Description,
		Tags:         req.Tags,
		UploadTime:   now,
		Status:       models.StatusActive,
	}
	if doc.Title == "" {
		doc.Title = req.OriginalName
	}

	path := filepath.Join(c.dataDir, doc.StoredName)
	if err := os.WriteFile(path, req.Content, 0644); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	tagsJSON, err := json.Marshal(doc.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO documents (id, original_name, stored_name, content_hash, size_bytes,
		                        title, description, tags, upload_time, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OriginalName, doc.StoredName, doc.ContentHash, doc.SizeBytes,
		doc.Title, doc.Description, string(tagsJSON), doc.UploadTime, string(doc.Status),
	)
	if err != nil {
		_ = os.Remove(path)
		// The unique index on active content hashes also covers writers
		// outside this process; losing that race resolves to their row.
		if existing, hashErr := c.getByHash(ctx, hash); hashErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("insert document: %w", err)
	}

	if c.titles != nil {
		if err := c.titles.Index(doc); err != nil {
			c.logger.Warn("title index update failed",
				zap.String("document", doc.ID),
				zap.Error(err))
		}
	}
	return doc, nil
}

// storedName prefixes the sanitized original name with an upload timestamp
// so repeated uploads of same-named (different-content) files never collide.
func storedName(t time.Time, original string) string {
	base := filepath.Base(original)
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)
	return t.Format("20060102T150405.000000000") + "_" + base
}

// Delete soft-deletes the document and removes its stored file. The row
// stays in the log with deleted status.
func (c *Catalog) Delete(ctx context.Context, id string) (*models.Document, error) {
	doc, err := c.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.Active() {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, deleted_time = ? WHERE id = ? AND status = ?`,
		string(models.StatusDeleted), now, id, string(models.StatusActive),
	)
	if err != nil {
		return nil, fmt.Errorf("mark deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	doc.Status = models.StatusDeleted
	doc.DeletedTime = &now

	if err := os.Remove(filepath.Join(c.dataDir, doc.StoredName)); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("stored file removal failed",
			zap.String("document", doc.ID),
			zap.String("stored_name", doc.StoredName),
			zap.Error(err))
	}
	if c.titles != nil {
		if err := c.titles.Remove(doc.ID); err != nil {
			c.logger.Warn("title index removal failed",
				zap.String("document", doc.ID),
				zap.Error(err))
		}
	}
	return doc, nil
}

func (c *Catalog) getByHash(ctx context.Context, hash string) (*models.Document, error) {
	row := c.db.QueryRowContext(ctx,
		selectColumns+` FROM documents WHERE content_hash = ? AND status = ?`,
		hash, string(models.StatusActive))
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

// GetByID returns the document with the given ID, active or deleted.
func (c *Catalog) GetByID(ctx context.Context, id string) (*models.Document, error) {
	row := c.db.QueryRowContext(ctx, selectColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return doc, err
}

// ListActive returns all active documents, newest first.
func (c *Catalog) ListActive(ctx context.Context) ([]*models.Document, error) {
	rows, err := c.db.QueryContext(ctx,
		selectColumns+` FROM documents WHERE status = ? ORDER BY upload_time DESC`,
		string(models.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CountActive returns the number of active documents.
func (c *Catalog) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE status = ?`,
		string(models.StatusActive)).Scan(&count)
	return count, err
}

// Stats summarizes the active corpus.
type Stats struct {
	ActiveDocuments int64            `json:"active_documents"`
	TotalDocuments  int64            `json:"total_documents"`
	TotalSizeBytes  int64            `json:"total_size_bytes"`
	ByExtension     map[string]int64 `json:"by_extension"`
}

// GetStats returns corpus statistics over the document log.
func (c *Catalog) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByExtension: make(map[string]int64)}
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.TotalDocuments)
	if err != nil {
		return nil, err
	}
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM documents WHERE status = ?`,
		string(models.StatusActive)).Scan(&stats.ActiveDocuments, &stats.TotalSizeBytes)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT original_name FROM documents WHERE status = ?`, string(models.StatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext == "" {
			ext = "(none)"
		}
		stats.ByExtension[ext]++
	}
	return stats, rows.Err()
}

// SearchMeta searches document titles, descriptions, and tags.
func (c *Catalog) SearchMeta(ctx context.Context, query string, limit int) ([]*models.Document, error) {
	if c.titles == nil {
		return nil, errors.New("no title index configured")
	}
	ids, err := c.titles.Search(query, limit)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := c.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if doc.Active() {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Close closes the database and the title index.
func (c *Catalog) Close() error {
	var err error
	if c.titles != nil {
		err = c.titles.Close()
	}
	if dbErr := c.db.Close(); dbErr != nil {
		err = dbErr
	}
	return err
}

const selectColumns = `SELECT id, original_name, stored_name, content_hash, size_bytes,
	title, description, tags, upload_time, deleted_time, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc         models.Document
		description sql.NullString
		tagsJSON    sql.NullString
		deletedTime sql.NullTime
		status      string
	)
	err := row.Scan(&doc.ID, &doc.OriginalName, &doc.StoredName, &doc.ContentHash,
		&doc.SizeBytes, &doc.Title, &description, &tagsJSON, &doc.UploadTime,
		&deletedTime, &status)
	if err != nil {
		return nil, err
	}
	doc.Description = description.String
	if tagsJSON.Valid && tagsJSON.String != "" && tagsJSON.String != "null" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &doc.Tags); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}
	if deletedTime.Valid {
		t := deletedTime.Time
		doc.DeletedTime = &t
	}
	doc.Status = models.DocumentStatus(status)
	return &doc, nil
}
