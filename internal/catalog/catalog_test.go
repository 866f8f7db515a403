package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/opencampus/docqa/internal/models"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := New(filepath.Join(dir, "catalog.db"), filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCatalog_AddStoresFile(t *testing.T) {
	c := newTestCatalog(t)
	doc, err := c.Add(context.Background(), models.UploadRequest{
		OriginalName: "notes.txt",
		Content:      []byte("lecture notes"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if doc.OriginalName != "notes.txt" {
		t.Errorf("original name = %q", doc.OriginalName)
	}
	if doc.Title != "notes.txt" {
		t.Errorf("title should default to original name, got %q", doc.Title)
	}
	if doc.Status != models.StatusActive {
		t.Errorf("status = %s", doc.Status)
	}
	data, err := os.ReadFile(filepath.Join(c.DataDir(), doc.StoredName))
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if string(data) != "lecture notes" {
		t.Errorf("stored content = %q", data)
	}
}

func TestCatalog_DuplicateContentResolvesToExisting(t *testing.T) {
	c := newTestCatalog(t)
	content := []byte("identical bytes")
	first, err := c.Add(context.Background(), models.UploadRequest{OriginalName: "a.txt", Content: content})
	if err != nil {
		t.Fatalf("first Add: %v", err)
	}
	second, err := c.Add(context.Background(), models.UploadRequest{OriginalName: "b.txt", Content: content})
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate upload created new document: %s != %s", second.ID, first.ID)
	}
	count, err := c.CountActive(context.Background())
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if count != 1 {
		t.Errorf("active count = %d, want 1", count)
	}
}

func TestCatalog_ConcurrentIdenticalUploads(t *testing.T) {
	c := newTestCatalog(t)
	content := []byte("the same bytes uploaded from several requests at once")

	const uploads = 8
	ids := make([]string, uploads)
	errs := make([]error, uploads)
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := c.Add(context.Background(), models.UploadRequest{
				OriginalName: fmt.Sprintf("upload-%d.txt", i),
				Content:      content,
			})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = doc.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < uploads; i++ {
		if errs[i] != nil {
			t.Fatalf("Add %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("upload %d got document %s, want %s", i, ids[i], ids[0])
		}
	}
	count, err := c.CountActive(context.Background())
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if count != 1 {
		t.Errorf("active count = %d, want 1", count)
	}
}

func TestCatalog_DeleteIsSoft(t *testing.T) {
	c := newTestCatalog(t)
	doc, err := c.Add(context.Background(), models.UploadRequest{
		OriginalName: "gone.txt",
		Content:      []byte("soon deleted"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	deleted, err := c.Delete(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.Status != models.StatusDeleted {
		t.Errorf("status = %s, want deleted", deleted.Status)
	}
	if deleted.DeletedTime == nil {
		t.Error("deleted time not set")
	}
	if _, err := os.Stat(filepath.Join(c.DataDir(), doc.StoredName)); !os.IsNotExist(err) {
		t.Error("stored file should be removed")
	}

	// Row retained: still readable by ID, with deleted status.
	got, err := c.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID after delete: %v", err)
	}
	if got.Status != models.StatusDeleted {
		t.Errorf("retained row status = %s", got.Status)
	}
}

func TestCatalog_ReuploadAfterDeleteCreatesNewDocument(t *testing.T) {
	c := newTestCatalog(t)
	content := []byte("phoenix content")
	first, _ := c.Add(context.Background(), models.UploadRequest{OriginalName: "p.txt", Content: content})
	if _, err := c.Delete(context.Background(), first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	second, err := c.Add(context.Background(), models.UploadRequest{OriginalName: "p.txt", Content: content})
	if err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if second.ID == first.ID {
		t.Error("deleted document should not absorb a fresh upload")
	}
}

func TestCatalog_DeleteMissing(t *testing.T) {
	c := newTestCatalog(t)
	if _, err := c.Delete(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalog_ListActive(t *testing.T) {
	c := newTestCatalog(t)
	a, _ := c.Add(context.Background(), models.UploadRequest{OriginalName: "a.txt", Content: []byte("first")})
	_, _ = c.Add(context.Background(), models.UploadRequest{OriginalName: "b.txt", Content: []byte("second")})
	if _, err := c.Delete(context.Background(), a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	docs, err := c.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 active document, got %d", len(docs))
	}
	if docs[0].OriginalName != "b.txt" {
		t.Errorf("remaining document = %q", docs[0].OriginalName)
	}
}

func TestCatalog_Stats(t *testing.T) {
	c := newTestCatalog(t)
	_, _ = c.Add(context.Background(), models.UploadRequest{OriginalName: "a.txt", Content: []byte("12345")})
	_, _ = c.Add(context.Background(), models.UploadRequest{OriginalName: "b.pdf", Content: []byte("1234567890")})

	stats, err := c.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.ActiveDocuments != 2 {
		t.Errorf("active = %d, want 2", stats.ActiveDocuments)
	}
	if stats.TotalSizeBytes != 15 {
		t.Errorf("total size = %d, want 15", stats.TotalSizeBytes)
	}
	if stats.ByExtension[".txt"] != 1 || stats.ByExtension[".pdf"] != 1 {
		t.Errorf("extensions = %v", stats.ByExtension)
	}
}

func TestCatalog_TagsRoundTrip(t *testing.T) {
	c := newTestCatalog(t)
	doc, err := c.Add(context.Background(), models.UploadRequest{
		OriginalName: "tagged.txt",
		Content:      []byte("tagged content"),
		Title:        "Exam Schedule",
		Description:  "Spring exam dates",
		Tags:         []string{"exams", "schedule"},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, err := c.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Exam Schedule" || got.Description != "Spring exam dates" {
		t.Errorf("metadata lost: %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "exams" {
		t.Errorf("tags = %v", got.Tags)
	}
}

func TestCatalog_SearchMeta(t *testing.T) {
	dir := t.TempDir()
	titles, err := NewTitleIndex(filepath.Join(dir, "titles.bleve"))
	if err != nil {
		t.Fatalf("NewTitleIndex: %v", err)
	}
	c, err := New(filepath.Join(dir, "catalog.db"), filepath.Join(dir, "data"), WithTitleIndex(titles))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	exam, _ := c.Add(context.Background(), models.UploadRequest{
		OriginalName: "schedule.txt",
		Content:      []byte("exam timetable"),
		Title:        "Exam Schedule",
		Tags:         []string{"exams"},
	})
	_, _ = c.Add(context.Background(), models.UploadRequest{
		OriginalName: "menu.txt",
		Content:      []byte("cafeteria menu"),
		Title:        "Cafeteria Menu",
	})

	docs, err := c.SearchMeta(context.Background(), "exam", 10)
	if err != nil {
		t.Fatalf("SearchMeta: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != exam.ID {
		t.Fatalf("expected only the exam document, got %d results", len(docs))
	}

	// Deleted documents drop out of metadata search.
	if _, err := c.Delete(context.Background(), exam.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	docs, err = c.SearchMeta(context.Background(), "exam", 10)
	if err != nil {
		t.Fatalf("SearchMeta after delete: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("deleted document still in search results")
	}
}

func TestLister_ResolvesOriginalNames(t *testing.T) {
	c := newTestCatalog(t)
	doc, err := c.Add(context.Background(), models.UploadRequest{
		OriginalName: "My Report.txt",
		Content:      []byte("report body"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	// A file dropped into the folder without an upload.
	loose := filepath.Join(c.DataDir(), "loose.txt")
	if err := os.WriteFile(loose, []byte("loose content"), 0644); err != nil {
		t.Fatal(err)
	}

	l := &Lister{Catalog: c, Extensions: []string{".txt"}}
	entries, err := l.ListFiles(context.Background())
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	byDisplay := make(map[string]string)
	for _, e := range entries {
		byDisplay[e.DisplayName] = e.DocID
	}
	if byDisplay["My Report.txt"] != doc.ID {
		t.Errorf("uploaded file should use catalog identity, got %q", byDisplay["My Report.txt"])
	}
	if id, ok := byDisplay["loose.txt"]; !ok || id == "" {
		t.Error("loose file should be listed with a derived identity")
	}
}
