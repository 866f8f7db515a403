package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFingerprint_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "sub/b.txt", "beta")

	tr := NewTracker([]string{".txt"})
	fp1, err := tr.Fingerprint(dir)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	fp2, err := tr.Fingerprint(dir)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if fp1.Hash != fp2.Hash {
		t.Errorf("fingerprint not deterministic: %s != %s", fp1.Hash, fp2.Hash)
	}
	if len(fp1.Files) != 2 {
		t.Errorf("expected 2 files, got %d", len(fp1.Files))
	}
}

func TestFingerprint_ChangesOnSizeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "alpha")

	tr := NewTracker([]string{".txt"})
	before, _ := tr.Fingerprint(dir)

	if err := os.WriteFile(path, []byte("alpha and more"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	after, _ := tr.Fingerprint(dir)
	if before.Hash == after.Hash {
		t.Error("hash should change when a file's size changes")
	}
}

func TestFingerprint_ChangesOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "alpha")

	tr := NewTracker([]string{".txt"})
	before, _ := tr.Fingerprint(dir)

	newTime := time.Now().Add(2 * time.Hour)
	if err := os.Chtimes(path, newTime, newTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	after, _ := tr.Fingerprint(dir)
	if before.Hash == after.Hash {
		t.Error("hash should change when a file's mtime changes")
	}
}

func TestFingerprint_ChangesOnFileSetChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")

	tr := NewTracker([]string{".txt"})
	before, _ := tr.Fingerprint(dir)

	writeFile(t, dir, "b.txt", "beta")
	after, _ := tr.Fingerprint(dir)
	if before.Hash == after.Hash {
		t.Error("hash should change when a file is added")
	}
}

func TestFingerprint_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "ignore.bin", "binary")

	tr := NewTracker([]string{".txt"})
	fp, _ := tr.Fingerprint(dir)
	if len(fp.Files) != 1 {
		t.Errorf("expected 1 file after filtering, got %d", len(fp.Files))
	}
	if _, ok := fp.Files["a.txt"]; !ok {
		t.Error("a.txt should be present")
	}
}

func TestFingerprint_MissingFolder(t *testing.T) {
	tr := NewTracker(nil)
	fp, err := tr.Fingerprint(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing folder should not error: %v", err)
	}
	if len(fp.Files) != 0 {
		t.Errorf("expected empty fingerprint, got %d files", len(fp.Files))
	}
}

func TestMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	tr := NewTracker(nil)
	fp, _ := tr.Fingerprint(dir)

	if Matches(fp, nil) {
		t.Error("nil stored fingerprint must never match")
	}
	if !Matches(fp, fp) {
		t.Error("identical fingerprints should match")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	tr := NewTracker(nil)
	fp, _ := tr.Fingerprint(dir)

	path := filepath.Join(t.TempDir(), "fingerprint.json")
	if err := Save(path, fp); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !Matches(fp, loaded) {
		t.Error("loaded fingerprint should match saved one")
	}
}

func TestLoad_Missing(t *testing.T) {
	fp, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if fp != nil {
		t.Error("missing file should load as nil")
	}
}
