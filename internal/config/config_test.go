package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
corpora:
  - name: teacher
    data_dir: "/var/docqa/teacher"
    index_dir: "/var/docqa/idx/teacher"
cache:
  url: "redis://localhost:6379/0"
  ttl: 30m
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if len(cfg.Corpora) != 1 || cfg.Corpora[0].Name != "teacher" {
		t.Fatalf("unexpected corpora: %+v", cfg.Corpora)
	}
	if cfg.Corpora[0].CatalogPath != filepath.Join("/var/docqa/idx/teacher", "catalog.db") {
		t.Errorf("catalog path should default under the index dir: %s", cfg.Corpora[0].CatalogPath)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("ttl = %v", cfg.Cache.TTL)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
corpora:
  - name: teacher
    data_dir: "./data/teacher"
    index_dir: "./indexes/teacher"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantData := filepath.Join(dir, "data", "teacher")
	if cfg.Corpora[0].DataDir != wantData {
		t.Errorf("data_dir = %s, want %s", cfg.Corpora[0].DataDir, wantData)
	}
	wantCatalog := filepath.Join(dir, "indexes", "teacher", "catalog.db")
	if cfg.Corpora[0].CatalogPath != wantCatalog {
		t.Errorf("catalog_path = %s, want %s", cfg.Corpora[0].CatalogPath, wantCatalog)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if len(cfg.Corpora) != 2 || cfg.Corpora[0].Name != "teacher" || cfg.Corpora[1].Name != "student" {
		t.Errorf("default corpora: got %+v", cfg.Corpora)
	}
	if cfg.Chunking.ChunkSize != 512 || cfg.Chunking.MinChunkSize != 256 || cfg.Chunking.ChunkOverlap != 150 {
		t.Errorf("default chunking: got %+v", cfg.Chunking)
	}
	if cfg.Extract.MaxWorkers != 4 || cfg.Extract.OCRWorkers != 2 {
		t.Errorf("default workers: got %+v", cfg.Extract)
	}
	if cfg.Extract.MinWordsPerPage != 30 {
		t.Errorf("default min_words_per_page: got %d", cfg.Extract.MinWordsPerPage)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("default ttl: got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.KeyPrefix != "docqa" {
		t.Errorf("default key prefix: got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Search.DefaultK != 5 || cfg.Search.MaxK != 50 || cfg.Search.MaxSources != 5 {
		t.Errorf("default search: got %+v", cfg.Search)
	}
	if cfg.Extract.Extensions == nil || cfg.Extract.Extensions[0] != ".txt" {
		t.Errorf("default extensions: got %v", cfg.Extract.Extensions)
	}
}

func TestCorpus(t *testing.T) {
	cfg := &Config{Corpora: []CorpusConfig{{Name: "teacher"}, {Name: "student"}}}
	if c := cfg.Corpus("student"); c == nil || c.Name != "student" {
		t.Errorf("Corpus(student) = %+v", c)
	}
	if c := cfg.Corpus("missing"); c != nil {
		t.Errorf("Corpus(missing) = %+v, want nil", c)
	}
}
