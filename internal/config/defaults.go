package config

import (
	"path/filepath"
	"time"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Corpora) == 0 {
		cfg.Corpora = []CorpusConfig{
			{Name: "teacher", DataDir: "/usr/local/var/docqa/data/teacher", IndexDir: "/usr/local/var/docqa/indexes/teacher"},
			{Name: "student", DataDir: "/usr/local/var/docqa/data/student", IndexDir: "/usr/local/var/docqa/indexes/student"},
		}
	}
	for i := range cfg.Corpora {
		c := &cfg.Corpora[i]
		if c.CatalogPath == "" && c.IndexDir != "" {
			c.CatalogPath = filepath.Join(c.IndexDir, "catalog.db")
		}
		if c.TitleIndex == "" && c.IndexDir != "" {
			c.TitleIndex = filepath.Join(c.IndexDir, "titles.bleve")
		}
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.FingerprintTTL == 0 {
		cfg.Cache.FingerprintTTL = time.Hour
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "docqa"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/docqa/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 512
	}
	if cfg.Chunking.MinChunkSize == 0 {
		cfg.Chunking.MinChunkSize = 256
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 150
	}
	if cfg.Extract.MaxWorkers == 0 {
		cfg.Extract.MaxWorkers = 4
	}
	if cfg.Extract.OCRWorkers == 0 {
		cfg.Extract.OCRWorkers = 2
	}
	if cfg.Extract.MinWordsPerPage == 0 {
		cfg.Extract.MinWordsPerPage = 30
	}
	if cfg.Extract.MaxFileSize == 0 {
		cfg.Extract.MaxFileSize = 50 * 1024 * 1024
	}
	if cfg.Extract.Extensions == nil {
		cfg.Extract.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".pptx"}
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 50
	}
	if cfg.Search.MaxSources == 0 {
		cfg.Search.MaxSources = 5
	}
	if cfg.Assistant.Model == "" {
		cfg.Assistant.Model = "gpt-4o-mini"
	}
	if cfg.Assistant.Timeout == 0 {
		cfg.Assistant.Timeout = 30 * time.Second
	}
}
