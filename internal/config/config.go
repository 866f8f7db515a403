// Package config provides configuration loading and structs for the docqa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Corpora   []CorpusConfig  `yaml:"corpora"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Extract   ExtractConfig   `yaml:"extract"`
	Search    SearchConfig    `yaml:"search"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CorpusConfig describes one document corpus: its data folder, where its
// index snapshot lives, and the SQLite catalog path.
type CorpusConfig struct {
	Name        string `yaml:"name"`
	DataDir     string `yaml:"data_dir"`
	IndexDir    string `yaml:"index_dir"`
	CatalogPath string `yaml:"catalog_path"`
	TitleIndex  string `yaml:"title_index_path"`
}

// CacheConfig holds Redis cache settings. When URL is empty the cache is
// disabled and every lookup is a miss.
type CacheConfig struct {
	URL            string        `yaml:"url"`
	Password       string        `yaml:"password"`
	TTL            time.Duration `yaml:"ttl"`
	FingerprintTTL time.Duration `yaml:"fingerprint_ttl"`
	KeyPrefix      string        `yaml:"key_prefix"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// ChunkingConfig holds sentence-chunker parameters (sizes in characters).
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	MinChunkSize int `yaml:"min_chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// ExtractConfig holds extraction pipeline settings.
type ExtractConfig struct {
	MaxWorkers      int      `yaml:"max_workers"`
	OCRWorkers      int      `yaml:"ocr_workers"`
	OCREnabled      bool     `yaml:"ocr_enabled"`
	MinWordsPerPage int      `yaml:"min_words_per_page"`
	MaxFileSize     int64    `yaml:"max_file_size"`
	Extensions      []string `yaml:"extensions"`
}

// AssistantConfig points the question-answering service at an
// OpenAI-compatible chat completions endpoint. When Endpoint is empty the
// ask API is disabled.
type AssistantConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultK   int `yaml:"default_k"`
	MaxK       int `yaml:"max_k"`
	MaxSources int `yaml:"max_sources"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	for i := range cfg.Corpora {
		c := &cfg.Corpora[i]
		c.DataDir = expandPath(c.DataDir, configDir)
		c.IndexDir = expandPath(c.IndexDir, configDir)
		c.CatalogPath = expandPath(c.CatalogPath, configDir)
		c.TitleIndex = expandPath(c.TitleIndex, configDir)
	}
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	return &cfg, nil
}

// Corpus returns the corpus config with the given name, or nil.
func (c *Config) Corpus(name string) *CorpusConfig {
	for i := range c.Corpora {
		if c.Corpora[i].Name == name {
			return &c.Corpora[i]
		}
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
