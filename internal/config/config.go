// Package config provides configuration loading for AskDocs.
//
// Configuration is resolved in three layers, later layers winning:
//  1. Built-in defaults
//  2. YAML config file (askdocs.yaml in the data dir, or an explicit path)
//  3. Environment variables (ASKDOCS_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/askdocs/askdocs/internal/errors"
)

// DedupScope controls whether identical passage text is coalesced across the
// whole corpus or only within a single document. Corpus-wide dedup stores
// boilerplate repeated across documents once, with one provenance record per
// occurrence; document scope keeps a separate entry per document.
type DedupScope string

const (
	DedupScopeCorpus   DedupScope = "corpus"
	DedupScopeDocument DedupScope = "document"
)

// Config represents the complete AskDocs configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// ChunkingConfig configures how documents are split into passages.
type ChunkingConfig struct {
	// Size is the maximum passage length in characters.
	Size int `yaml:"size" json:"size"`
	// Overlap is the number of trailing characters carried into the next
	// passage for context continuity. Must be smaller than Size.
	Overlap int `yaml:"overlap" json:"overlap"`
}

// RetrievalConfig configures query-time retrieval and context assembly.
type RetrievalConfig struct {
	// TopK is the maximum number of passages retrieved per question.
	TopK int `yaml:"top_k" json:"top_k"`
	// RelevanceFloor is the minimum cosine similarity for a passage to be
	// usable as context. Results below the floor are discarded.
	RelevanceFloor float32 `yaml:"relevance_floor" json:"relevance_floor"`
	// ContextBudget is the maximum assembled context size in characters.
	ContextBudget int `yaml:"context_budget" json:"context_budget"`
	// DedupScope is "corpus" (default) or "document".
	DedupScope DedupScope `yaml:"dedup_scope" json:"dedup_scope"`
}

// EmbeddingsConfig configures the embedding capability.
type EmbeddingsConfig struct {
	// Provider is "openai" or "ollama".
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// GenerationConfig configures the answer-generation capability.
type GenerationConfig struct {
	// Provider is "openai" or "ollama".
	Provider    string        `yaml:"provider" json:"provider"`
	Model       string        `yaml:"model" json:"model"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	OllamaHost  string        `yaml:"ollama_host" json:"ollama_host"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// CacheConfig configures the embedding and answer caches.
// Both caches are derived, rebuildable state: correctness holds with
// caching disabled.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// TTL bounds entry lifetime for both caches.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// EmbeddingEntries is the embedding cache capacity.
	EmbeddingEntries int `yaml:"embedding_entries" json:"embedding_entries"`
	// AnswerEntries is the answer cache capacity.
	AnswerEntries int `yaml:"answer_entries" json:"answer_entries"`
}

// CurrentVersion is the current config schema version.
const CurrentVersion = 1

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		DataDir: DefaultDataDir(),
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			RelevanceFloor: 0.25,
			ContextBudget:  6000,
			DedupScope:     DedupScopeCorpus,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  64,
			OllamaHost: "http://localhost:11434",
			Timeout:    30 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.1,
			OllamaHost:  "http://localhost:11434",
			Timeout:     60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:          true,
			TTL:              time.Hour,
			EmbeddingEntries: 4096,
			AnswerEntries:    512,
		},
		LogLevel: "info",
	}
}

// DefaultDataDir returns the default corpus data directory (~/.askdocs).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".askdocs"
	}
	return filepath.Join(home, ".askdocs")
}

// Load reads configuration from the given path, layered over defaults and
// under environment overrides. A missing file is not an error: defaults
// apply. An unreadable or malformed file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "askdocs.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults apply
	case err != nil:
		return nil, apperrors.New(apperrors.ErrCodeConfigNotFound,
			fmt.Sprintf("cannot read config file %s", path), err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.ConfigError(
				fmt.Sprintf("invalid YAML in %s", path), err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies ASKDOCS_* environment variables over the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASKDOCS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ASKDOCS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ASKDOCS_EMBEDDINGS_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("ASKDOCS_GENERATION_PROVIDER"); v != "" {
		cfg.Generation.Provider = v
	}
	if v := os.Getenv("ASKDOCS_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunking.Size = n
		}
	}
	if v := os.Getenv("ASKDOCS_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunking.Overlap = n
		}
	}
	if v := os.Getenv("ASKDOCS_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("ASKDOCS_RELEVANCE_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.Retrieval.RelevanceFloor = float32(f)
		}
	}
	if v := os.Getenv("ASKDOCS_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("ASKDOCS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
}

// Validate checks configuration invariants and returns an actionable error
// for the first violation found.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return apperrors.ConfigError("chunking.size must be positive", nil)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return apperrors.ConfigError(
			fmt.Sprintf("chunking.overlap (%d) must be in [0, chunking.size)", c.Chunking.Overlap),
			nil).WithSuggestion("set chunking.overlap below chunking.size")
	}
	if c.Retrieval.TopK <= 0 {
		return apperrors.ConfigError("retrieval.top_k must be positive", nil)
	}
	if c.Retrieval.RelevanceFloor < -1 || c.Retrieval.RelevanceFloor > 1 {
		return apperrors.ConfigError("retrieval.relevance_floor must be within [-1, 1]", nil)
	}
	if c.Retrieval.ContextBudget <= 0 {
		return apperrors.ConfigError("retrieval.context_budget must be positive", nil)
	}
	switch c.Retrieval.DedupScope {
	case DedupScopeCorpus, DedupScopeDocument:
	default:
		return apperrors.ConfigError(
			fmt.Sprintf("retrieval.dedup_scope must be %q or %q", DedupScopeCorpus, DedupScopeDocument), nil)
	}
	switch c.Embeddings.Provider {
	case "openai", "ollama":
	default:
		return apperrors.ConfigError(
			fmt.Sprintf("unknown embeddings.provider %q", c.Embeddings.Provider), nil)
	}
	switch c.Generation.Provider {
	case "openai", "ollama":
	default:
		return apperrors.ConfigError(
			fmt.Sprintf("unknown generation.provider %q", c.Generation.Provider), nil)
	}
	if c.Cache.TTL <= 0 {
		return apperrors.ConfigError("cache.ttl must be positive", nil)
	}
	return nil
}

// Save writes the configuration to the given path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return apperrors.InternalError("cannot marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
