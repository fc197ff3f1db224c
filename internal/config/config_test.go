package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	// Given: no config file at the path
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	// Then: original defaults apply
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 0.1, cfg.Generation.Temperature)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, DedupScopeCorpus, cfg.Retrieval.DedupScope)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askdocs.yaml")
	yaml := `
chunking:
  size: 400
  overlap: 50
retrieval:
  top_k: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	// Untouched sections keep defaults
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askdocs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  size: 400\n"), 0o644))

	t.Setenv("ASKDOCS_CHUNK_SIZE", "800")
	t.Setenv("ASKDOCS_CACHE_ENABLED", "false")
	t.Setenv("ASKDOCS_CACHE_TTL", "30m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askdocs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_OverlapMustBeBelowSize(t *testing.T) {
	cfg := Default()
	cfg.Chunking.Overlap = cfg.Chunking.Size

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestValidate_RejectsUnknownProvider(t *testing.T) {
	cfg := Default()
	cfg.Embeddings.Provider = "carrier-pigeon"

	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsBadDedupScope(t *testing.T) {
	cfg := Default()
	cfg.Retrieval.DedupScope = "file"

	assert.Error(t, cfg.Validate())
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "askdocs.yaml")
	cfg := Default()
	cfg.Retrieval.TopK = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.TopK)
}
