package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoadConfig_Full(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsql.yaml")
	content := `dir: /var/lib/docsql
revs_limit: 50
deterministic_revs: true
auto_compaction: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/docsql", cfg.Dir)
	assert.Equal(t, 50, cfg.RevsLimit)
	assert.True(t, cfg.DeterministicRevs)
	assert.True(t, cfg.AutoCompaction)
}

func TestLoadConfig_Partial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("revs_limit: 10\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.RevsLimit)
	assert.Empty(t, cfg.Dir)
	assert.False(t, cfg.AutoCompaction)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dir: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoadConfig_NegativeRevsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsql.yaml")
	require.NoError(t, os.WriteFile(path, []byte("revs_limit: -3\n"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revs_limit")
}
