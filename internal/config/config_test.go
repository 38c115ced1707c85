package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  addr: ":4000"
  secret: "local dev secret"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, "local dev secret", cfg.Server.Secret)
	assert.Equal(t, "email", cfg.Server.IdentityField)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRejectsEmptySecret(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  secret: ""
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadSeed(t *testing.T) {
	path := writeFile(t, "seed.yaml", `
items:
  i1:
    title: Abbey Road
    price: 24
`)
	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Contains(t, seed, "items")
	assert.Equal(t, "Abbey Road", seed["items"]["i1"]["title"])
}

func TestLoadSeedMissingFileIsEmpty(t *testing.T) {
	seed, err := LoadSeed(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, seed)
}

func TestLoadRules(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
items:
  .create:
    - User
  .delete: false
`)
	tree, err := LoadRules(path)
	require.NoError(t, err)
	require.Contains(t, tree, "items")
}
