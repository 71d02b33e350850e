package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nixlite/nixd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "nixd.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store: /from/config\nsocket: /from/config.sock\n"), 0o644))

	cli := &config.CLI{Store: "/from/flag", ConfigFile: configPath}

	resolved, err := config.Resolve(cli)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", resolved.Store)
	assert.Equal(t, "/from/config.sock", resolved.Socket)
}

func TestResolveFallsBackToDefaultsWithNoConfigFile(t *testing.T) {
	cli := &config.CLI{}

	resolved, err := config.Resolve(cli)
	require.NoError(t, err)
	assert.NotEmpty(t, resolved.Store)
	assert.NotEmpty(t, resolved.Socket)
	assert.Equal(t, "bwrap", resolved.Bwrap)
}

func TestResolveMissingConfigFileIsNotAnError(t *testing.T) {
	cli := &config.CLI{ConfigFile: filepath.Join(t.TempDir(), "does-not-exist.yaml")}

	_, err := config.Resolve(cli)
	assert.NoError(t, err)
}
