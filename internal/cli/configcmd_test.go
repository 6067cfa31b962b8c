package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/iambrandonn/pairagent/internal/config"
	"github.com/iambrandonn/pairagent/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.jsonc")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	require.NoError(t, execute(t, context.Background(), "config", "init", "--config", path))
	assert.Contains(t, out.String(), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.GenerateDefault(), cfg)
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "1.0"}`), 0600))

	rootCmd.SetOut(&bytes.Buffer{})
	err := execute(t, context.Background(), "config", "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	rootCmd.SetOut(&bytes.Buffer{})
	require.NoError(t, execute(t, context.Background(), "config", "init", "--config", path, "--force"))
	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAgentPath, cfg.Agent.Path)
}

func TestConfigShowPrintsEffectiveConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	require.NoError(t, execute(t, context.Background(), "config", "show", "--config", path))

	var cfg config.Config
	require.NoError(t, json.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, testAgentPath, cfg.Agent.Path)
	assert.Equal(t, protocol.PolicyAsk, cfg.Policy.Confirmation)
	assert.Equal(t, 5000, cfg.Surface.DecisionTimeoutMs)
}
