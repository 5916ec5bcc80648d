package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
grid:
  id_start: 10
  id_wrap: 1000
engine:
  reapply_mode: keep
protocols:
  dir: ~/protocols
  watch: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 10, cfg.Grid.IDStart)
	require.Equal(t, 1000, cfg.Grid.IDWrap)
	require.Equal(t, ReapplyKeep, cfg.Engine.ReapplyMode)
	require.True(t, cfg.Protocols.Watch)

	home, _ := os.UserHomeDir()
	require.Equal(t, filepath.Join(home, "protocols"), cfg.Protocols.Dir)
	require.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")
	t.Setenv("HANGVIEW_LOGGING_LEVEL", "warn")
	t.Setenv("HANGVIEW_ENGINE_REAPPLY_MODE", "keep")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, ReapplyKeep, cfg.Engine.ReapplyMode)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
grid:
  id_start: 100
  id_wrap: 50
engine:
  reapply_mode: sometimes
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "grid.id_wrap")
	require.Contains(t, err.Error(), "engine.reapply_mode")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, filepath.Join(cfg.Global.DataDir, "hangview.db"), cfg.DatabasePath())
	require.Equal(t, filepath.Join(cfg.Global.ConfigDir, "protocols"), cfg.ProtocolsDir())
}

func TestEnvVar(t *testing.T) {
	require.Equal(t, "HANGVIEW_GRID_ID_START", EnvVar("grid.id_start"))
}
