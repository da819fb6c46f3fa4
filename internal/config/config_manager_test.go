package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cake-lab/arflow-go/internal/config"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigAppliesDefaultsForOmittedSections(t *testing.T) {
	path := writeConfigFile(t, `
operating_mode:
  application_id: arflow-demo
  spawn_viewer: true
`)
	cm := config.CreateConfigManager()
	require.NoError(t, cm.LoadConfig(path))

	cfg := cm.GetConfig()
	assert.Equal(t, "arflow-demo", cfg.OperatingMode.ApplicationID)
	assert.Equal(t, 8500, cfg.Transport.Port)
	assert.Equal(t, 10, cfg.Transport.WorkerPoolSize)
}

func TestLoadConfigRejectsConflictingOperatingMode(t *testing.T) {
	path := writeConfigFile(t, `
operating_mode:
  application_id: arflow-demo
  spawn_viewer: true
  save_dir: /tmp/arflow
`)
	cm := config.CreateConfigManager()
	err := cm.LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsMissingFile(t *testing.T) {
	cm := config.CreateConfigManager()
	err := cm.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAddUpdateCallbackFiresOnLoad(t *testing.T) {
	path := writeConfigFile(t, `
operating_mode:
  application_id: arflow-demo
  spawn_viewer: true
`)
	cm := config.CreateConfigManager()

	var seen *config.Config
	cm.AddUpdateCallback(func(c *config.Config) { seen = c })

	require.NoError(t, cm.LoadConfig(path))
	require.NotNil(t, seen)
	assert.Equal(t, "arflow-demo", seen.OperatingMode.ApplicationID)
}
