package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mode":"both","port":9999}`), 0o600))

	cfg := Default()
	require.NoError(t, LoadFile(&cfg, path))
	assert.Equal(t, ModeBoth, cfg.Mode)
	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host, "fields the file omits keep their defaults")
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: native\nlog_level: debug\n"), 0o600))

	cfg := Default()
	require.NoError(t, LoadFile(&cfg, path))
	assert.Equal(t, ModeNative, cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":1111}`), 0o600))
	t.Setenv("NORNICSUBSTRATE_PORT", "2222")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Port)
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.Mode = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestDefaultDataDirHonorsTestDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TABAGENT_TEST_DIR", dir)
	assert.Equal(t, dir, DefaultDataDir())
}
