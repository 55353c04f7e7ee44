package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, 3, cfg.MinNameLen)
	assert.Equal(t, 4, cfg.MinPasswordLen)
	assert.Equal(t, int64(64<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 1<<20, cfg.MaxAvatarBytes)
	assert.Equal(t, 256, cfg.SessionBuffer)
	assert.Equal(t, "info", cfg.LogLevel)
}

func writeConfigFile(t *testing.T, c JsonConfig) string {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestParseJson_OverlaysOnlySetFields(t *testing.T) {
	path := writeConfigFile(t, JsonConfig{MinNameLen: 5, LogLevel: "debug"})

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"test", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, 5, cfg.MinNameLen)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Unset fields keep their defaults.
	assert.Equal(t, 4, cfg.MinPasswordLen)
	assert.Equal(t, 256, cfg.SessionBuffer)
}

func TestParseJson_NoFlagNoFile(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"test"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, 3, cfg.MinNameLen)
}

func TestParseFlags_Overrides(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"test", "-n", "2", "-b", "16", "-l", "warn", "-x", "ignored"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, 2, cfg.MinNameLen)
	assert.Equal(t, 16, cfg.SessionBuffer)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 4, cfg.MinPasswordLen)
}
