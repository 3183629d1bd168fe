package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.RootDataDir)
	require.Equal(t, 64, cfg.FileCacheSize)
	require.Equal(t, "in", cfg.RoleIn)
	require.Equal(t, "text", cfg.LogFormat)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
root_data_dir: /var/silk/data
site_config_file: /etc/silk/site.yaml
file_cache_size: 128
log_format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/silk/data", cfg.RootDataDir)
	require.Equal(t, "/etc/silk/site.yaml", cfg.SiteConfigFile)
	require.Equal(t, 128, cfg.FileCacheSize)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	path := writeConfigFile(t, "root_data_dir: /from/file\n")
	t.Setenv("SILK_ROOT_DATA_DIR", "/from/env")
	t.Setenv("SILK_FILE_CACHE_SIZE", "256")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/from/env", cfg.RootDataDir)
	require.Equal(t, 256, cfg.FileCacheSize)
}

func TestValidateRejectsFileCacheSizeOutOfRange(t *testing.T) {
	cfg := &Config{FileCacheSize: 2, LogFormat: "text"}
	err := Validate(cfg)
	require.Error(t, err)
}

func TestValidateRejectsEndBeforeStart(t *testing.T) {
	path := writeConfigFile(t, `
file_cache_size: 64
log_format: text
start_time: "2026-01-02T00:00:00Z"
end_time: "2026-01-01T00:00:00Z"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := &Config{FileCacheSize: 64, LogFormat: "xml"}
	err := Validate(cfg)
	require.Error(t, err)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.RootDataDir)
}
