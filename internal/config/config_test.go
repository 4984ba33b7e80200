package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoadConfig_CreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", DefaultFileName)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	_, err = os.Stat(p)
	assert.NoError(t, err, "default config file should be written")

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Server.EnableCORS)
	assert.Equal(t, 95, cfg.Processing.JPEGQuality)
	assert.Equal(t, "info", cfg.Advanced.LogLevel)

	base := filepath.Join(dir, "nested")
	assert.Equal(t, base, cfg.GetDataDir())
	assert.Equal(t, filepath.Join(base, "uploads"), cfg.Storage.UploadsDirectory)
	assert.Equal(t, filepath.Join(base, "cleaned"), cfg.Storage.CleanedDirectory)
	assert.Equal(t, filepath.Join(base, "tmp"), cfg.Storage.TempDirectory)
	assert.Zero(t, cfg.Retention())
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval())
}

func TestLoadConfig_FileValues(t *testing.T) {
	p := writeConfig(t, `
server:
  port: 9000
  enable_cors: false
storage:
  data_dir: store
  cleaned_dir: /var/lib/metascrub/cleaned
  retention_minutes: 30
processing:
  auto_orient: false
advanced:
  log_level: debug
`)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.False(t, cfg.Server.EnableCORS)
	assert.False(t, cfg.Processing.AutoOrient)
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.Retention())

	// untouched keys keep defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.BindAddress)
	assert.Equal(t, "100M", cfg.Server.BodyLimit)
	assert.True(t, cfg.Advanced.EnableRequestLogging)

	store := filepath.Join(filepath.Dir(p), "store")
	assert.Equal(t, store, cfg.GetDataDir())
	assert.Equal(t, filepath.Join(store, "uploads"), cfg.Storage.UploadsDirectory)
	assert.Equal(t, "/var/lib/metascrub/cleaned", cfg.Storage.CleanedDirectory)
	assert.Equal(t, "0.0.0.0:9000", cfg.GetServerAddr())
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	p := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("PORT", "7000")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ENABLE_CORS", "false")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Advanced.LogLevel)
	assert.False(t, cfg.Server.EnableCORS)
}

func TestLoadConfig_HomeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	p := writeConfig(t, "storage:\n  data_dir: ~/scrub\n")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "scrub"), cfg.GetDataDir())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port out of range", "server:\n  port: 70000\n"},
		{"jpeg quality too high", "processing:\n  jpeg_quality: 150\n"},
		{"unknown log level", "advanced:\n  log_level: loud\n"},
		{"negative retention", "storage:\n  retention_minutes: -1\n"},
		{"malformed yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), DefaultFileName)
	cfg := DefaultConfig()
	cfg.Server.Port = 8181
	cfg.Processing.JPEGQuality = 80
	require.NoError(t, cfg.Save(p))

	loaded, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, 8181, loaded.Server.Port)
	assert.Equal(t, 80, loaded.Processing.JPEGQuality)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, DefaultFileName, filepath.Base(DefaultPath()))
}
