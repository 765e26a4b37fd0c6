package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "links.db", filepath.Base(cfg.Storage.Path))
	assert.Equal(t, 8*time.Second, cfg.Preview.Timeout)
	assert.Equal(t, 1, cfg.Preview.RetryCount)
	assert.Equal(t, "https://api.microlink.io", cfg.Preview.APIURL)
	assert.Equal(t, 60*time.Second, cfg.Content.Timeout)
	assert.Equal(t, 100, cfg.Content.MinAPILength)
	assert.Equal(t, 50, cfg.Content.MinHTMLLength)
	assert.Equal(t, 15, cfg.Content.BrowserAttempts)
	assert.Equal(t, 3, cfg.Content.MinBlocks)
	assert.True(t, cfg.Content.RawHTML)
	assert.False(t, cfg.Content.Browser)
	assert.Empty(t, cfg.Cache.RedisAddr)
	assert.Equal(t, 200, cfg.Reading.WordsPerMinute)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  driver: badger
  path: ` + filepath.Join(dir, "data") + `
preview:
  timeout: 3s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("SAVEIT_CONTENT_MIN_API_LENGTH", "250")
	t.Setenv("SAVEIT_CACHE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverBadger, cfg.Storage.Driver)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Storage.Path)
	assert.Equal(t, 3*time.Second, cfg.Preview.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 250, cfg.Content.MinAPILength)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)

	bad := cfg
	bad.Storage.Driver = "postgres"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Preview.Timeout = 0
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Content.Timeout = -time.Second
	assert.Error(t, bad.Validate())
}

func TestDefaultStoragePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	p, err := DefaultStoragePath(DriverBadger)
	require.NoError(t, err)
	assert.Equal(t, "badger", filepath.Base(p))
	assert.Equal(t, AppName, filepath.Base(filepath.Dir(p)))
}
