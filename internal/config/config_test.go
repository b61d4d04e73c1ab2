package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", "collector")
	require.NoError(t, err)
	assert.Equal(t, ":9560", cfg.HTTPListen)
	assert.Equal(t, "cpuinfo.db", cfg.DatabasePath)
	assert.True(t, cfg.EnableSwagger)
	assert.Equal(t, 24*time.Hour, cfg.PurgeInterval)
	assert.Equal(t, 25*time.Second, cfg.PollWait)
	assert.Equal(t, time.Duration(0), cfg.Interval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_listen: ":8080"
database: /var/lib/cpuinfo/snapshots.db
retention_days: 30
purge_interval: 6h
api_secret: from-file
`), 0o600))
	t.Setenv("CPUINFO_API_SECRET", "from-env")
	t.Setenv("CPUINFO_INTERVAL", "15m")

	cfg, err := Load(path, "collector")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPListen)
	assert.Equal(t, "/var/lib/cpuinfo/snapshots.db", cfg.DatabasePath)
	assert.Equal(t, 30, cfg.RetentionDays)
	assert.Equal(t, 6*time.Hour, cfg.PurgeInterval)
	assert.Equal(t, "from-env", cfg.ApiSecret)
	assert.Equal(t, 15*time.Minute, cfg.Interval)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "collector")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{PurgeInterval: time.Hour, PollWait: time.Second, LogLevel: "debug"}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero purge interval", func(c *Config) { c.PurgeInterval = 0 }},
		{"zero poll wait", func(c *Config) { c.PollWait = 0 }},
		{"negative retention", func(c *Config) { c.RetentionDays = -1 }},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := valid()
	assert.NoError(t, c.Validate())
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel(" Warn ")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)

	_, err = ParseLogLevel("")
	assert.Error(t, err)
}
