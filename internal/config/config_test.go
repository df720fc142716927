package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[world]
workers = 4

[tick]
rate = "50ms"
rounds = 10

[database]
dsn = "postgres://localhost/courier"

[blueprints]
files = ["a.yaml", "b.yaml"]

[blueprints.seed]
rabbit = 3
`), "inline")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.World.Workers)
	assert.Equal(t, 1024, cfg.World.Capacity, "untouched keys keep defaults")
	assert.Equal(t, 50*time.Millisecond, cfg.Tick.Rate)
	assert.Equal(t, 10, cfg.Tick.Rounds)
	assert.Equal(t, "postgres://localhost/courier", cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.Blueprints.Files)
	assert.Equal(t, map[string]int{"rabbit": 3}, cfg.Blueprints.Seed)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse([]byte("[profile]\nmode = \"trace\"\n"), "bad")
	assert.ErrorContains(t, err, "profile.mode")

	_, err = Parse([]byte("[tick]\nrate = \"0s\"\n"), "bad")
	assert.ErrorContains(t, err, "tick.rate")

	_, err = Parse([]byte("[world\n"), "bad")
	assert.ErrorContains(t, err, "parse config bad")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courier.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "read config")
}
