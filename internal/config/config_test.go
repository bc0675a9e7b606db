package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lottery_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, models.ModeUniform, cfg.Mode())
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
auto_backup: false
animation_speed: Fast
default_lottery_mode: balanced
max_backups: 3
autosave_interval: 1m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.AutoBackup)
	assert.True(t, cfg.AutoSave, "unset keys keep their default")
	assert.Equal(t, SpeedFast, cfg.AnimationSpeed)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, models.ModeFair, cfg.Mode())
	assert.Equal(t, 3, cfg.MaxBackups)
	assert.Equal(t, time.Minute, cfg.AutosaveInterval)
	assert.Equal(t, StorageFile, cfg.Storage)
}

func TestLoadMalformedFileFallsBack(t *testing.T) {
	path := writeConfig(t, "max_backups: [1, 2\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "storage: file\nmax_backups: 4\n")
	t.Setenv("LOTTERY_STORAGE", "sqlite")
	t.Setenv("LOTTERY_MAX_BACKUPS", "7")
	t.Setenv("LOTTERY_AUTO_SAVE", "false")
	t.Setenv("LOTTERY_ANIMATION_SPEED", "none")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, 7, cfg.MaxBackups)
	assert.False(t, cfg.AutoSave)
	assert.Zero(t, cfg.TickInterval())
}

func TestEnvParseError(t *testing.T) {
	t.Setenv("LOTTERY_MAX_BACKUPS", "lots")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Equal(t, errors.ErrInvalidInput, errors.KindOf(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode", func(c *Config) { c.DefaultMode = "lucky" }},
		{"speed", func(c *Config) { c.AnimationSpeed = "warp" }},
		{"storage", func(c *Config) { c.Storage = "postgres" }},
		{"max backups", func(c *Config) { c.MaxBackups = 0 }},
		{"interval", func(c *Config) { c.AutosaveInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Equal(t, errors.ErrInvalidInput, errors.KindOf(cfg.Validate()))
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.MaxBackups = 25
	cfg.DefaultMode = string(models.ModeWeighted)
	cfg.AutosaveInterval = 45 * time.Second
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestSettings(t *testing.T) {
	cfg := Default()
	cfg.AutoSave = false
	assert.Equal(t, models.Settings{AutoBackup: true, AutoSave: false}, cfg.Settings())
}

func TestLoadFileReportsProblems(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = LoadFile(writeConfig(t, "max_backups: [1, 2\n"))
	assert.Equal(t, errors.ErrInvalidInput, errors.KindOf(err))

	t.Setenv("LOTTERY_MAX_BACKUPS", "7")
	cfg, err = LoadFile(writeConfig(t, "max_backups: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxBackups, "environment is not applied")
}

func TestGetAndSet(t *testing.T) {
	cfg := Default()

	v, err := cfg.Get("max_backups")
	require.NoError(t, err)
	assert.Equal(t, "10", v)
	v, err = cfg.Get("autosave_interval")
	require.NoError(t, err)
	assert.Equal(t, "30s", v)

	require.NoError(t, cfg.Set("max_backups", "25"))
	require.NoError(t, cfg.Set("autosave_interval", "2m"))
	require.NoError(t, cfg.Set("auto_backup", "false"))
	require.NoError(t, cfg.Set("storage", "SQLite"))
	require.NoError(t, cfg.Set("default_lottery_mode", "权重模式"))
	require.NoError(t, cfg.Set("public_url", "http://10.0.0.5:8080"))
	assert.Equal(t, 25, cfg.MaxBackups)
	assert.Equal(t, 2*time.Minute, cfg.AutosaveInterval)
	assert.False(t, cfg.AutoBackup)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, models.ModeWeighted, cfg.Mode())

	require.NoError(t, cfg.Set("public_url", ""))
	assert.Empty(t, cfg.PublicURL)

	before := cfg
	tests := []struct{ key, value string }{
		{"colour", "blue"},
		{"max_backups", "0"},
		{"max_backups", "many"},
		{"auto_save", "perhaps"},
		{"storage", "postgres"},
	}
	for _, tt := range tests {
		err := cfg.Set(tt.key, tt.value)
		assert.Equal(t, errors.ErrInvalidInput, errors.KindOf(err), "%s=%s", tt.key, tt.value)
	}
	assert.Equal(t, before, cfg, "failed sets leave the config unchanged")
}

func TestEntriesFollowFileOrder(t *testing.T) {
	entries, err := Default().Entries()
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, Entry{Key: "auto_backup", Value: "true"}, entries[0])
	assert.Equal(t, "seed", entries[len(entries)-1].Key)
}
