// Package config loads the application settings from a YAML file with
// LOTTERY_* environment overrides.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/logger"
	"gopkg.in/yaml.v3"

	"rollcall/internal/errors"
	"rollcall/internal/models"
)

// DefaultPath is where the config file is looked up when none is given.
const DefaultPath = "lottery_config.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOTTERY_"

// Storage backends.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// Animation speeds.
const (
	SpeedNone   = "none"
	SpeedSlow   = "slow"
	SpeedMedium = "medium"
	SpeedFast   = "fast"
)

// RevealTicks is how many preview ticks a draw emits before it settles.
const RevealTicks = 20

var tickIntervals = map[string]time.Duration{
	SpeedNone:   0,
	"off":       0,
	SpeedSlow:   200 * time.Millisecond,
	SpeedMedium: 100 * time.Millisecond,
	SpeedFast:   50 * time.Millisecond,
}

// Config holds every tunable of the application.
type Config struct {
	AutoBackup       bool          `yaml:"auto_backup" env:"AUTO_BACKUP"`
	AutoSave         bool          `yaml:"auto_save" env:"AUTO_SAVE"`
	AutosaveInterval time.Duration `yaml:"autosave_interval" env:"AUTOSAVE_INTERVAL"`
	AnimationSpeed   string        `yaml:"animation_speed" env:"ANIMATION_SPEED"`
	DefaultMode      string        `yaml:"default_lottery_mode" env:"DEFAULT_MODE"`
	MaxBackups       int           `yaml:"max_backups" env:"MAX_BACKUPS"`
	DataDir          string        `yaml:"data_dir" env:"DATA_DIR"`
	Storage          string        `yaml:"storage" env:"STORAGE"`
	Addr             string        `yaml:"addr" env:"ADDR"`
	PublicURL        string        `yaml:"public_url" env:"PUBLIC_URL"`
	Seed             uint64        `yaml:"seed" env:"SEED"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		AutoBackup:       true,
		AutoSave:         true,
		AutosaveInterval: 30 * time.Second,
		AnimationSpeed:   SpeedMedium,
		DefaultMode:      string(models.ModeUniform),
		MaxBackups:       10,
		DataDir:          ".",
		Storage:          StorageFile,
		Addr:             ":8080",
	}
}

// Load merges the file at path over the defaults, then applies environment
// overrides. A missing file is not an error; an unreadable or malformed one
// is logged and ignored.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg, err := LoadFile(path)
	if err != nil {
		logger.Warningf("Ignoring config: %v", err)
		cfg = Default()
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, errors.InvalidInputf("environment: %v", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile merges only the file at path over the defaults. Unlike Load it
// reports an unreadable or malformed file, so callers that rewrite the file
// never replace one they could not parse.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if stderrors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.IOFailure(err, fmt.Sprintf("read config %s", path))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), errors.InvalidInputf("malformed config %s: %v", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.AnimationSpeed = strings.ToLower(strings.TrimSpace(c.AnimationSpeed))
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
}

// Validate rejects settings the application cannot run with.
func (c Config) Validate() error {
	if _, ok := models.ParseMode(c.DefaultMode); !ok {
		return errors.InvalidInputf("unknown default_lottery_mode %q", c.DefaultMode)
	}
	if _, ok := tickIntervals[c.AnimationSpeed]; !ok {
		return errors.InvalidInputf("unknown animation_speed %q", c.AnimationSpeed)
	}
	if c.Storage != StorageFile && c.Storage != StorageSQLite {
		return errors.InvalidInputf("unknown storage %q", c.Storage)
	}
	if c.MaxBackups < 1 {
		return errors.InvalidInputf("max_backups must be at least 1, got %d", c.MaxBackups)
	}
	if c.AutoSave && c.AutosaveInterval <= 0 {
		return errors.InvalidInputf("autosave_interval must be positive, got %s", c.AutosaveInterval)
	}
	return nil
}

// Save writes c to path as YAML.
func (c Config) Save(path string) error {
	if path == "" {
		path = DefaultPath
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IOFailure(err, fmt.Sprintf("write config %s", path))
	}
	return nil
}

// Entry is one setting as it is spelled in the config file.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Entries lists every setting in file order.
func (c Config) Entries() ([]Entry, error) {
	var node yaml.Node
	if err := node.Encode(c); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "encode config")
	}
	out := make([]Entry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, Entry{Key: node.Content[i].Value, Value: node.Content[i+1].Value})
	}
	return out, nil
}

// Get returns the value of the setting named key.
func (c Config) Get(key string) (string, error) {
	entries, err := c.Entries()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Key == key {
			return e.Value, nil
		}
	}
	return "", errors.InvalidInputf("unknown setting %q", key)
}

// Set parses value the way the config file would and stores it under key.
// The result must pass Validate; on any error c is left unchanged.
func (c *Config) Set(key, value string) error {
	if _, err := c.Get(key); err != nil {
		return err
	}
	val := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	if value == "" {
		// An untagged empty scalar is null, which leaves strings unchanged.
		val.Tag = "!!str"
	}
	doc := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		{Kind: yaml.ScalarNode, Value: key},
		val,
	}}
	next := *c
	if err := doc.Decode(&next); err != nil {
		return errors.InvalidInputf("%s: %v", key, err)
	}
	next.normalize()
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Mode is the parsed default draw mode.
func (c Config) Mode() models.Mode {
	m, _ := models.ParseMode(c.DefaultMode)
	return m
}

// TickInterval is the delay between draw reveal ticks. Zero disables ticks.
func (c Config) TickInterval() time.Duration {
	return tickIntervals[c.AnimationSpeed]
}

// Settings is the part of c recorded alongside the engine state.
func (c Config) Settings() models.Settings {
	return models.Settings{AutoBackup: c.AutoBackup, AutoSave: c.AutoSave}
}
