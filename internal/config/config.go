// Package config handles kiln configuration: the per-vault kiln.toml and the
// global file that names known vaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aidanlsb/kiln/internal/atomicfile"
)

// FileName is the name of the per-vault config file.
const FileName = "kiln.toml"

// Config represents the configuration of one vault.
type Config struct {
	Tree    TreeConfig    `toml:"tree"`
	Log     LogConfig     `toml:"log"`
	Buffers BuffersConfig `toml:"buffers"`
	Watch   WatchConfig   `toml:"watch"`
	UI      UIConfig      `toml:"ui"`
}

// TreeConfig controls the asset tree.
type TreeConfig struct {
	// SortDescending sorts children Z to A instead of A to Z.
	SortDescending bool `toml:"sort_descending"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level"`

	// Format is text or json.
	Format string `toml:"format"`
}

// BuffersConfig controls the stream buffer store.
type BuffersConfig struct {
	// InMemory keeps buffers in memory only. Useful for scratch vaults.
	InMemory bool `toml:"in_memory"`

	// CompressionLevel is one of fastest, default, better, best.
	CompressionLevel string `toml:"compression_level"`
}

// WatchConfig controls the file watcher.
type WatchConfig struct {
	// DebounceMS is how long to wait for more events before reloading.
	DebounceMS int `toml:"debounce_ms"`
}

// UIConfig represents optional CLI theming preferences.
type UIConfig struct {
	// Accent is an optional accent color for CLI output.
	// Supported values are ANSI color codes ("0" to "255") or hex colors ("#RRGGBB").
	Accent string `toml:"accent"`

	// CodeTheme sets the Glamour/Chroma theme used for rendered text fields.
	CodeTheme string `toml:"code_theme"`
}

// Default returns the configuration used when kiln.toml is absent.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Buffers: BuffersConfig{CompressionLevel: "default"},
		Watch:   WatchConfig{DebounceMS: 100},
	}
}

// Load loads a vault's kiln.toml.
// Returns the default config if the file doesn't exist.
func Load(vaultPath string) (*Config, error) {
	path := filepath.Join(vaultPath, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}

	return LoadFrom(path)
}

// LoadFrom loads the configuration from a specific path. Keys missing from
// the file keep their default values.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	switch strings.ToLower(c.Buffers.CompressionLevel) {
	case "", "fastest", "default", "better", "best":
	default:
		return fmt.Errorf("buffers.compression_level %q is not one of fastest, default, better, best", c.Buffers.CompressionLevel)
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must not be negative")
	}
	return nil
}

// Debounce returns the watcher debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Watch.DebounceMS) * time.Millisecond
}

// Save writes the configuration to a vault's kiln.toml atomically.
func Save(vaultPath string, cfg *Config) error {
	if cfg == nil {
		cfg = Default()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(vaultPath, FileName)
	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// CreateDefault writes a commented default kiln.toml if none exists.
func CreateDefault(vaultPath string) (string, error) {
	path := filepath.Join(vaultPath, FileName)

	if _, err := os.Stat(path); err == nil {
		return path, nil // Already exists
	}

	defaultConfig := `# Kiln vault configuration

[tree]
# Sort children Z to A instead of A to Z.
sort_descending = false

[log]
# debug, info, warn, error
level = "info"
# text or json
format = "text"

[buffers]
# Keep stream buffers in memory only.
in_memory = false
# fastest, default, better, best
compression_level = "default"

[watch]
debounce_ms = 100

# [ui]
# accent = "39"
# code_theme = "monokai"
`

	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}
