package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "soundboard"

type Config struct {
	AudioDir      string `toml:"audio_dir"`
	RegistryFile  string `toml:"registry_file"`
	LogLevel      string `toml:"log_level"`
	InputDevice   string `toml:"input_device"`  // "" = system default
	OutputDevice  string `toml:"output_device"` // "" = system default
	RetriggerMS   int    `toml:"retrigger_ms"`
	Notifications bool   `toml:"notifications"`

	path string
}

// Default returns the built-in configuration
func Default() *Config {
	data := DataPath()
	return &Config{
		AudioDir:      filepath.Join(data, "audio_files"),
		RegistryFile:  filepath.Join(data, "soundboard_data.json"),
		LogLevel:      "info",
		RetriggerMS:   150,
		Notifications: true,
		path:          Path(),
	}
}

// Load reads the config at path, or the platform default when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		cfg.path = path
	}

	data, err := os.ReadFile(cfg.path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cfg.path, err)
	}
	if cfg.RetriggerMS < 0 {
		cfg.RetriggerMS = 0
	}

	return cfg, nil
}

// Save writes the config to the file it was loaded from
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return os.WriteFile(c.path, buf.Bytes(), 0644)
}

// File returns the path Save writes to
func (c *Config) File() string {
	return c.path
}

// Retrigger is the minimum interval between two plays from the same hotkey
func (c *Config) Retrigger() time.Duration {
	return time.Duration(c.RetriggerMS) * time.Millisecond
}

// Path returns the platform-specific config file path
func Path() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.toml")
}

// DataPath returns the platform-specific directory for recordings and the
// sound registry
func DataPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName)
}
