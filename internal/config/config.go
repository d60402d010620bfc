// Package config loads and saves the application configuration.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the user-facing settings of the application. The retention
// limit is read once at startup and passed into the backup store explicitly;
// nothing reads it as ambient state afterwards.
type Config struct {
	ShowFriendlyNames      bool     `yaml:"show_friendly_names"`
	DisplayCharacterLevels bool     `yaml:"display_character_levels"`
	PreferredBranch        string   `yaml:"preferred_branch"`
	InstallRoots           []string `yaml:"install_roots"`
	LogFile                string   `yaml:"log_file"`
	Retention              struct {
		KeepLast int `yaml:"keep_last"`
	} `yaml:"retention"`
}

// DefaultKeepLast is the default number of unpinned backups kept per
// character.
const DefaultKeepLast = 10

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	cfg := &Config{
		ShowFriendlyNames:      true,
		DisplayCharacterLevels: true,
		PreferredBranch:        "_retail_",
	}
	cfg.Retention.KeepLast = DefaultKeepLast
	return cfg
}

// ConfigPath returns the path of the configuration file.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".chronobind", "config.yaml")
}

// Load reads the configuration file, falling back to defaults when it does
// not exist.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration file, creating its directory if needed.
func (c *Config) Save() error {
	path := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unexpanded if home unavailable
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
