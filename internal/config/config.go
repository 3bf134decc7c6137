// Package config loads the optional YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	// DataDir is where the ledger and aggregate files (or the SQLite
	// database) live. Defaults to the config directory.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// Store selects the persistence backend: "file" or "sqlite".
	Store string `mapstructure:"store" yaml:"store"`

	// Budget is the default cap on new messages folded per run.
	Budget int `mapstructure:"budget" yaml:"budget"`

	// PageSize is the message-list page size requested from the source.
	PageSize int64 `mapstructure:"page_size" yaml:"page_size"`

	// IncludeSpamTrash also scans spam and trash.
	IncludeSpamTrash bool `mapstructure:"include_spam_trash" yaml:"include_spam_trash"`
}

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// DefaultDir returns the default configuration directory,
// ~/.config/mailcensus.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "mailcensus"), nil
}

func defaults(dir string) *Config {
	return &Config{
		DataDir:  dir,
		Store:    StoreFile,
		Budget:   1000,
		PageSize: 500,
	}
}

// Load reads <dir>/config.yaml using Viper. A missing file yields the
// defaults; a malformed file is an error.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("data_dir", dir)
	v.SetDefault("store", StoreFile)
	v.SetDefault("budget", 1000)
	v.SetDefault("page_size", 500)
	v.SetDefault("include_spam_trash", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaults(dir), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults(dir), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaults(dir)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Store != StoreFile && cfg.Store != StoreSQLite {
		return nil, fmt.Errorf("config %s: unknown store backend %q", path, cfg.Store)
	}
	return cfg, nil
}
