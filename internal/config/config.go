package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the optional per-repository settings read from
// .grit/config.yaml. A missing file leaves the defaults in place.
type Config struct {
	DefaultBranch    string `mapstructure:"default_branch"`
	LogLevel         string `mapstructure:"log_level"`
	CompressionLevel int    `mapstructure:"compression_level"`
}

// Default returns the configuration used when no config file exists, e.g.
// before init has created the repository.
func Default() *Config {
	return &Config{
		DefaultBranch:    "main",
		CompressionLevel: 6,
	}
}

// Load reads the repository configuration from root/.grit/config.yaml.
func Load(root string) (*Config, error) {
	v := viper.New()
	v.SetDefault("default_branch", "main")
	v.SetDefault("log_level", "")
	v.SetDefault("compression_level", 6)
	v.SetConfigFile(filepath.Join(root, ".grit", "config.yaml"))

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading repository config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding repository config: %w", err)
	}

	return &cfg, nil
}
