// Package config loads the sdgfeed CLI configuration from an optional
// config file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full CLI configuration.
type Config struct {
	API   APIConfig   `mapstructure:"api"`
	Feed  FeedConfig  `mapstructure:"feed"`
	State StateConfig `mapstructure:"state"`
}

// APIConfig addresses the backend.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FeedConfig shapes pagination.
type FeedConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// StateConfig controls view-state persistence.
type StateConfig struct {
	Path string        `mapstructure:"path"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// Dir returns the configuration directory, honoring
// SDGFEED_CONFIG_DIR for tests and unusual setups.
func Dir() string {
	if dir := os.Getenv("SDGFEED_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "sdgfeed")
}

// Load reads config.yaml from dir when present, applies defaults and
// SDGFEED_* environment overrides.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetDefault("api.base_url", "https://api.thesdgstory.com/api/v1")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("feed.page_size", 10)
	v.SetDefault("state.path", filepath.Join(dir, "viewstate.db"))
	v.SetDefault("state.ttl", time.Hour)

	v.SetEnvPrefix("SDGFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Feed.PageSize <= 0 {
		return nil, fmt.Errorf("feed.page_size must be positive, got %d", cfg.Feed.PageSize)
	}
	return &cfg, nil
}
