// Package config loads settings from an optional YAML file, SAVEIT_* environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppName is used for the config directory and env prefix.
const AppName = "saveit"

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Config holds all configuration for the application.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Preview PreviewConfig `mapstructure:"preview"`
	Content ContentConfig `mapstructure:"content"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Reading ReadingConfig `mapstructure:"reading"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PreviewConfig configures the metadata API client.
type PreviewConfig struct {
	APIURL          string        `mapstructure:"api_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryCount      int           `mapstructure:"retry_count"`
	RetryWait       time.Duration `mapstructure:"retry_wait"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	Burst           int           `mapstructure:"burst"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerOpen     time.Duration `mapstructure:"breaker_open"`
}

// ContentConfig configures full-text extraction.
type ContentConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MinAPILength    int           `mapstructure:"min_api_length"`
	MinHTMLLength   int           `mapstructure:"min_html_length"`
	RawHTML         bool          `mapstructure:"raw_html"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	Browser         bool          `mapstructure:"browser"`
	BrowserAttempts int           `mapstructure:"browser_attempts"`
	BrowserInterval time.Duration `mapstructure:"browser_interval"`
	MinBlocks       int           `mapstructure:"min_blocks"`
}

// CacheConfig enables the Redis preview cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ReadingConfig struct {
	WordsPerMinute int `mapstructure:"words_per_minute"`
}

// DefaultDir returns the platform config directory for the app.
func DefaultDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.path", "")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	v.SetDefault("preview.api_url", "https://api.microlink.io")
	v.SetDefault("preview.timeout", 8*time.Second)
	v.SetDefault("preview.retry_count", 1)
	v.SetDefault("preview.retry_wait", 500*time.Millisecond)
	v.SetDefault("preview.rate_per_second", 2.0)
	v.SetDefault("preview.burst", 4)
	v.SetDefault("preview.breaker_failures", 5)
	v.SetDefault("preview.breaker_open", 30*time.Second)

	v.SetDefault("content.timeout", 60*time.Second)
	v.SetDefault("content.min_api_length", 100)
	v.SetDefault("content.min_html_length", 50)
	v.SetDefault("content.raw_html", true)
	v.SetDefault("content.max_body_bytes", 5<<20)
	v.SetDefault("content.browser", false)
	v.SetDefault("content.browser_attempts", 15)
	v.SetDefault("content.browser_interval", time.Second)
	v.SetDefault("content.min_blocks", 3)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("reading.words_per_minute", 200)
}

// Load reads configuration. An explicit path must exist; without one the
// default location is tried and silently skipped when absent.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else if dir, err := DefaultDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Storage.Path == "" {
		p, err := DefaultStoragePath(cfg.Storage.Driver)
		if err != nil {
			return Config{}, fmt.Errorf("resolve storage path: %w", err)
		}
		cfg.Storage.Path = p
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultStoragePath returns where a driver keeps its data by default.
func DefaultStoragePath(driver string) (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	if driver == DriverBadger {
		return filepath.Join(dir, "badger"), nil
	}
	return filepath.Join(dir, "links.db"), nil
}

// Validate rejects settings the application cannot run with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverBadger:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Preview.Timeout <= 0 {
		return fmt.Errorf("preview.timeout must be positive")
	}
	if c.Content.Timeout <= 0 {
		return fmt.Errorf("content.timeout must be positive")
	}
	if c.Preview.RetryCount < 0 {
		return fmt.Errorf("preview.retry_count must not be negative")
	}
	return nil
}
