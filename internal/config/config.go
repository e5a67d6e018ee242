package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ivoronin/dupevid/internal/logging"
)

// ErrInvalidConfig is returned by Validate for out-of-range settings.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level        string            `mapstructure:"level"`
	Path         string            `mapstructure:"path"`
	ConsoleLevel string            `mapstructure:"console_level"`
	Components   map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	Extensions      []string      `mapstructure:"extensions"`
	Workers         int           `mapstructure:"workers"`
	BatchSize       int           `mapstructure:"batch_size"`
	CPUCeiling      float64       `mapstructure:"cpu_ceiling"`
	ThrottleDelay   time.Duration `mapstructure:"throttle_delay"`
	MemoryHighWater float64       `mapstructure:"memory_high_water"`
	ReliefPause     time.Duration `mapstructure:"relief_pause"`
	CacheFile       string        `mapstructure:"cache_file"` // Empty disables the digest cache
	Listen          string        `mapstructure:"listen"`
	Exclude         []string      `mapstructure:"exclude"` // Empty means the built-in deny-list
	Logging         LoggingConfig `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - path, when non-empty
//   - $XDG_CONFIG_HOME/dupevid/config.yaml
//   - $HOME/.config/dupevid/config.yaml
//
// Environment variables are prefixed with DUPEVID_ (e.g., DUPEVID_BATCH_SIZE,
// DUPEVID_LOGGING_LEVEL).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "dupevid"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "dupevid"))
		}
	}

	v.SetEnvPrefix("DUPEVID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("extensions", DefaultExtensions)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("batch_size", DefaultBatchSize)
	v.SetDefault("cpu_ceiling", DefaultCPUCeiling)
	v.SetDefault("throttle_delay", DefaultThrottleDelay)
	v.SetDefault("memory_high_water", DefaultMemoryHighWater)
	v.SetDefault("relief_pause", DefaultReliefPause)
	v.SetDefault("cache_file", DefaultCachePath())
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("exclude", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use logging.DefaultLogPath
	v.SetDefault("logging.console_level", "")
	v.SetDefault("logging.components", map[string]string{})

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks numeric settings are in range.
func (c *Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.CPUCeiling <= 0 || c.CPUCeiling > 100:
		return fmt.Errorf("%w: cpu_ceiling must be in (0, 100], got %v", ErrInvalidConfig, c.CPUCeiling)
	case c.MemoryHighWater <= 0 || c.MemoryHighWater > 100:
		return fmt.Errorf("%w: memory_high_water must be in (0, 100], got %v", ErrInvalidConfig, c.MemoryHighWater)
	case c.ThrottleDelay < 0 || c.ReliefPause < 0:
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LogConfig converts the logging section for logging.Init.
func (c *Config) LogConfig() logging.Config {
	path := c.Logging.Path
	if path == "" {
		path = logging.DefaultLogPath()
	}
	return logging.Config{
		Level:        c.Logging.Level,
		Path:         path,
		Components:   c.Logging.Components,
		ConsoleLevel: c.Logging.ConsoleLevel,
	}
}
