// Package config handles configuration loading and validation for the
// storage engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// StorageConfig holds page-store and redo-log configuration.
type StorageConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	PageSize int    `mapstructure:"page_size"`
	WalDir   string `mapstructure:"wal_dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:  "./data",
			PageSize: 8192,
			WalDir:   "", // defaults to DataDir/wal
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.page_size", cfg.Storage.PageSize)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)

	v.SetEnvPrefix("IGNITE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("ignite")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.ignite")
		v.AddConfigPath("/etc/ignite")

		// Missing config file is fine, defaults apply.
		_ = v.ReadInConfig()
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Storage.WalDir == "" {
		cfg.Storage.WalDir = filepath.Join(cfg.Storage.DataDir, "wal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configuration values are sensible.
func (c *Config) Validate() error {
	if c.Storage.PageSize < 512 || c.Storage.PageSize > 65536 {
		return fmt.Errorf("page_size must be between 512B and 64KB")
	}
	if c.Storage.PageSize&(c.Storage.PageSize-1) != 0 {
		return fmt.Errorf("page_size must be a power of 2")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	return nil
}

// ValidateDataDir checks that dir exists and holds an initialized store.
func ValidateDataDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", dir)
	}
	if err != nil {
		return fmt.Errorf("cannot access data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path is not a directory: %s", dir)
	}

	markerPath := filepath.Join(dir, ".ignite")
	if _, err := os.Stat(markerPath); os.IsNotExist(err) {
		return fmt.Errorf("directory is not an initialized data directory: %s", dir)
	}
	return nil
}

// InitDataDir creates and initializes a new data directory.
func InitDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "wal"), 0755); err != nil {
		return fmt.Errorf("failed to create wal directory: %w", err)
	}

	markerPath := filepath.Join(dir, ".ignite")
	if err := os.WriteFile(markerPath, []byte("ignite data directory v1\n"), 0644); err != nil {
		return fmt.Errorf("failed to create marker file: %w", err)
	}
	return nil
}

// CreateDefaultConfig writes a default configuration file.
func CreateDefaultConfig(path string, dataDir string) error {
	content := fmt.Sprintf(`# Storage engine configuration

storage:
  data_dir: %s
  page_size: 8192        # bytes, power of 2

log:
  level: info            # debug, info, warn, error
  format: text           # text or json
  output: stderr         # stderr, stdout, or file path
`, dataDir)

	return os.WriteFile(path, []byte(content), 0644)
}
