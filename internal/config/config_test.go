package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	if cfg.Storage.PageSize != 8192 {
		t.Errorf("Expected default page size 8192, got %d", cfg.Storage.PageSize)
	}

	if cfg.Storage.WalDir != filepath.Join(cfg.Storage.DataDir, "wal") {
		t.Errorf("Expected wal dir under data dir, got %s", cfg.Storage.WalDir)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.Log.Level)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		shouldError bool
	}{
		{
			name:        "valid config",
			modify:      func(c *Config) {},
			shouldError: false,
		},
		{
			name: "page size too small",
			modify: func(c *Config) {
				c.Storage.PageSize = 256
			},
			shouldError: true,
		},
		{
			name: "page size not power of 2",
			modify: func(c *Config) {
				c.Storage.PageSize = 5000
			},
			shouldError: true,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _ := Load("")
			tt.modify(cfg)
			err := cfg.Validate()

			if tt.shouldError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.shouldError && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestInitDataDir(t *testing.T) {
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "testdb")

	if err := InitDataDir(dataDir); err != nil {
		t.Fatalf("InitDataDir failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dataDir, "wal")); os.IsNotExist(err) {
		t.Error("Expected wal directory to exist")
	}

	if _, err := os.Stat(filepath.Join(dataDir, ".ignite")); os.IsNotExist(err) {
		t.Error("Expected marker file .ignite to exist")
	}

	if err := ValidateDataDir(dataDir); err != nil {
		t.Errorf("ValidateDataDir failed: %v", err)
	}
}

func TestValidateDataDir_NotExists(t *testing.T) {
	err := ValidateDataDir("/nonexistent/path")
	if err == nil {
		t.Error("Expected error for nonexistent directory")
	}
}

func TestValidateDataDir_NotInitialized(t *testing.T) {
	tmpDir := t.TempDir()
	err := ValidateDataDir(tmpDir)
	if err == nil {
		t.Error("Expected error for uninitialized directory")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "test.yaml")

	content := `
storage:
  data_dir: /custom/path
  page_size: 16384
log:
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Storage.DataDir != "/custom/path" {
		t.Errorf("Expected data dir /custom/path, got %s", cfg.Storage.DataDir)
	}

	if cfg.Storage.PageSize != 16384 {
		t.Errorf("Expected page size 16384, got %d", cfg.Storage.PageSize)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
}
