package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	// Check defaults
	if cfg.Engine.MaxNestingDepth != 128 {
		t.Errorf("Expected default nesting depth 128, got %d", cfg.Engine.MaxNestingDepth)
	}

	if cfg.Engine.MaxResultRows != 1000 {
		t.Errorf("Expected default max result rows 1000, got %d", cfg.Engine.MaxResultRows)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Expected default log level 'warn', got %s", cfg.Log.Level)
	}

	if cfg.Shell.Prompt != "blastoise> " {
		t.Errorf("Expected default prompt, got %q", cfg.Shell.Prompt)
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
			name: "zero nesting depth",
			modify: func(c *Config) {
				c.Engine.MaxNestingDepth = 0
			},
			shouldError: true,
		},
		{
			name: "nesting depth at the limit",
			modify: func(c *Config) {
				c.Engine.MaxNestingDepth = 10000
			},
			shouldError: false,
		},
		{
			name: "nesting depth above the limit",
			modify: func(c *Config) {
				c.Engine.MaxNestingDepth = 10001
			},
			shouldError: true,
		},
		{
			name: "negative result rows",
			modify: func(c *Config) {
				c.Engine.MaxResultRows = -1
			},
			shouldError: true,
		},
		{
			name: "unlimited result rows",
			modify: func(c *Config) {
				c.Engine.MaxResultRows = 0
			},
			shouldError: false,
		},
		{
			name: "zero slots per page",
			modify: func(c *Config) {
				c.Engine.SlotsPerPage = 0
			},
			shouldError: true,
		},
		{
			name: "slots per page at the slot limit",
			modify: func(c *Config) {
				c.Engine.SlotsPerPage = 65536
			},
			shouldError: false,
		},
		{
			name: "slots per page beyond the slot limit",
			modify: func(c *Config) {
				c.Engine.SlotsPerPage = 70000
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
		{
			name: "warning alias",
			modify: func(c *Config) {
				c.Log.Level = "WARNING"
			},
			shouldError: false,
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.Log.Format = "xml"
			},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
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

func TestLoadConfigFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "test.yaml")

	content := `
engine:
  max_nesting_depth: 16
  max_result_rows: 5
log:
  level: debug
  format: json
shell:
  prompt: "sql> "
`
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Engine.MaxNestingDepth != 16 {
		t.Errorf("Expected nesting depth 16, got %d", cfg.Engine.MaxNestingDepth)
	}
	if cfg.Engine.MaxResultRows != 5 {
		t.Errorf("Expected max result rows 5, got %d", cfg.Engine.MaxResultRows)
	}
	if cfg.Engine.SlotsPerPage != 64 {
		t.Errorf("Expected default slots per page 64, got %d", cfg.Engine.SlotsPerPage)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Expected debug/json logging, got %s/%s", cfg.Log.Level, cfg.Log.Format)
	}
	if cfg.Shell.Prompt != "sql> " {
		t.Errorf("Expected prompt 'sql> ', got %q", cfg.Shell.Prompt)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	tmpDir := t.TempDir()

	bad := filepath.Join(tmpDir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("engine:\n  max_nesting_depth: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Expected validation error for max_nesting_depth 0")
	}

	if _, err := Load(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("Expected error for a missing explicit config file")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("BLASTOISE_LOG_LEVEL", "error")
	t.Setenv("BLASTOISE_ENGINE_MAX_NESTING_DEPTH", "32")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Expected log level from environment, got %s", cfg.Log.Level)
	}
	if cfg.Engine.MaxNestingDepth != 32 {
		t.Errorf("Expected nesting depth from environment, got %d", cfg.Engine.MaxNestingDepth)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), DefaultFileName)

	if err := CreateDefaultConfig(cfgPath, false); err != nil {
		t.Fatalf("CreateDefaultConfig failed: %v", err)
	}

	content, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	for _, want := range []string{"max_nesting_depth: 128", "level: warn", "prompt:", "blastoise> "} {
		if !strings.Contains(string(content), want) {
			t.Errorf("config file missing %q:\n%s", want, content)
		}
	}

	// the written file loads back to the defaults
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Failed to load written config: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("round trip changed config: %+v", cfg)
	}

	if err := CreateDefaultConfig(cfgPath, false); err == nil {
		t.Error("Expected error when config file exists")
	}
	if err := CreateDefaultConfig(cfgPath, true); err != nil {
		t.Errorf("force overwrite failed: %v", err)
	}
}
