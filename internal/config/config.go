// Package config handles configuration loading and validation for Blastoise
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ChenPufeng/Blastoise/internal/logger"
	"github.com/ChenPufeng/Blastoise/pkg/sql"
	"github.com/ChenPufeng/Blastoise/pkg/storage"
)

// DefaultFileName is the config file name searched for and written by init.
const DefaultFileName = "blastoise.yaml"

// Config holds all configuration for Blastoise
type Config struct {
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Shell  ShellConfig  `mapstructure:"shell" yaml:"shell"`
}

// EngineConfig holds query engine limits
type EngineConfig struct {
	// MaxNestingDepth bounds parentheses, unary signs and derived tables
	MaxNestingDepth int `mapstructure:"max_nesting_depth" yaml:"max_nesting_depth"`
	// MaxResultRows caps the rows printed for one result, 0 prints all
	MaxResultRows int `mapstructure:"max_result_rows" yaml:"max_result_rows"`
	// SlotsPerPage is the number of rows per in-memory heap page
	SlotsPerPage int `mapstructure:"slots_per_page" yaml:"slots_per_page"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// ShellConfig holds interactive shell settings
type ShellConfig struct {
	Prompt      string `mapstructure:"prompt" yaml:"prompt"`
	HistoryFile string `mapstructure:"history_file" yaml:"history_file"`
}

// Default configuration values
func defaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxNestingDepth: 128,
			MaxResultRows:   1000,
			SlotsPerPage:    64,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		Shell: ShellConfig{
			Prompt:      "blastoise> ",
			HistoryFile: "",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	cfg := defaultConfig()
	v.SetDefault("engine.max_nesting_depth", cfg.Engine.MaxNestingDepth)
	v.SetDefault("engine.max_result_rows", cfg.Engine.MaxResultRows)
	v.SetDefault("engine.slots_per_page", cfg.Engine.SlotsPerPage)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.output", cfg.Log.Output)
	v.SetDefault("shell.prompt", cfg.Shell.Prompt)
	v.SetDefault("shell.history_file", cfg.Shell.HistoryFile)

	// Environment variable support
	v.SetEnvPrefix("BLASTOISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if specified
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// Search for config in common locations
		v.SetConfigName("blastoise")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.blastoise")
		v.AddConfigPath("/etc/blastoise")

		// A missing file is fine, defaults apply. A broken one is not.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are sensible
func (c *Config) Validate() error {
	if c.Engine.MaxNestingDepth < 1 || c.Engine.MaxNestingDepth > sql.MaxNestingDepth {
		return fmt.Errorf("max_nesting_depth must be between 1 and %d, got %d", sql.MaxNestingDepth, c.Engine.MaxNestingDepth)
	}
	if c.Engine.MaxResultRows < 0 {
		return fmt.Errorf("max_result_rows must not be negative, got %d", c.Engine.MaxResultRows)
	}
	if c.Engine.SlotsPerPage < 1 || c.Engine.SlotsPerPage > storage.MaxSlotsPerPage {
		return fmt.Errorf("slots_per_page must be between 1 and %d, got %d", storage.MaxSlotsPerPage, c.Engine.SlotsPerPage)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// YAML renders the configuration as a YAML document.
func (c *Config) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// CreateDefaultConfig writes a default configuration file. An existing file
// is left alone unless force is set.
func CreateDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}

	body, err := defaultConfig().YAML()
	if err != nil {
		return err
	}
	content := "# Blastoise Configuration File\n" +
		"# Every key can be overridden with BLASTOISE_<SECTION>_<KEY>, e.g. BLASTOISE_LOG_LEVEL=debug\n\n" +
		body

	return os.WriteFile(path, []byte(content), 0644)
}
