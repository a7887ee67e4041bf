package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/supaspectre/internal/leakscan"
	"github.com/ppiankov/supaspectre/internal/models"
)

// Config holds all configuration for SupaSpectre
type Config struct {
	// Storage configuration
	StorageDir string `mapstructure:"storage_dir"`

	// Output format (text, json, both)
	Format string `mapstructure:"format"`

	// Verbose output
	Verbose bool `mapstructure:"verbose"`

	// Debug mode
	Debug bool `mapstructure:"debug"`

	// Log encoding (console, json)
	LogFormat string `mapstructure:"log_format"`

	// Bridge listen address
	ListenAddr string `mapstructure:"listen_addr"`

	// Concurrent table probes per report
	ProbeConcurrency int `mapstructure:"probe_concurrency"`

	// Leak scanner tuning
	ContextRadius      int      `mapstructure:"context_radius"`
	MinEntropy         float64  `mapstructure:"min_entropy"`
	IncludeEncoded     bool     `mapstructure:"include_encoded"`
	ExcludedExtensions []string `mapstructure:"excluded_extensions"`
	PatternsFile       string   `mapstructure:"patterns_file"`
	DenyList           []string `mapstructure:"deny_list"`

	// Risk level at or above which `report` exits 1; empty disables
	FailThreshold string `mapstructure:"fail_threshold"`

	// Policy file for `report --policy`
	PolicyFile string `mapstructure:"policy_file"`

	// Terms acceptance for CLI usage
	ConsentAccepted bool `mapstructure:"consent_accepted"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	scan := leakscan.DefaultOptions()
	return &Config{
		StorageDir:         ".supaspectre",
		Format:             "text",
		LogFormat:          "console",
		ListenAddr:         "127.0.0.1:8787",
		ProbeConcurrency:   4,
		ContextRadius:      scan.ContextRadius,
		MinEntropy:         scan.MinEntropy,
		IncludeEncoded:     scan.IncludeEncoded,
		ExcludedExtensions: scan.ExcludedExtensions,
	}
}

// ConfigPath returns the path a config file is written to: the XDG config
// directory when set, otherwise the home directory.
func ConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "supaspectre", "supaspectre.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "supaspectre.yaml")
	}
	return "supaspectre.yaml"
}

// Load loads configuration with the following precedence (lowest to highest):
// 1. Default values
// 2. Config file (./supaspectre.yaml, ~/supaspectre.yaml or $XDG_CONFIG_HOME/supaspectre/)
// 3. Environment variables (SUPASPECTRE_*)
// 4. CLI flags (handled by caller)
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile loads configuration from a specific file path.
// If path is empty, it searches for config in standard locations.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("storage_dir", defaults.StorageDir)
	v.SetDefault("format", defaults.Format)
	v.SetDefault("verbose", false)
	v.SetDefault("debug", false)
	v.SetDefault("log_format", defaults.LogFormat)
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("probe_concurrency", defaults.ProbeConcurrency)
	v.SetDefault("context_radius", defaults.ContextRadius)
	v.SetDefault("min_entropy", defaults.MinEntropy)
	v.SetDefault("include_encoded", defaults.IncludeEncoded)
	v.SetDefault("excluded_extensions", defaults.ExcludedExtensions)
	v.SetDefault("patterns_file", "")
	v.SetDefault("deny_list", []string{})
	v.SetDefault("fail_threshold", "")
	v.SetDefault("policy_file", "")
	v.SetDefault("consent_accepted", false)

	v.SetConfigName("supaspectre")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			v.AddConfigPath(filepath.Join(xdgConfig, "supaspectre"))
		}
	}

	v.SetEnvPrefix("SUPASPECTRE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validFormats := map[string]bool{
		"text": true,
		"json": true,
		"both": true,
	}
	if !validFormats[c.Format] {
		return fmt.Errorf("invalid format: %s (must be text, json, or both)", c.Format)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log_format: %s (must be console or json)", c.LogFormat)
	}

	if c.ProbeConcurrency <= 0 {
		return fmt.Errorf("probe_concurrency must be positive")
	}
	if c.ContextRadius < 0 {
		return fmt.Errorf("context_radius cannot be negative")
	}
	if c.MinEntropy < 0 {
		return fmt.Errorf("min_entropy cannot be negative")
	}

	if c.FailThreshold != "" {
		if _, ok := models.ParseRiskLevel(c.FailThreshold); !ok {
			return fmt.Errorf("invalid fail_threshold: %s (must be low, medium, high or critical)", c.FailThreshold)
		}
	}

	if strings.TrimSpace(c.StorageDir) == "" {
		return fmt.Errorf("storage_dir cannot be empty")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}

	return nil
}

// GetStoragePath returns the absolute path to the storage directory
func (c *Config) GetStoragePath() (string, error) {
	if strings.HasPrefix(c.StorageDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, c.StorageDir[2:]), nil
	}

	absPath, err := filepath.Abs(c.StorageDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

// ShouldFailOnThreshold reports whether risk reaches the fail threshold
func (c *Config) ShouldFailOnThreshold(risk models.RiskLevel) bool {
	if c.FailThreshold == "" {
		return false
	}
	threshold, ok := models.ParseRiskLevel(c.FailThreshold)
	if !ok {
		return false
	}
	return risk.AtLeast(threshold)
}

// ScannerOptions builds leak scanner options from the config and the
// optional patterns file
func (c *Config) ScannerOptions() (leakscan.Options, error) {
	opts := leakscan.DefaultOptions()
	opts.ContextRadius = c.ContextRadius
	opts.MinEntropy = c.MinEntropy
	opts.IncludeEncoded = c.IncludeEncoded
	if c.ExcludedExtensions != nil {
		opts.ExcludedExtensions = c.ExcludedExtensions
	}
	opts.DenyList = append(opts.DenyList, c.DenyList...)

	if c.PatternsFile == "" {
		return opts, nil
	}
	rf, err := leakscan.LoadRuleFile(c.PatternsFile)
	if err != nil {
		return opts, fmt.Errorf("patterns_file: %w", err)
	}
	if rf == nil {
		return opts, fmt.Errorf("patterns_file: %s not found", c.PatternsFile)
	}
	return rf.Apply(opts), nil
}

// WriteConsent records consent_accepted in the config file at path,
// preserving every other key. The file is created with 0600 permissions.
func WriteConsent(accepted bool, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("read %s: %w", path, err)
	}

	doc["consent_accepted"] = accepted
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// GenerateSampleConfig generates a sample configuration file content
func GenerateSampleConfig() string {
	return `# SupaSpectre Configuration
# Save this file as ~/supaspectre.yaml or ./supaspectre.yaml

# Directory holding detections and reports
storage_dir: .supaspectre

# Output format: text, json, or both
format: text

# Logging
verbose: false
debug: false
log_format: console

# Local bridge address for the browser extension
listen_addr: 127.0.0.1:8787

# Concurrent table probes per report
probe_concurrency: 4

# Leak scanner tuning
context_radius: 80
min_entropy: 3.0
include_encoded: true
# excluded_extensions: [.css, .woff2]
# patterns_file: leak-rules.yaml
# deny_list: [AKIAEXAMPLEEXAMPLE00]

# Exit 1 from 'report' when the report risk reaches this level
# (low, medium, high, critical). Leave empty to disable.
fail_threshold: ""

# Optional policy file checked by 'report --policy'
# policy_file: .supaspectre-policy.yaml

# Set by 'supaspectre consent --accept'
consent_accepted: false
`
}
