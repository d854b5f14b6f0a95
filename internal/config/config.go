// Package config loads promptroute settings, the model catalog, and
// credentials from TOML/YAML files and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds all promptroute configuration.
type Config struct {
	General GeneralConfig          `toml:"general"`
	Gateway GatewayConfig          `toml:"gateway"`
	Routing RoutingConfig          `toml:"routing"`
	Logging LoggingConfig          `toml:"logging"`
	Budget  BudgetConfig           `toml:"budget"`
	Models  map[string]ModelConfig `toml:"models,omitempty"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DataDir     string `toml:"data_dir,omitempty"`
	DefaultDays int    `toml:"default_days"`
}

// GatewayConfig holds completion API settings.
type GatewayConfig struct {
	BaseURL           string `toml:"base_url"`
	APIKey            string `toml:"api_key,omitempty"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	Referer           string `toml:"referer,omitempty"`
	Title             string `toml:"title,omitempty"`
	RequestsPerMinute int    `toml:"requests_per_minute,omitempty"`
}

// RoutingConfig holds model selection settings.
type RoutingConfig struct {
	Strategy         string                       `toml:"strategy"`
	DefaultModel     string                       `toml:"default_model"`
	MaxTokensCeiling int                          `toml:"max_tokens_ceiling"`
	CatalogFile      string                       `toml:"catalog_file,omitempty"`
	Balanced         map[string]map[string]string `toml:"balanced,omitempty"`
}

// LoggingConfig holds application log settings.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	Compress   bool   `toml:"compress"`
}

// BudgetConfig holds budget tracking settings.
type BudgetConfig struct {
	MonthlyUSD *float64 `toml:"monthly_usd,omitempty"`
}

const (
	DefaultBaseURL      = "https://openrouter.ai/api/v1"
	DefaultModelID      = "anthropic/claude-3-haiku"
	DefaultTimeout      = 60
	DefaultTokenCeiling = 4000
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DefaultDays: 30,
		},
		Gateway: GatewayConfig{
			BaseURL:        DefaultBaseURL,
			TimeoutSeconds: DefaultTimeout,
			Referer:        "https://github.com/theirongolddev/promptroute",
			Title:          "promptroute",
		},
		Routing: RoutingConfig{
			Strategy:         "balanced",
			DefaultModel:     DefaultModelID,
			MaxTokensCeiling: DefaultTokenCeiling,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "promptroute")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "promptroute")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns where call logs, cost logs, and the ledger database live.
func DataDir(cfg Config) string {
	if cfg.General.DataDir != "" {
		return expandHome(cfg.General.DataDir)
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "promptroute")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "promptroute")
}

// Load reads the config file at the default path.
func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads the config file at path, returning defaults if it doesn't
// exist. A referenced catalog file is merged in.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Routing.CatalogFile != "" {
		catPath := expandHome(cfg.Routing.CatalogFile)
		if !filepath.IsAbs(catPath) {
			catPath = filepath.Join(filepath.Dir(path), catPath)
		}
		cf, err := LoadCatalogFile(catPath)
		if err != nil {
			return cfg, err
		}
		cfg.Routing.CatalogFile = catPath
		cfg.ApplyCatalogFile(cf)
	}

	return cfg, nil
}

// Save writes the config to the default path.
func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes the config to path, creating its directory.
func SaveTo(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
