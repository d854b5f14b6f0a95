package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/theirongolddev/promptroute/internal/catalog"
	"github.com/theirongolddev/promptroute/internal/model"
)

// ModelConfig is one catalog entry as written in config or catalog files.
type ModelConfig struct {
	Provider        string   `toml:"provider" yaml:"provider"`
	CostPer1KTokens float64  `toml:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
	MaxTokens       int      `toml:"max_tokens" yaml:"max_tokens"`
	ContextLength   int      `toml:"context_length" yaml:"context_length"`
	Strengths       []string `toml:"strengths,omitempty" yaml:"strengths,omitempty"`
	Temperature     *float64 `toml:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// DefaultTemperature applies when a model entry omits temperature.
const DefaultTemperature = 0.7

// DefaultModels is the catalog used when no models are configured.
var DefaultModels = map[string]ModelConfig{
	"anthropic/claude-3-opus": {
		Provider: "anthropic", CostPer1KTokens: 0.015, MaxTokens: 4096, ContextLength: 200000,
		Strengths: []string{"reasoning", "code", "analysis"},
	},
	"anthropic/claude-3-sonnet": {
		Provider: "anthropic", CostPer1KTokens: 0.003, MaxTokens: 4096, ContextLength: 200000,
		Strengths: []string{"summary", "analysis", "writing"},
	},
	"anthropic/claude-3-haiku": {
		Provider: "anthropic", CostPer1KTokens: 0.00025, MaxTokens: 4096, ContextLength: 200000,
		Strengths: []string{"speed", "question"},
	},
	"openai/gpt-4o": {
		Provider: "openai", CostPer1KTokens: 0.005, MaxTokens: 4096, ContextLength: 128000,
		Strengths: []string{"code", "reasoning"},
	},
	"openai/gpt-3.5-turbo": {
		Provider: "openai", CostPer1KTokens: 0.0005, MaxTokens: 4096, ContextLength: 16385,
		Strengths: []string{"speed", "question"},
	},
}

// Descriptor converts a config entry into a catalog descriptor.
func (m ModelConfig) Descriptor(id string) model.ModelDescriptor {
	temp := DefaultTemperature
	if m.Temperature != nil {
		temp = *m.Temperature
	}
	provider := m.Provider
	if provider == "" {
		if i := strings.Index(id, "/"); i > 0 {
			provider = id[:i]
		}
	}
	return model.ModelDescriptor{
		ID:              id,
		Provider:        provider,
		CostPer1KTokens: m.CostPer1KTokens,
		MaxTokens:       m.MaxTokens,
		ContextLength:   m.ContextLength,
		Strengths:       append([]string(nil), m.Strengths...),
		Temperature:     temp,
	}
}

// CatalogFile is the layout of an external catalog file. It accepts the
// original YAML layout with per-type model tables.
type CatalogFile struct {
	Models             map[string]ModelConfig `toml:"models" yaml:"models"`
	DefaultModel       string                 `toml:"default_model" yaml:"default_model"`
	OptimizationTarget string                 `toml:"optimization_target" yaml:"optimization_target"`
	CodeModels         map[string]string      `toml:"code_models" yaml:"code_models"`
	SummaryModels      map[string]string      `toml:"summary_models" yaml:"summary_models"`
	QuestionModels     map[string]string      `toml:"question_models" yaml:"question_models"`
}

// LoadCatalogFile reads a YAML (.yaml/.yml) or TOML catalog file.
func LoadCatalogFile(path string) (CatalogFile, error) {
	var cf CatalogFile
	data, err := os.ReadFile(path)
	if err != nil {
		return cf, fmt.Errorf("reading catalog file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cf)
	default:
		err = toml.Unmarshal(data, &cf)
	}
	if err != nil {
		return cf, fmt.Errorf("parsing catalog file %s: %w", filepath.Base(path), err)
	}
	return cf, nil
}

// ApplyCatalogFile merges a catalog file over the config. Non-empty model
// sets replace the configured ones; per-type tables override balanced entries.
func (c *Config) ApplyCatalogFile(cf CatalogFile) {
	if len(cf.Models) > 0 {
		c.Models = cf.Models
	}
	if cf.DefaultModel != "" {
		c.Routing.DefaultModel = cf.DefaultModel
	}
	if cf.OptimizationTarget != "" {
		c.Routing.Strategy = cf.OptimizationTarget
	}
	tables := map[model.PromptType]map[string]string{
		model.TypeCode:     cf.CodeModels,
		model.TypeSummary:  cf.SummaryModels,
		model.TypeQuestion: cf.QuestionModels,
	}
	for t, table := range tables {
		if len(table) == 0 {
			continue
		}
		if c.Routing.Balanced == nil {
			c.Routing.Balanced = make(map[string]map[string]string)
		}
		if c.Routing.Balanced[string(t)] == nil {
			c.Routing.Balanced[string(t)] = make(map[string]string)
		}
		for bucket, id := range table {
			c.Routing.Balanced[string(t)][bucket] = id
		}
	}
}

// ModelSet returns the configured models, or the defaults if none are set.
func (c Config) ModelSet() map[string]ModelConfig {
	if len(c.Models) > 0 {
		return c.Models
	}
	return DefaultModels
}

// BalancedOverrides converts the [routing.balanced] tables into typed form.
// Unknown prompt types and buckets are ignored.
func (c Config) BalancedOverrides() map[model.PromptType]map[model.LengthBucket]string {
	out := make(map[model.PromptType]map[model.LengthBucket]string)
	for _, t := range model.PromptTypes {
		table := c.Routing.Balanced[string(t)]
		if len(table) == 0 {
			continue
		}
		row := make(map[model.LengthBucket]string)
		for _, b := range model.LengthBuckets {
			if id := table[string(b)]; id != "" {
				row[b] = id
			}
		}
		out[t] = row
	}
	return out
}

// BuildCatalog validates the configured models and returns a catalog.
func BuildCatalog(cfg Config) (*catalog.Catalog, error) {
	set := cfg.ModelSet()
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	models := make([]model.ModelDescriptor, 0, len(ids))
	for _, id := range ids {
		models = append(models, set[id].Descriptor(id))
	}

	def := cfg.Routing.DefaultModel
	if def == "" {
		def = DefaultModelID
	}
	return catalog.New(models, def)
}

// CatalogLoader returns a function that rebuilds the catalog from the
// config file at configPath, for use with catalog.Holder.Watch.
func CatalogLoader(configPath string) catalog.LoadFunc {
	return func(string) (*catalog.Catalog, error) {
		cfg, err := LoadFrom(configPath)
		if err != nil {
			return nil, err
		}
		return BuildCatalog(cfg)
	}
}
