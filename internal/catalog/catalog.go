// Package catalog holds the read-only model metadata used for routing.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/theirongolddev/promptroute/internal/model"
)

// ErrConfig is the sentinel for catalog configuration problems, including
// lookups of model ids the catalog does not contain.
var ErrConfig = errors.New("catalog: configuration error")

// ConfigError describes an unknown or invalid model entry.
type ConfigError struct {
	ModelID string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.ModelID == "" {
		return "catalog: " + e.Reason
	}
	return fmt.Sprintf("catalog: model %q: %s", e.ModelID, e.Reason)
}

// Unwrap lets errors.Is match ErrConfig.
func (e *ConfigError) Unwrap() error { return ErrConfig }

// Catalog is an immutable snapshot of model descriptors.
type Catalog struct {
	byID         map[string]model.ModelDescriptor
	cheapest     []model.ModelDescriptor
	byContext    []model.ModelDescriptor
	defaultModel string
}

// New validates descriptors and builds the sorted views.
// defaultModel must name one of the descriptors.
func New(models []model.ModelDescriptor, defaultModel string) (*Catalog, error) {
	c := &Catalog{
		byID:         make(map[string]model.ModelDescriptor, len(models)),
		defaultModel: defaultModel,
	}

	for _, m := range models {
		if err := validate(m); err != nil {
			return nil, err
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, &ConfigError{ModelID: m.ID, Reason: "defined more than once"}
		}
		c.byID[m.ID] = m
	}

	if len(c.byID) == 0 {
		return nil, &ConfigError{Reason: "no models configured"}
	}
	if _, ok := c.byID[defaultModel]; !ok {
		return nil, &ConfigError{ModelID: defaultModel, Reason: "default model is not in the catalog"}
	}

	c.cheapest = c.sorted(func(a, b model.ModelDescriptor) bool {
		if a.CostPer1KTokens != b.CostPer1KTokens {
			return a.CostPer1KTokens < b.CostPer1KTokens
		}
		return a.ID < b.ID
	})
	c.byContext = c.sorted(func(a, b model.ModelDescriptor) bool {
		if a.ContextLength != b.ContextLength {
			return a.ContextLength > b.ContextLength
		}
		return a.ID < b.ID
	})

	return c, nil
}

func validate(m model.ModelDescriptor) error {
	switch {
	case m.ID == "":
		return &ConfigError{Reason: "model with empty id"}
	case m.CostPer1KTokens < 0:
		return &ConfigError{ModelID: m.ID, Reason: "cost_per_1k_tokens must be >= 0"}
	case m.MaxTokens <= 0:
		return &ConfigError{ModelID: m.ID, Reason: "max_tokens must be > 0"}
	case m.ContextLength <= 0:
		return &ConfigError{ModelID: m.ID, Reason: "context_length must be > 0"}
	case m.Temperature < 0 || m.Temperature > 1:
		return &ConfigError{ModelID: m.ID, Reason: "temperature must be within [0, 1]"}
	}
	return nil
}

func (c *Catalog) sorted(less func(a, b model.ModelDescriptor) bool) []model.ModelDescriptor {
	out := make([]model.ModelDescriptor, 0, len(c.byID))
	for _, m := range c.byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Get returns the descriptor for id, or a *ConfigError if it is unknown.
func (c *Catalog) Get(id string) (model.ModelDescriptor, error) {
	m, ok := c.byID[id]
	if !ok {
		return model.ModelDescriptor{}, &ConfigError{ModelID: id, Reason: "not found"}
	}
	return m, nil
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// DefaultModel returns the configured fallback model id.
func (c *Catalog) DefaultModel() string {
	return c.defaultModel
}

// Len returns the number of models.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// All returns every descriptor ordered by id.
func (c *Catalog) All() []model.ModelDescriptor {
	return c.sorted(func(a, b model.ModelDescriptor) bool { return a.ID < b.ID })
}

// CheapestFirst returns descriptors by ascending cost, ties by id.
func (c *Catalog) CheapestFirst() []model.ModelDescriptor {
	return append([]model.ModelDescriptor(nil), c.cheapest...)
}

// MostExpensiveFirst returns descriptors by descending cost, ties by id.
func (c *Catalog) MostExpensiveFirst() []model.ModelDescriptor {
	out := c.sorted(func(a, b model.ModelDescriptor) bool {
		if a.CostPer1KTokens != b.CostPer1KTokens {
			return a.CostPer1KTokens > b.CostPer1KTokens
		}
		return a.ID < b.ID
	})
	return out
}

// HighestContextFirst returns descriptors by descending context length, ties by id.
func (c *Catalog) HighestContextFirst() []model.ModelDescriptor {
	return append([]model.ModelDescriptor(nil), c.byContext...)
}

// Cost returns cost for totalTokens on model id: total * per-1K price / 1000.
func (c *Catalog) Cost(id string, totalTokens int64) (float64, error) {
	m, err := c.Get(id)
	if err != nil {
		return 0, err
	}
	return CostFor(m, totalTokens), nil
}

// CostFor computes the USD cost of totalTokens at the descriptor's rate.
func CostFor(m model.ModelDescriptor, totalTokens int64) float64 {
	return float64(totalTokens) * m.CostPer1KTokens / 1000
}
