// Package strategy maps a prompt classification and routing strategy to a
// model id.
package strategy

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/theirongolddev/promptroute/internal/catalog"
	"github.com/theirongolddev/promptroute/internal/model"
)

// Table maps prompt type and length bucket to a model id.
type Table map[model.PromptType]map[model.LengthBucket]string

// DefaultBalanced is the balanced table used where config leaves gaps.
var DefaultBalanced = Table{
	model.TypeCode: {
		model.BucketShort:  "openai/gpt-4o",
		model.BucketMedium: "openai/gpt-4o",
		model.BucketLong:   "anthropic/claude-3-opus",
	},
	model.TypeSummary: {
		model.BucketShort:  "anthropic/claude-3-haiku",
		model.BucketMedium: "anthropic/claude-3-sonnet",
		model.BucketLong:   "anthropic/claude-3-sonnet",
	},
	model.TypeQuestion: {
		model.BucketShort:  "anthropic/claude-3-haiku",
		model.BucketMedium: "anthropic/claude-3-haiku",
		model.BucketLong:   "anthropic/claude-3-sonnet",
	},
}

// Resolver holds per-strategy tables computed once from a catalog snapshot.
// It is immutable and safe for concurrent use.
type Resolver struct {
	tables       map[model.Strategy]Table
	defaultModel string
	logger       log.FieldLogger
}

// New precomputes the strategy tables. balanced entries override
// DefaultBalanced cell by cell.
func New(cat *catalog.Catalog, balanced Table, logger log.FieldLogger) *Resolver {
	if logger == nil {
		logger = log.StandardLogger()
	}
	r := &Resolver{
		tables:       make(map[model.Strategy]Table, len(model.SelectableStrategies)),
		defaultModel: cat.DefaultModel(),
		logger:       logger,
	}

	cheapest := cat.CheapestFirst()
	priciest := cat.MostExpensiveFirst()

	quality := make(map[model.LengthBucket]string, len(model.LengthBuckets))
	for _, b := range model.LengthBuckets {
		quality[b] = priciest[0].ID
	}
	if len(priciest) > 1 {
		quality[model.BucketLong] = priciest[1].ID
	}

	cost := uniform(cheapest[0].ID)
	r.tables[model.StrategyCost] = perType(cost)
	// Cost doubles as the speed proxy until latency is measured per model.
	r.tables[model.StrategySpeed] = perType(cost)
	r.tables[model.StrategyQuality] = perType(quality)

	bal := make(Table, len(model.PromptTypes))
	for _, t := range model.PromptTypes {
		row := make(map[model.LengthBucket]string, len(model.LengthBuckets))
		for _, b := range model.LengthBuckets {
			id := DefaultBalanced[t][b]
			if over := balanced[t][b]; over != "" {
				id = over
			}
			if !cat.Has(id) {
				logger.WithFields(log.Fields{"type": t, "bucket": b, "model": id}).
					Warn("balanced preference not in catalog, default will be used")
			}
			row[b] = id
		}
		bal[t] = row
	}
	r.tables[model.StrategyBalanced] = bal

	return r
}

func uniform(id string) map[model.LengthBucket]string {
	row := make(map[model.LengthBucket]string, len(model.LengthBuckets))
	for _, b := range model.LengthBuckets {
		row[b] = id
	}
	return row
}

func perType(row map[model.LengthBucket]string) Table {
	t := make(Table, len(model.PromptTypes))
	for _, pt := range model.PromptTypes {
		t[pt] = row
	}
	return t
}

// Resolve returns the table entry for the strategy. Strategies without a
// table resolve as balanced.
func (r *Resolver) Resolve(t model.PromptType, b model.LengthBucket, s model.Strategy) string {
	table, ok := r.tables[s]
	if !ok {
		r.logger.WithField("strategy", s).Warn("unknown routing strategy, using balanced")
		table = r.tables[model.StrategyBalanced]
	}
	if id := table[t][b]; id != "" {
		return id
	}
	return r.defaultModel
}

// Decide resolves every selectable strategy for the classification, picks
// the one for s, and checks it against the live catalog. An id missing from
// live is replaced by live's default model.
func (r *Resolver) Decide(cls model.PromptClassification, s model.Strategy, live *catalog.Catalog) model.RoutingDecision {
	if _, ok := r.tables[s]; !ok {
		r.logger.WithField("strategy", s).Warn("unknown routing strategy, using balanced")
		s = model.StrategyBalanced
	}

	d := model.RoutingDecision{
		Candidates:     make(map[model.Strategy]string, len(model.SelectableStrategies)),
		ChosenStrategy: s,
	}
	for _, st := range model.SelectableStrategies {
		d.Candidates[st] = r.tables[st][cls.Type][cls.Bucket]
	}

	chosen := d.Candidates[s]
	if live == nil || live.Has(chosen) {
		d.ChosenModel = chosen
		d.Explanation = Explain(cls, s, chosen, reason(s, chosen, cls.Type, live))
		return d
	}

	def := live.DefaultModel()
	r.logger.WithFields(log.Fields{"model": chosen, "default": def}).
		Warn("selected model not in catalog, using default")
	d.ChosenModel = def
	d.Substituted = true
	d.Explanation = SubstitutionExplanation(def)
	return d
}

// Explain formats the explanation shown for a routing decision.
func Explain(cls model.PromptClassification, s model.Strategy, modelID, why string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Selected model: %s\n", modelID)
	fmt.Fprintf(&b, "• Prompt type: %s (%s)\n", cls.Type, cls.DetectionReason)
	fmt.Fprintf(&b, "• Length: %s (%d tokens)\n", cls.Bucket, cls.TokenEstimate)
	fmt.Fprintf(&b, "• Strategy: %s\n", s)
	fmt.Fprintf(&b, "• Reason: %s", why)
	return b.String()
}

// SubstitutionExplanation is the explanation when the default model stands in.
func SubstitutionExplanation(def string) string {
	return fmt.Sprintf("Selected model %s (default) because the initial selection was not found in configuration.", def)
}

func reason(s model.Strategy, id string, t model.PromptType, live *catalog.Catalog) string {
	switch s {
	case model.StrategyCost:
		var cost float64
		if live != nil {
			if m, err := live.Get(id); err == nil {
				cost = m.CostPer1KTokens
			}
		}
		return fmt.Sprintf("%s is most cost-effective at $%.6f per 1K tokens.", id, cost)
	case model.StrategySpeed:
		return fmt.Sprintf("%s is optimized for faster responses.", id)
	case model.StrategyQuality:
		return fmt.Sprintf("%s offers highest quality for %s tasks.", id, t)
	case model.StrategyBalanced:
		return fmt.Sprintf("%s provides a good balance of cost, speed, and quality for %s tasks.", id, t)
	default:
		return "No specific reason available."
	}
}
