// Package router ties classification, model selection, the completion
// gateway, and the call logs together.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/theirongolddev/promptroute/internal/catalog"
	"github.com/theirongolddev/promptroute/internal/classify"
	"github.com/theirongolddev/promptroute/internal/gateway"
	"github.com/theirongolddev/promptroute/internal/ledger"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/recorder"
	"github.com/theirongolddev/promptroute/internal/strategy"
)

const (
	// MaxUpstreamCalls bounds the attempts made by one Route call.
	MaxUpstreamCalls = 3
	// DefaultMaxTokensCeiling caps max_tokens on every request.
	DefaultMaxTokensCeiling = 4000
	// MinRetryMaxTokens is the floor for the context-length retry.
	MinRetryMaxTokens = 500
)

// Options configures an Engine. Zero values take defaults.
type Options struct {
	Strategy         model.Strategy
	SessionID        string
	MaxTokensCeiling int
	Timeout          time.Duration
	Recorder         recorder.Recorder
	Ledger           ledger.Logger
	Logger           log.FieldLogger
}

// Engine routes prompts. It is safe for concurrent use.
type Engine struct {
	gateway    gateway.Completer
	classifier *classify.Classifier
	resolver   *strategy.Resolver
	catalog    *catalog.Holder

	recorder  recorder.Recorder
	ledger    ledger.Logger
	logger    log.FieldLogger
	strategy  model.Strategy
	sessionID string
	ceiling   int
	timeout   time.Duration

	now   func() time.Time
	newID func() string
}

type nopLedger struct{}

func (nopLedger) Log(model.CallRecord) float64 { return 0 }

// New creates an engine.
func New(gw gateway.Completer, cls *classify.Classifier, res *strategy.Resolver, holder *catalog.Holder, opts Options) *Engine {
	e := &Engine{
		gateway:    gw,
		classifier: cls,
		resolver:   res,
		catalog:    holder,
		recorder:   opts.Recorder,
		ledger:     opts.Ledger,
		logger:     opts.Logger,
		strategy:   opts.Strategy,
		sessionID:  opts.SessionID,
		ceiling:    opts.MaxTokensCeiling,
		timeout:    opts.Timeout,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
	if e.recorder == nil {
		e.recorder = recorder.Nop{}
	}
	if e.ledger == nil {
		e.ledger = nopLedger{}
	}
	if e.logger == nil {
		e.logger = log.StandardLogger()
	}
	if e.strategy == "" {
		e.strategy = model.StrategyBalanced
	}
	if e.sessionID == "" {
		e.sessionID = uuid.NewString()
	}
	if e.ceiling <= 0 {
		e.ceiling = DefaultMaxTokensCeiling
	}
	return e
}

// SessionID returns the session every record of this engine is filed under.
func (e *Engine) SessionID() string { return e.sessionID }

// Strategy returns the engine's default routing strategy.
func (e *Engine) Strategy() model.Strategy { return e.strategy }

// Result is a successful routed completion.
type Result struct {
	Text   string
	Record model.CallRecord
}

// Preview is a routing decision made without calling upstream.
type Preview struct {
	Classification model.PromptClassification `json:"classification"`
	Decision       model.RoutingDecision      `json:"decision"`
}

// CallOption adjusts one Route or Explain call.
type CallOption func(*callConfig)

type callConfig struct {
	strategy model.Strategy
}

// WithStrategy overrides the engine's strategy for one call.
func WithStrategy(s model.Strategy) CallOption {
	return func(c *callConfig) {
		if s != "" {
			c.strategy = s
		}
	}
}

func (e *Engine) callConfig(opts []CallOption) callConfig {
	cc := callConfig{strategy: e.strategy}
	for _, o := range opts {
		o(&cc)
	}
	return cc
}

// Explain classifies prompt and reports which model Route would pick.
func (e *Engine) Explain(prompt, override string, opts ...CallOption) Preview {
	cc := e.callConfig(opts)
	cls := e.classifier.Classify(prompt)
	return Preview{
		Classification: cls,
		Decision:       e.decide(cls, override, cc.strategy, e.catalog.Current()),
	}
}

func (e *Engine) decide(cls model.PromptClassification, override string, s model.Strategy, live *catalog.Catalog) model.RoutingDecision {
	if override == "" {
		return e.resolver.Decide(cls, s, live)
	}
	if live.Has(override) {
		return model.RoutingDecision{
			ChosenStrategy: model.StrategyManual,
			ChosenModel:    override,
			Explanation:    fmt.Sprintf("Selected model: %s\n• Manually selected by user", override),
		}
	}
	def := live.DefaultModel()
	e.logger.WithFields(log.Fields{"model": override, "default": def}).
		Warn("requested model not in catalog, using default")
	return model.RoutingDecision{
		ChosenStrategy: model.StrategyManual,
		ChosenModel:    def,
		Explanation:    strategy.SubstitutionExplanation(def),
		Substituted:    true,
	}
}

// attempt is one planned upstream call.
type attempt struct {
	model     model.ModelDescriptor
	maxTokens int
	retry     bool
	decision  model.RoutingDecision
}

// Route classifies the last user message, picks a model, and calls it. On a
// context-length error it retries once with half the max_tokens; on other
// failures it falls back to the catalog default. Every attempt is recorded.
// override, when non-empty, names the model to use instead of the strategy.
func (e *Engine) Route(ctx context.Context, messages []model.Message, override string, opts ...CallOption) (Result, error) {
	prompt, ok := model.LastUserContent(messages)
	if !ok {
		return Result{}, &gateway.APIError{Kind: gateway.ErrValidation, Message: "no user message"}
	}

	cc := e.callConfig(opts)
	cls := e.classifier.Classify(prompt)
	live := e.catalog.Current()
	decision := e.decide(cls, override, cc.strategy, live)

	base := model.CallRecord{
		SessionID:      e.sessionID,
		PromptID:       e.newID(),
		Classification: cls,
		Query:          model.Truncate(prompt, model.QueryPreviewLen),
		FullQuery:      prompt,
	}

	def := live.DefaultModel()
	cur, err := e.plan(live, decision.ChosenModel, decision)
	if err != nil {
		return Result{}, err
	}

	visited := make(map[string]bool, MaxUpstreamCalls)
	contextRetried := false
	var lastErr error

	for calls := 0; calls < MaxUpstreamCalls; calls++ {
		visited[cur.model.ID] = true

		comp, err := e.gateway.Complete(ctx, gateway.Request{
			Messages:    messages,
			Model:       cur.model.ID,
			Temperature: cur.model.Temperature,
			MaxTokens:   cur.maxTokens,
			Timeout:     e.timeout,
		})
		rec := e.record(base, cur, cls, comp)

		if err == nil {
			usage := comp.Usage.Normalized()
			usage.LatencySeconds = comp.Latency.Seconds()
			rec.Usage = usage
			rec.TokenCount = usage.TotalTokens
			rec.Cost = catalog.CostFor(cur.model, usage.TotalTokens)
			rec.Success = true
			e.recorder.Record(rec)
			e.ledger.Log(rec)

			e.logger.WithFields(log.Fields{
				"model":    cur.model.ID,
				"type":     cls.Type,
				"bucket":   cls.Bucket,
				"strategy": cur.decision.ChosenStrategy,
				"tokens":   usage.TotalTokens,
				"cost":     rec.Cost,
				"retry":    cur.retry,
			}).Info("routed prompt")
			return Result{Text: comp.Text, Record: rec}, nil
		}

		lastErr = err
		rec.ErrorKind = gateway.KindOf(err)
		rec.ErrorMessage = err.Error()
		e.recorder.Record(rec)
		e.logger.WithError(err).WithFields(log.Fields{
			"model": cur.model.ID,
			"kind":  rec.ErrorKind,
		}).Warn("completion failed")

		if errors.Is(err, gateway.ErrValidation) || errors.Is(err, gateway.ErrAuth) || ctx.Err() != nil {
			break
		}

		if errors.Is(err, gateway.ErrContextLength) && !contextRetried {
			contextRetried = true
			cur.maxTokens = max(cur.maxTokens/2, MinRetryMaxTokens)
			cur.retry = true
			continue
		}

		if visited[def] {
			break
		}

		transition := rec
		transition.Decision.ChosenStrategy = model.StrategyFallback
		transition.FallbackTo = def
		transition.Timestamp = e.now()
		e.recorder.Record(transition)
		e.logger.WithFields(log.Fields{"from": cur.model.ID, "to": def}).Info("falling back to default model")

		fb := decision
		fb.ChosenStrategy = model.StrategyFallback
		fb.ChosenModel = def
		fb.Substituted = false
		fb.Explanation = fmt.Sprintf("Selected model %s (default) after %s failed: %s", def, cur.model.ID, rec.ErrorKind)
		if cur, err = e.plan(live, def, fb); err != nil {
			return Result{}, err
		}
	}

	return Result{}, fmt.Errorf("router: routing prompt: %w", lastErr)
}

func (e *Engine) plan(live *catalog.Catalog, id string, d model.RoutingDecision) (attempt, error) {
	desc, err := live.Get(id)
	if err != nil {
		return attempt{}, fmt.Errorf("router: %w", err)
	}
	return attempt{
		model:     desc,
		maxTokens: min(desc.MaxTokens, e.ceiling),
		decision:  d,
	}, nil
}

// record builds the audit row for one attempt. Usage starts as the prompt
// estimate so failed attempts still carry a size.
func (e *Engine) record(base model.CallRecord, a attempt, cls model.PromptClassification, comp gateway.Completion) model.CallRecord {
	rec := base
	rec.Timestamp = e.now()
	rec.ModelID = a.model.ID
	rec.Decision = a.decision
	rec.Retry = a.retry
	rec.MaxTokens = a.maxTokens
	rec.Temperature = a.model.Temperature
	est := int64(cls.TokenEstimate)
	rec.Usage = model.UsageStats{
		PromptTokens:   est,
		TotalTokens:    est,
		LatencySeconds: comp.Latency.Seconds(),
	}
	rec.TokenCount = est
	return rec
}
