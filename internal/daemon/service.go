// Package daemon provides the long-running routing service: an HTTP API
// over the routing engine plus a usage monitor fed by the call logs.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/theirongolddev/promptroute/internal/catalog"
	"github.com/theirongolddev/promptroute/internal/ledger"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/pipeline"
	"github.com/theirongolddev/promptroute/internal/router"
)

// Config controls the daemon runtime behavior.
type Config struct {
	DataDir      string
	Days         int
	ModelFilter  string
	Interval     time.Duration
	Addr         string
	EventsBuffer int
	// CatalogPath is watched and reloaded into Deps.Catalog when set.
	CatalogPath string
}

// Deps are the components the HTTP API serves.
type Deps struct {
	Engine      *router.Engine
	Ledger      *ledger.Ledger
	Catalog     *catalog.Holder
	LoadCatalog catalog.LoadFunc
	Logger      log.FieldLogger
}

// Snapshot is a compact usage state for status/event payloads.
type Snapshot struct {
	At            time.Time `json:"at"`
	Calls         int       `json:"calls"`
	Failed        int       `json:"failed"`
	Fallbacks     int       `json:"fallbacks"`
	Prompts       int       `json:"prompts"`
	Sessions      int       `json:"sessions"`
	Tokens        int64     `json:"tokens"`
	CostUSD       float64   `json:"cost_usd"`
	ErrorRate     float64   `json:"error_rate"`
	AvgLatencySec float64   `json:"avg_latency_sec"`
	CostPerDayUSD float64   `json:"cost_per_day_usd"`
	TokensPerDay  int64     `json:"tokens_per_day"`
}

// Delta captures snapshot deltas between polls.
type Delta struct {
	Calls   int     `json:"calls"`
	Failed  int     `json:"failed"`
	Prompts int     `json:"prompts"`
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

func (d Delta) isZero() bool {
	return d.Calls == 0 &&
		d.Failed == 0 &&
		d.Prompts == 0 &&
		d.Tokens == 0 &&
		d.CostUSD == 0
}

// Event is emitted whenever the usage snapshot changes or the catalog reloads.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	DataDir         string    `json:"data_dir"`
	Days            int       `json:"days"`
	ModelFilter     string    `json:"model_filter,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	Strategy        string    `json:"strategy,omitempty"`
	DefaultModel    string    `json:"default_model,omitempty"`
	Models          int       `json:"models"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg  Config
	deps Deps

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event

	// pollReq holds at most one pending out-of-cycle poll.
	pollReq chan struct{}
}

// New returns a new daemon service with the provided config.
func New(cfg Config, deps Deps) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 10 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if cfg.Days < 1 {
		cfg.Days = 30
	}
	if deps.Logger == nil {
		deps.Logger = log.StandardLogger()
	}

	return &Service{
		cfg:       cfg,
		deps:      deps,
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
		pollReq:   make(chan struct{}, 1),
	}
}

// requestPoll asks the run loop for an early poll. Requests made while one
// is pending coalesce into it.
func (s *Service) requestPoll() {
	select {
	case s.pollReq <- struct{}{}:
	default:
	}
}

// Run starts HTTP endpoints, the catalog watcher, and polling until ctx
// is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.cfg.CatalogPath != "" && s.deps.Catalog != nil && s.deps.LoadCatalog != nil {
		go func() {
			load := func(path string) (*catalog.Catalog, error) {
				c, err := s.deps.LoadCatalog(path)
				if err == nil {
					s.publishCatalogReload()
				}
				return c, err
			}
			if err := s.deps.Catalog.Watch(ctx, s.cfg.CatalogPath, load, s.deps.Logger); err != nil {
				s.deps.Logger.WithError(err).Warn("catalog watcher stopped")
			}
		}()
	}

	// Seed initial snapshot so status is useful immediately.
	s.pollOnce()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			s.pollOnce()
		case <-s.pollReq:
			s.pollOnce()
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) pollOnce() {
	res, err := pipeline.Load(s.cfg.DataDir, nil)
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = time.Now()
		s.pollCount++
		s.mu.Unlock()
		s.deps.Logger.WithError(err).Warn("daemon poll failed")
		return
	}

	now := time.Now()
	since := now.AddDate(0, 0, -s.cfg.Days)

	records := res.Records
	if s.cfg.ModelFilter != "" {
		records = pipeline.FilterByModel(records, s.cfg.ModelFilter)
	}

	snap := snapshotFromSummary(pipeline.Aggregate(records, since, now), now)

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""

	if !prevExists {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "snapshot", Timestamp: now, Snapshot: snap}
		publish = true
	} else if delta := diffSnapshots(prev, snap); !delta.isZero() {
		s.nextEventID++
		ev = Event{ID: s.nextEventID, Type: "usage_delta", Timestamp: now, Snapshot: snap, Delta: delta}
		publish = true
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
}

func (s *Service) publishCatalogReload() {
	s.mu.Lock()
	s.nextEventID++
	ev := Event{ID: s.nextEventID, Type: "catalog_reload", Timestamp: time.Now(), Snapshot: s.snapshot}
	s.mu.Unlock()
	s.publishEvent(ev)
}

func snapshotFromSummary(stats model.SummaryStats, at time.Time) Snapshot {
	return Snapshot{
		At:            at,
		Calls:         stats.TotalCalls,
		Failed:        stats.FailedCalls,
		Fallbacks:     stats.Fallbacks,
		Prompts:       stats.Prompts,
		Sessions:      stats.Sessions,
		Tokens:        stats.TotalTokens,
		CostUSD:       stats.TotalCost,
		ErrorRate:     stats.ErrorRate,
		AvgLatencySec: stats.AvgLatency,
		CostPerDayUSD: stats.CostPerDay,
		TokensPerDay:  stats.TokensPerDay,
	}
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Calls:   curr.Calls - prev.Calls,
		Failed:  curr.Failed - prev.Failed,
		Prompts: curr.Prompts - prev.Prompts,
		Tokens:  curr.Tokens - prev.Tokens,
		CostUSD: curr.CostUSD - prev.CostUSD,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	st := Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		DataDir:         s.cfg.DataDir,
		Days:            s.cfg.Days,
		ModelFilter:     s.cfg.ModelFilter,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
	s.mu.RUnlock()

	if e := s.deps.Engine; e != nil {
		st.SessionID = e.SessionID()
		st.Strategy = string(e.Strategy())
	}
	if h := s.deps.Catalog; h != nil {
		cat := h.Current()
		st.DefaultModel = cat.DefaultModel()
		st.Models = cat.Len()
	}
	return st
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// stream writes events to w until the client goes away.
func (s *Service) stream(c *gin.Context) {
	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Send current snapshot immediately.
	c.SSEvent("snapshot", Event{
		Type:      "snapshot",
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	})
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev := <-ch:
			c.SSEvent(ev.Type, ev)
			return true
		}
	})
}
