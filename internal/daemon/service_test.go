package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/promptroute/internal/catalog"
	"github.com/theirongolddev/promptroute/internal/classify"
	"github.com/theirongolddev/promptroute/internal/gateway"
	"github.com/theirongolddev/promptroute/internal/ledger"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/recorder"
	"github.com/theirongolddev/promptroute/internal/router"
	"github.com/theirongolddev/promptroute/internal/strategy"
	"github.com/theirongolddev/promptroute/internal/tokens"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

type stubGateway struct {
	err error
}

func (g stubGateway) Complete(_ context.Context, req gateway.Request) (gateway.Completion, error) {
	if err := gateway.Validate(req.Messages); err != nil {
		return gateway.Completion{}, err
	}
	if g.err != nil {
		return gateway.Completion{Latency: time.Millisecond}, g.err
	}
	return gateway.Completion{
		Text:    "hello from " + req.Model,
		Usage:   model.UsageStats{PromptTokens: 10, CompletionTokens: 30},
		Latency: 5 * time.Millisecond,
	}, nil
}

func newTestService(t *testing.T, gwErr error) (*Service, *ledger.Ledger) {
	t.Helper()
	logger := quietLogger()

	cat, err := catalog.New([]model.ModelDescriptor{
		{ID: "anthropic/claude-3-haiku", CostPer1KTokens: 0.00025, MaxTokens: 4096, ContextLength: 200000, Temperature: 0.7},
		{ID: "anthropic/claude-3-opus", CostPer1KTokens: 0.015, MaxTokens: 4096, ContextLength: 200000, Temperature: 0.7},
	}, "anthropic/claude-3-haiku")
	require.NoError(t, err)
	holder := catalog.NewHolder(cat)

	dir := t.TempDir()
	led, err := ledger.Open(dir, holder, "sess-test", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	engine := router.New(stubGateway{err: gwErr},
		classify.New(tokens.NewEstimator(), ""),
		strategy.New(cat, nil, logger),
		holder,
		router.Options{
			Strategy:  model.StrategyCost,
			SessionID: "sess-test",
			Recorder:  &recorder.MemoryRecorder{},
			Ledger:    led,
			Logger:    logger,
		},
	)

	s := New(Config{DataDir: dir, Interval: 10 * time.Second}, Deps{
		Engine:  engine,
		Ledger:  led,
		Catalog: holder,
		Logger:  logger,
	})
	return s, led
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestDiffSnapshots(t *testing.T) {
	prev := Snapshot{
		Calls:   120,
		Failed:  4,
		Prompts: 100,
		Tokens:  1_000_000,
		CostUSD: 10.5,
	}
	curr := Snapshot{
		Calls:   136,
		Failed:  5,
		Prompts: 112,
		Tokens:  1_250_000,
		CostUSD: 13.1,
	}

	delta := diffSnapshots(prev, curr)
	if delta.Calls != 16 {
		t.Fatalf("Calls delta = %d, want 16", delta.Calls)
	}
	if delta.Failed != 1 {
		t.Fatalf("Failed delta = %d, want 1", delta.Failed)
	}
	if delta.Prompts != 12 {
		t.Fatalf("Prompts delta = %d, want 12", delta.Prompts)
	}
	if delta.Tokens != 250_000 {
		t.Fatalf("Tokens delta = %d, want 250000", delta.Tokens)
	}
	if math.Abs(delta.CostUSD-2.6) > 1e-9 {
		t.Fatalf("Cost delta = %.2f, want 2.60", delta.CostUSD)
	}
	if delta.isZero() {
		t.Fatal("delta unexpectedly reported as zero")
	}
	if !diffSnapshots(curr, curr).isZero() {
		t.Fatal("identical snapshots produced a non-zero delta")
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{
		DataDir:      ".",
		Interval:     10 * time.Second,
		EventsBuffer: 2,
	}, Deps{Logger: quietLogger()})

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestPollOnceEmitsSnapshotThenDelta(t *testing.T) {
	dir := t.TempDir()
	logger := quietLogger()

	write := func(n int) {
		rec, err := recorder.NewFileRecorder(dir, recorder.Options{}, logger)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			rec.Record(model.CallRecord{
				Timestamp: time.Now().Add(-time.Minute),
				SessionID: "s1",
				PromptID:  "p" + string(rune('a'+i)),
				ModelID:   "anthropic/claude-3-haiku",
				Usage:     model.UsageStats{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
				Cost:      0.001,
				Success:   true,
			})
		}
		require.NoError(t, rec.Close())
	}

	s := New(Config{DataDir: dir, Interval: 10 * time.Second}, Deps{Logger: logger})

	write(2)
	s.pollOnce()
	s.pollOnce() // unchanged logs publish nothing
	write(1)
	s.pollOnce()

	s.mu.RLock()
	defer s.mu.RUnlock()
	require.Len(t, s.events, 2)
	assert.Equal(t, "snapshot", s.events[0].Type)
	assert.Equal(t, 2, s.events[0].Snapshot.Calls)
	assert.Equal(t, "usage_delta", s.events[1].Type)
	assert.Equal(t, 1, s.events[1].Delta.Calls)
	assert.Equal(t, int64(20), s.events[1].Delta.Tokens)
	assert.Equal(t, 3, s.snapshot.Calls)
	assert.Equal(t, int64(3), s.pollCount)
}

func TestHealthzAndStatus(t *testing.T) {
	s, _ := newTestService(t, nil)
	h := s.Handler()

	w := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "sess-test", st.SessionID)
	assert.Equal(t, "cost", st.Strategy)
	assert.Equal(t, "anthropic/claude-3-haiku", st.DefaultModel)
	assert.Equal(t, 2, st.Models)
}

func TestModelsEndpoint(t *testing.T) {
	s, _ := newTestService(t, nil)

	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		DefaultModel string                  `json:"default_model"`
		Models       []model.ModelDescriptor `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "anthropic/claude-3-haiku", body.DefaultModel)
	assert.Len(t, body.Models, 2)
}

func TestClassifyEndpoint(t *testing.T) {
	s, _ := newTestService(t, nil)

	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/classify", classifyRequest{
		Prompt:   "Write a function to calculate the fibonacci sequence in Python.",
		Strategy: "quality",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var p router.Preview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, model.TypeCode, p.Classification.Type)
	assert.Equal(t, model.StrategyQuality, p.Decision.ChosenStrategy)
	assert.Equal(t, "anthropic/claude-3-opus", p.Decision.ChosenModel)
}

func TestRouteEndpointLogsCost(t *testing.T) {
	s, led := newTestService(t, nil)
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/v1/route", routeRequest{Prompt: "What is the capital of France?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp routeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hello from anthropic/claude-3-haiku", resp.Text)
	assert.True(t, resp.Record.Success)

	agg, err := led.Summary(ledger.Scope{Kind: ledger.ScopeSession})
	require.NoError(t, err)
	assert.Equal(t, 1, agg.Calls)
	assert.Equal(t, int64(40), agg.TotalTokens)

	w = doJSON(t, h, http.MethodGet, "/v1/costs?scope=session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got model.LedgerAggregate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Calls)
	assert.InDelta(t, 40*0.00025/1000, got.TotalCost, 1e-12)
}

func TestRouteRequestsCoalesceIntoOnePoll(t *testing.T) {
	s, _ := newTestService(t, nil)
	h := s.Handler()

	for i := 0; i < 5; i++ {
		w := doJSON(t, h, http.MethodPost, "/v1/route", routeRequest{Prompt: "What is the capital of France?"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 1, len(s.pollReq), "pending polls")
	s.mu.RLock()
	polls := s.pollCount
	s.mu.RUnlock()
	assert.Zero(t, polls, "handlers must not poll outside the run loop")

	<-s.pollReq
	s.requestPoll()
	assert.Equal(t, 1, len(s.pollReq))
}

func TestRouteEndpointErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		body routeRequest
		want int
		kind string
	}{
		{"no user message", nil, routeRequest{}, http.StatusBadRequest, "validation"},
		{"auth", &gateway.APIError{Kind: gateway.ErrAuth, Status: 401, Message: "bad key"},
			routeRequest{Prompt: "hi"}, http.StatusUnauthorized, "auth"},
		{"upstream", &gateway.APIError{Kind: gateway.ErrUpstream, Status: 500, Message: "boom"},
			routeRequest{Prompt: "hi"}, http.StatusBadGateway, "upstream"},
		{"rate limited", &gateway.APIError{Kind: gateway.ErrRateLimited, Status: 429, Message: "slow down"},
			routeRequest{Prompt: "hi"}, http.StatusTooManyRequests, "rate_limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(t, tt.err)
			w := doJSON(t, s.Handler(), http.MethodPost, "/v1/route", tt.body)
			assert.Equal(t, tt.want, w.Code)

			var e errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.Equal(t, tt.kind, e.Kind)
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestCostsEndpointRejectsBadScope(t *testing.T) {
	s, _ := newTestService(t, nil)

	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/costs?scope=weekly", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s.Handler(), http.MethodGet, "/v1/costs?scope=day&key=19-10-2026", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
