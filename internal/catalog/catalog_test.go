package catalog

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/theirongolddev/promptroute/internal/model"
)

func testModels() []model.ModelDescriptor {
	return []model.ModelDescriptor{
		{ID: "anthropic/claude-3-haiku", Provider: "anthropic", CostPer1KTokens: 0.00025, MaxTokens: 1000, ContextLength: 200000, Temperature: 0.7},
		{ID: "anthropic/claude-3-opus", Provider: "anthropic", CostPer1KTokens: 0.015, MaxTokens: 4000, ContextLength: 200000, Temperature: 0.7},
		{ID: "openai/gpt-4o", Provider: "openai", CostPer1KTokens: 0.005, MaxTokens: 4000, ContextLength: 128000, Temperature: 0.7},
		{ID: "mistralai/mistral-7b-instruct", Provider: "mistralai", CostPer1KTokens: 0.00025, MaxTokens: 1000, ContextLength: 32000, Temperature: 0.5},
	}
}

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(testModels(), "anthropic/claude-3-haiku")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func ids(ms []model.ModelDescriptor) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSortedViews(t *testing.T) {
	c := mustCatalog(t)

	wantCheap := []string{"anthropic/claude-3-haiku", "mistralai/mistral-7b-instruct", "openai/gpt-4o", "anthropic/claude-3-opus"}
	if got := ids(c.CheapestFirst()); !equal(got, wantCheap) {
		t.Errorf("CheapestFirst = %v, want %v", got, wantCheap)
	}

	wantExpensive := []string{"anthropic/claude-3-opus", "openai/gpt-4o", "anthropic/claude-3-haiku", "mistralai/mistral-7b-instruct"}
	if got := ids(c.MostExpensiveFirst()); !equal(got, wantExpensive) {
		t.Errorf("MostExpensiveFirst = %v, want %v", got, wantExpensive)
	}

	wantContext := []string{"anthropic/claude-3-haiku", "anthropic/claude-3-opus", "openai/gpt-4o", "mistralai/mistral-7b-instruct"}
	if got := ids(c.HighestContextFirst()); !equal(got, wantContext) {
		t.Errorf("HighestContextFirst = %v, want %v", got, wantContext)
	}
}

func TestSortedViewsAreCopies(t *testing.T) {
	c := mustCatalog(t)
	view := c.CheapestFirst()
	view[0].ID = "mutated"
	if c.CheapestFirst()[0].ID == "mutated" {
		t.Fatal("CheapestFirst exposed internal slice")
	}
}

func TestGet_Unknown(t *testing.T) {
	c := mustCatalog(t)
	_, err := c.Get("invalid/model-name")
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("Get unknown err = %v, want ErrConfig", err)
	}
	var ce *ConfigError
	if !errors.As(err, &ce) || ce.ModelID != "invalid/model-name" {
		t.Fatalf("errors.As ConfigError = %+v", ce)
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]model.ModelDescriptor) []model.ModelDescriptor
		def    string
	}{
		{"negative cost", func(ms []model.ModelDescriptor) []model.ModelDescriptor { ms[0].CostPer1KTokens = -1; return ms }, "anthropic/claude-3-haiku"},
		{"zero max tokens", func(ms []model.ModelDescriptor) []model.ModelDescriptor { ms[1].MaxTokens = 0; return ms }, "anthropic/claude-3-haiku"},
		{"zero context", func(ms []model.ModelDescriptor) []model.ModelDescriptor { ms[2].ContextLength = 0; return ms }, "anthropic/claude-3-haiku"},
		{"temperature", func(ms []model.ModelDescriptor) []model.ModelDescriptor { ms[3].Temperature = 1.5; return ms }, "anthropic/claude-3-haiku"},
		{"duplicate", func(ms []model.ModelDescriptor) []model.ModelDescriptor { return append(ms, ms[0]) }, "anthropic/claude-3-haiku"},
		{"unknown default", func(ms []model.ModelDescriptor) []model.ModelDescriptor { return ms }, "nobody/none"},
		{"empty", func([]model.ModelDescriptor) []model.ModelDescriptor { return nil }, "anthropic/claude-3-haiku"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.mutate(testModels()), tt.def)
			if !errors.Is(err, ErrConfig) {
				t.Errorf("New err = %v, want ErrConfig", err)
			}
		})
	}
}

func TestCost(t *testing.T) {
	c := mustCatalog(t)
	cost, err := c.Cost("openai/gpt-4o", 2500)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(cost-0.0125) > 1e-12 {
		t.Errorf("Cost = %v, want 0.0125", cost)
	}
	if _, err := c.Cost("missing", 10); !errors.Is(err, ErrConfig) {
		t.Errorf("Cost unknown err = %v", err)
	}
}

func TestHolder(t *testing.T) {
	first := mustCatalog(t)
	h := NewHolder(first)
	if h.Current() != first {
		t.Fatal("Current did not return initial snapshot")
	}

	second, err := New(testModels()[:2], "anthropic/claude-3-haiku")
	if err != nil {
		t.Fatal(err)
	}
	h.Store(second)
	if h.Current().Len() != 2 {
		t.Errorf("Current().Len() = %d, want 2", h.Current().Len())
	}
}

func TestHolderWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.txt")
	if err := os.WriteFile(path, []byte("4"), 0o600); err != nil {
		t.Fatal(err)
	}

	// The file holds how many test models the catalog keeps; "bad" fails.
	load := func(p string) (*Catalog, error) {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, err
		}
		return New(testModels()[:n], "anthropic/claude-3-haiku")
	}

	h := NewHolder(mustCatalog(t))
	logger := log.New()
	logger.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx, path, load, logger) }()

	// Rewrite until the watcher has registered and picked the change up.
	deadline := time.Now().Add(5 * time.Second)
	for h.Current().Len() != 2 && time.Now().Before(deadline) {
		if err := os.WriteFile(path, []byte("2"), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	if got := h.Current().Len(); got != 2 {
		t.Fatalf("after reload Len() = %d, want 2", got)
	}

	// A broken file keeps the previous snapshot.
	if err := os.WriteFile(path, []byte("bad"), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := h.Current().Len(); got != 2 {
		t.Fatalf("after failed reload Len() = %d, want 2", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}
