package tokens

import (
	"errors"
	"strings"
	"testing"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"under one token", "abc", 0},
		{"exact", "abcdefgh", 2},
		{"rounds down", "abcdefghij", 2},
		{"counts runes", strings.Repeat("é", 8), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Heuristic(tt.text); got != tt.want {
				t.Errorf("Heuristic(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimate_UsesRegisteredTokenizer(t *testing.T) {
	e := NewEstimator()
	e.Register("openai", TokenizerFunc(func(text string) (int, error) {
		return len(strings.Fields(text)), nil
	}))

	if got := e.Estimate("one two three", "openai"); got != 3 {
		t.Errorf("Estimate with tokenizer = %d, want 3", got)
	}
	if got := e.Estimate("one two three", "anthropic"); got != Heuristic("one two three") {
		t.Errorf("Estimate without tokenizer = %d, want heuristic %d", got, Heuristic("one two three"))
	}
}

func TestEstimate_DegradesOnFailure(t *testing.T) {
	e := NewEstimator()
	e.Register("broken", TokenizerFunc(func(string) (int, error) {
		return 0, errors.New("no encoding")
	}))
	e.Register("panics", TokenizerFunc(func(string) (int, error) {
		panic("tokenizer crashed")
	}))

	text := strings.Repeat("x", 40)
	for _, family := range []string{"broken", "panics"} {
		if got := e.Estimate(text, family); got != 10 {
			t.Errorf("Estimate(%s) = %d, want 10", family, got)
		}
	}
}

func TestEstimate_NilEstimator(t *testing.T) {
	var e *Estimator
	if got := e.Estimate("abcdefgh", ""); got != 2 {
		t.Errorf("nil Estimate = %d, want 2", got)
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	e := NewEstimator()
	text := "Summarize the following paragraph in two sentences."
	first := e.Estimate(text, "anthropic")
	for i := 0; i < 5; i++ {
		if got := e.Estimate(text, "anthropic"); got != first {
			t.Fatalf("Estimate changed between calls: %d != %d", got, first)
		}
	}
}

func TestFamilyOf(t *testing.T) {
	tests := map[string]string{
		"openai/gpt-4o":            "openai",
		"Anthropic/claude-3-haiku": "anthropic",
		"gpt-4o":                   "",
		"/weird":                   "",
	}
	for in, want := range tests {
		if got := FamilyOf(in); got != want {
			t.Errorf("FamilyOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBPEUnknownEncodingDegrades(t *testing.T) {
	e := NewEstimator()
	e.Register("", BPE("no_such_encoding"))
	text := strings.Repeat("word ", 40)
	if got, want := e.Estimate(text, "openai"), Heuristic(text); got != want {
		t.Errorf("Estimate = %d, want heuristic %d", got, want)
	}
}

func TestDefaultEstimatorCL100K(t *testing.T) {
	tok := BPE(CL100K)
	n, err := tok.Count("hello world")
	if err != nil {
		t.Skipf("cl100k_base unavailable: %v", err)
	}
	if n != 2 {
		t.Errorf("Count(hello world) = %d, want 2", n)
	}

	e := NewDefaultEstimator()
	text := strings.Repeat("tokenization ", 50)
	if got := e.Estimate(text, "anthropic"); got == Heuristic(text) || got <= 0 {
		t.Errorf("default estimator did not use cl100k_base: %d", got)
	}
}
