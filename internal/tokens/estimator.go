// Package tokens approximates token counts for prompt text.
package tokens

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// CharsPerToken is the character-to-token ratio used when no tokenizer is
// registered for a model family. Calibrated for English text.
const CharsPerToken = 4

// Tokenizer counts tokens exactly for one model family.
type Tokenizer interface {
	Count(text string) (int, error)
}

// TokenizerFunc adapts a function to the Tokenizer interface.
type TokenizerFunc func(text string) (int, error)

// Count calls f(text).
func (f TokenizerFunc) Count(text string) (int, error) { return f(text) }

// Estimator returns token counts, preferring a registered tokenizer and
// degrading to the character heuristic.
type Estimator struct {
	mu         sync.RWMutex
	tokenizers map[string]Tokenizer
}

// NewEstimator returns an estimator with no exact tokenizers registered.
func NewEstimator() *Estimator {
	return &Estimator{tokenizers: make(map[string]Tokenizer)}
}

// Register installs an exact tokenizer for a model family. An empty family
// registers the tokenizer used when the family is unknown.
func (e *Estimator) Register(family string, t Tokenizer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tokenizers[strings.ToLower(family)] = t
}

// Estimate returns the token count of text for the given model family.
// It never fails.
func (e *Estimator) Estimate(text, family string) int {
	if e != nil {
		if t := e.lookup(family); t != nil {
			if n, ok := safeCount(t, text); ok {
				return n
			}
		}
	}
	return Heuristic(text)
}

func (e *Estimator) lookup(family string) Tokenizer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.tokenizers[strings.ToLower(family)]; ok {
		return t
	}
	return e.tokenizers[""]
}

func safeCount(t Tokenizer, text string) (n int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			n, ok = 0, false
		}
	}()
	n, err := t.Count(text)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Heuristic approximates the token count as one token per four characters.
func Heuristic(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

// FamilyOf derives the model family from a catalog id.
// e.g., "openai/gpt-4o" -> "openai", "gpt-4o" -> ""
func FamilyOf(modelID string) string {
	if i := strings.IndexByte(modelID, '/'); i > 0 {
		return strings.ToLower(modelID[:i])
	}
	return ""
}
