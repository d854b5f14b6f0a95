// Package classify categorizes prompts by type and length for routing.
package classify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/tokens"
)

// Length bucket upper bounds, in tokens (inclusive).
const (
	ShortMaxTokens  = 500
	MediumMaxTokens = 2000
)

// longTextChars is the size above which unmatched text is treated as a summary task.
const longTextChars = 1000

// Classifier assigns a prompt type and length bucket. It holds no per-call
// state and is safe for concurrent use.
type Classifier struct {
	estimator *tokens.Estimator
	family    string
}

// New returns a classifier that sizes prompts with est. family selects the
// tokenizer used for bucketing; empty means the default encoding.
func New(est *tokens.Estimator, family string) *Classifier {
	return &Classifier{estimator: est, family: family}
}

// Classify returns the type, length bucket, and match evidence for prompt.
func (c *Classifier) Classify(prompt string) model.PromptClassification {
	counts := map[model.PromptType]int{
		model.TypeCode:     countMatches(codePatterns, prompt),
		model.TypeSummary:  countMatches(summaryPatterns, prompt),
		model.TypeQuestion: countMatches(questionPatterns, prompt),
	}

	promptType, reason := pickType(prompt, counts)
	estimate := c.estimator.Estimate(prompt, c.family)

	return model.PromptClassification{
		Type:            promptType,
		Bucket:          BucketFor(estimate),
		TokenEstimate:   estimate,
		MatchedPatterns: counts,
		DetectionReason: reason,
	}
}

// pickType chooses the category with the most matches. Ties resolve in
// model.PromptTypes order: code, then summary, then question.
func pickType(prompt string, counts map[model.PromptType]int) (model.PromptType, string) {
	best := model.PromptType("")
	bestCount := 0
	for _, t := range model.PromptTypes {
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}

	if bestCount > 0 {
		return best, fmt.Sprintf("Detected %d %s-related patterns in the prompt.", bestCount, best)
	}

	switch {
	case codeLikeSyntax.MatchString(prompt) && len(strings.Split(prompt, "\n")) > 3:
		return model.TypeCode, "Code-like syntax detected with brackets, semicolons, or parentheses."
	case utf8.RuneCountInString(prompt) > longTextChars:
		return model.TypeSummary, "Long text input without clear patterns detected, treating as a summary task."
	default:
		return model.TypeQuestion, "Short text input with no clear patterns, treating as a general question."
	}
}

// BucketFor maps a token count onto its length bucket.
func BucketFor(tokenCount int) model.LengthBucket {
	switch {
	case tokenCount <= ShortMaxTokens:
		return model.BucketShort
	case tokenCount <= MediumMaxTokens:
		return model.BucketMedium
	default:
		return model.BucketLong
	}
}
