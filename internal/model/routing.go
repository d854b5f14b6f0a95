// Package model defines the shared data types passed between the routing
// engine, the recorders, and the analytics pipeline.
package model

import "strings"

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles the upstream API accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LastUserContent returns the content of the last user message.
func LastUserContent(messages []Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}

// PromptType is the semantic category of a prompt.
type PromptType string

const (
	TypeCode     PromptType = "code"
	TypeSummary  PromptType = "summary"
	TypeQuestion PromptType = "question"
)

// PromptTypes lists the categories in tie-break priority order.
var PromptTypes = []PromptType{TypeCode, TypeSummary, TypeQuestion}

// LengthBucket is a coarse token-count category.
type LengthBucket string

const (
	BucketShort  LengthBucket = "short"
	BucketMedium LengthBucket = "medium"
	BucketLong   LengthBucket = "long"
)

// LengthBuckets lists the buckets from shortest to longest.
var LengthBuckets = []LengthBucket{BucketShort, BucketMedium, BucketLong}

// Strategy is the optimization objective used to pick a model.
type Strategy string

const (
	StrategyBalanced Strategy = "balanced"
	StrategyCost     Strategy = "cost"
	StrategySpeed    Strategy = "speed"
	StrategyQuality  Strategy = "quality"
	StrategyManual   Strategy = "manual"
	StrategyFallback Strategy = "fallback"
)

// SelectableStrategies are the strategies a user can configure.
var SelectableStrategies = []Strategy{StrategyBalanced, StrategyCost, StrategySpeed, StrategyQuality}

// ParseStrategy maps a user-supplied name onto a selectable strategy.
func ParseStrategy(s string) (Strategy, bool) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SelectableStrategies {
		if st == known {
			return st, true
		}
	}
	return StrategyBalanced, false
}

// ModelDescriptor holds the catalog metadata for one model.
type ModelDescriptor struct {
	ID              string   `json:"id"`
	Provider        string   `json:"provider"`
	CostPer1KTokens float64  `json:"cost_per_1k_tokens"`
	MaxTokens       int      `json:"max_tokens"`
	ContextLength   int      `json:"context_length"`
	Strengths       []string `json:"strengths,omitempty"`
	Temperature     float64  `json:"temperature"`
}

// HasStrength reports whether the model lists the given strength.
func (d ModelDescriptor) HasStrength(s string) bool {
	for _, have := range d.Strengths {
		if strings.EqualFold(have, s) {
			return true
		}
	}
	return false
}

// PromptClassification is the result of classifying one prompt.
type PromptClassification struct {
	Type            PromptType         `json:"prompt_type"`
	Bucket          LengthBucket       `json:"length_category"`
	TokenEstimate   int                `json:"token_estimate"`
	MatchedPatterns map[PromptType]int `json:"matched_patterns"`
	DetectionReason string             `json:"detection_reason"`
}

// RoutingDecision describes how the model for a call was chosen.
type RoutingDecision struct {
	Candidates     map[Strategy]string `json:"candidates,omitempty"`
	ChosenStrategy Strategy            `json:"strategy"`
	ChosenModel    string              `json:"chosen_model"`
	Explanation    string              `json:"explanation"`
	Substituted    bool                `json:"substituted,omitempty"`
}
