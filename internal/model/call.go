package model

import (
	"time"
	"unicode/utf8"
)

// QueryPreviewLen is the maximum length of CallRecord.Query, in characters.
const QueryPreviewLen = 100

// UsageStats holds token usage and latency for one upstream call.
type UsageStats struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	LatencySeconds   float64 `json:"latency_seconds"`
}

// Normalized fills TotalTokens from its parts when the upstream omitted it.
func (u UsageStats) Normalized() UsageStats {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// CallRecord is the audit row for one upstream attempt.
// Attempts that belong to the same Route call share PromptID and SessionID.
type CallRecord struct {
	Timestamp      time.Time            `json:"timestamp"`
	SessionID      string               `json:"session_id"`
	PromptID       string               `json:"prompt_id"`
	ModelID        string               `json:"model_id"`
	Classification PromptClassification `json:"classification"`
	Decision       RoutingDecision      `json:"routing_decision"`
	Usage          UsageStats           `json:"usage"`
	TokenCount     int64                `json:"token_count"`
	Cost           float64              `json:"cost"`
	Success        bool                 `json:"success"`
	ErrorKind      string               `json:"error_type,omitempty"`
	ErrorMessage   string               `json:"error_message,omitempty"`
	Retry          bool                 `json:"retry,omitempty"`
	MaxTokens      int                  `json:"max_tokens"`
	Temperature    float64              `json:"temperature"`
	FallbackTo     string               `json:"fallback_to,omitempty"`
	Query          string               `json:"query"`
	FullQuery      string               `json:"full_query"`
}

// Strategy returns the strategy the attempt ran under.
func (r CallRecord) Strategy() Strategy {
	return r.Decision.ChosenStrategy
}

// ManualSelection reports whether the user picked the model explicitly.
func (r CallRecord) ManualSelection() bool {
	return r.Decision.ChosenStrategy == StrategyManual
}

// Truncate shortens s to at most n characters, ending in "..." when cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}
