package model

import "time"

// SummaryStats holds the top-level aggregate across a set of call records.
type SummaryStats struct {
	TotalCalls      int
	SuccessfulCalls int
	FailedCalls     int
	Retries         int
	Fallbacks       int
	Prompts         int
	Sessions        int
	ActiveDays      int

	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64

	TotalCost  float64
	AvgLatency float64
	ErrorRate  float64

	CostPerDay   float64
	TokensPerDay int64
	CallsPerDay  float64
}

// DailyStats holds metrics for a single calendar day.
type DailyStats struct {
	Date        time.Time
	Calls       int
	Failed      int
	TotalTokens int64
	Cost        float64
}

// ModelStats holds aggregated metrics for a single model.
type ModelStats struct {
	Model            string
	Calls            int
	Failed           int
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Cost             float64
	AvgLatency       float64
	SharePercent     float64
}

// BreakdownStats counts calls under one value of a grouping dimension
// such as prompt type or strategy.
type BreakdownStats struct {
	Key          string
	Calls        int
	Cost         float64
	SharePercent float64
}

// LedgerModel is the per-model slice of a ledger aggregate.
type LedgerModel struct {
	Model  string  `json:"model"`
	Cost   float64 `json:"cost"`
	Tokens int64   `json:"tokens"`
	Calls  int     `json:"calls"`
}

// LedgerAggregate is a cost rollup for one session, day, or all time.
type LedgerAggregate struct {
	Scope       string        `json:"scope"`
	Key         string        `json:"key,omitempty"`
	TotalCost   float64       `json:"total_cost"`
	TotalTokens int64         `json:"total_tokens"`
	Calls       int           `json:"calls"`
	Models      []LedgerModel `json:"models"`
}
