// Package pipeline loads call logs and aggregates them into metrics.
package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/theirongolddev/promptroute/internal/model"
)

// isAttempt reports whether r is an upstream call rather than a fallback
// transition marker.
func isAttempt(r model.CallRecord) bool {
	return r.FallbackTo == ""
}

// Aggregate computes summary statistics from call records within the
// given time range.
func Aggregate(records []model.CallRecord, since, until time.Time) model.SummaryStats {
	filtered := FilterByTime(records, since, until)

	var stats model.SummaryStats
	activeDays := make(map[string]struct{})
	prompts := make(map[string]struct{})
	sessions := make(map[string]struct{})
	var latencySum float64

	for _, r := range filtered {
		if !isAttempt(r) {
			stats.Fallbacks++
			continue
		}
		stats.TotalCalls++
		if r.Success {
			stats.SuccessfulCalls++
		} else {
			stats.FailedCalls++
		}
		if r.Retry {
			stats.Retries++
		}

		stats.PromptTokens += r.Usage.PromptTokens
		stats.CompletionTokens += r.Usage.CompletionTokens
		stats.TotalTokens += r.Usage.TotalTokens
		stats.TotalCost += r.Cost
		latencySum += r.Usage.LatencySeconds

		if r.PromptID != "" {
			prompts[r.PromptID] = struct{}{}
		}
		if r.SessionID != "" {
			sessions[r.SessionID] = struct{}{}
		}
		if !r.Timestamp.IsZero() {
			activeDays[r.Timestamp.Local().Format("2006-01-02")] = struct{}{}
		}
	}

	stats.Prompts = len(prompts)
	stats.Sessions = len(sessions)
	stats.ActiveDays = len(activeDays)

	if stats.TotalCalls > 0 {
		stats.AvgLatency = latencySum / float64(stats.TotalCalls)
		stats.ErrorRate = float64(stats.FailedCalls) / float64(stats.TotalCalls)
	}

	// Per-active-day rates
	if stats.ActiveDays > 0 {
		days := float64(stats.ActiveDays)
		stats.CostPerDay = stats.TotalCost / days
		stats.TokensPerDay = int64(float64(stats.TotalTokens) / days)
		stats.CallsPerDay = float64(stats.TotalCalls) / days
	}

	return stats
}

// AggregateDays computes per-day statistics, most recent first. Every day
// in the range is present.
func AggregateDays(records []model.CallRecord, since, until time.Time) []model.DailyStats {
	filtered := FilterByTime(records, since, until)

	dayMap := make(map[string]*model.DailyStats)

	for _, r := range filtered {
		if r.Timestamp.IsZero() || !isAttempt(r) {
			continue
		}
		dayKey := r.Timestamp.Local().Format("2006-01-02")
		ds, ok := dayMap[dayKey]
		if !ok {
			t, _ := time.ParseInLocation("2006-01-02", dayKey, time.Local)
			ds = &model.DailyStats{Date: t}
			dayMap[dayKey] = ds
		}

		ds.Calls++
		if !r.Success {
			ds.Failed++
		}
		ds.TotalTokens += r.Usage.TotalTokens
		ds.Cost += r.Cost
	}

	// Fill in every day in the range so gaps show as zeros
	day := startOfDay(since)
	end := startOfDay(until)
	for !since.IsZero() && !until.IsZero() && !day.After(end) {
		dayKey := day.Format("2006-01-02")
		if _, ok := dayMap[dayKey]; !ok {
			dayMap[dayKey] = &model.DailyStats{Date: day}
		}
		day = day.AddDate(0, 0, 1)
	}

	days := make([]model.DailyStats, 0, len(dayMap))
	for _, ds := range dayMap {
		days = append(days, *ds)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})

	return days
}

func startOfDay(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// AggregateModels computes per-model statistics, highest cost first.
func AggregateModels(records []model.CallRecord, since, until time.Time) []model.ModelStats {
	filtered := FilterByTime(records, since, until)

	modelMap := make(map[string]*model.ModelStats)
	latency := make(map[string]float64)
	totalCalls := 0

	for _, r := range filtered {
		if !isAttempt(r) {
			continue
		}
		ms, ok := modelMap[r.ModelID]
		if !ok {
			ms = &model.ModelStats{Model: r.ModelID}
			modelMap[r.ModelID] = ms
		}
		ms.Calls++
		if !r.Success {
			ms.Failed++
		}
		ms.PromptTokens += r.Usage.PromptTokens
		ms.CompletionTokens += r.Usage.CompletionTokens
		ms.TotalTokens += r.Usage.TotalTokens
		ms.Cost += r.Cost
		latency[r.ModelID] += r.Usage.LatencySeconds
		totalCalls++
	}

	result := make([]model.ModelStats, 0, len(modelMap))
	for id, ms := range modelMap {
		if totalCalls > 0 {
			ms.SharePercent = float64(ms.Calls) / float64(totalCalls) * 100
		}
		if ms.Calls > 0 {
			ms.AvgLatency = latency[id] / float64(ms.Calls)
		}
		result = append(result, *ms)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Cost != result[j].Cost {
			return result[i].Cost > result[j].Cost
		}
		return result[i].Model < result[j].Model
	})

	return result
}

// AggregateTypes counts calls per prompt type.
func AggregateTypes(records []model.CallRecord, since, until time.Time) []model.BreakdownStats {
	return aggregateBy(records, since, until, func(r model.CallRecord) string {
		return string(r.Classification.Type)
	})
}

// AggregateStrategies counts calls per routing strategy.
func AggregateStrategies(records []model.CallRecord, since, until time.Time) []model.BreakdownStats {
	return aggregateBy(records, since, until, func(r model.CallRecord) string {
		return string(r.Strategy())
	})
}

// AggregateBuckets counts calls per length bucket.
func AggregateBuckets(records []model.CallRecord, since, until time.Time) []model.BreakdownStats {
	return aggregateBy(records, since, until, func(r model.CallRecord) string {
		return string(r.Classification.Bucket)
	})
}

func aggregateBy(records []model.CallRecord, since, until time.Time, key func(model.CallRecord) string) []model.BreakdownStats {
	filtered := FilterByTime(records, since, until)

	m := make(map[string]*model.BreakdownStats)
	total := 0
	for _, r := range filtered {
		if !isAttempt(r) {
			continue
		}
		k := key(r)
		if k == "" {
			k = "unknown"
		}
		bs, ok := m[k]
		if !ok {
			bs = &model.BreakdownStats{Key: k}
			m[k] = bs
		}
		bs.Calls++
		bs.Cost += r.Cost
		total++
	}

	out := make([]model.BreakdownStats, 0, len(m))
	for _, bs := range m {
		if total > 0 {
			bs.SharePercent = float64(bs.Calls) / float64(total) * 100
		}
		out = append(out, *bs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Calls != out[j].Calls {
			return out[i].Calls > out[j].Calls
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// FilterByTime returns records with timestamps in [since, until).
// A zero since or until leaves that side open.
func FilterByTime(records []model.CallRecord, since, until time.Time) []model.CallRecord {
	if since.IsZero() && until.IsZero() {
		return records
	}

	var out []model.CallRecord
	for _, r := range records {
		if !since.IsZero() && r.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && !r.Timestamp.Before(until) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// FilterByModel returns records whose model id contains the filter string.
func FilterByModel(records []model.CallRecord, modelFilter string) []model.CallRecord {
	if modelFilter == "" {
		return records
	}
	var out []model.CallRecord
	for _, r := range records {
		if containsIgnoreCase(r.ModelID, modelFilter) {
			out = append(out, r)
		}
	}
	return out
}

// FilterBySession returns records of one session.
func FilterBySession(records []model.CallRecord, sessionID string) []model.CallRecord {
	if sessionID == "" {
		return records
	}
	var out []model.CallRecord
	for _, r := range records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
