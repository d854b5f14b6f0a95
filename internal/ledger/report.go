package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/store"
)

// Trends returns one entry per day for the last days days, oldest first,
// including days without spend.
func (l *Ledger) Trends(days int) ([]model.DailyStats, error) {
	if days < 1 {
		days = 1
	}
	today := l.now()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.Local).AddDate(0, 0, -(days - 1))

	rows, err := l.db.Days(start.Format(store.DayLayout))
	if err != nil {
		return nil, fmt.Errorf("ledger: trends: %w", err)
	}
	byDay := make(map[string]model.DailyStats, len(rows))
	for _, r := range rows {
		byDay[r.Date.Format(store.DayLayout)] = r
	}

	out := make([]model.DailyStats, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		key := d.Format(store.DayLayout)
		if r, ok := byDay[key]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, model.DailyStats{Date: d})
	}
	return out, nil
}

// ReportModel is the all-time rollup for one model.
type ReportModel struct {
	Model     string  `json:"model"`
	Calls     int     `json:"calls"`
	Tokens    int64   `json:"tokens"`
	Cost      float64 `json:"cost"`
	AvgTokens float64 `json:"avg_tokens"`
}

// Report is the exported cost summary.
type Report struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Session     model.LedgerAggregate `json:"session"`
	Today       model.LedgerAggregate `json:"today"`
	AllTime     model.LedgerAggregate `json:"all_time"`
	Models      []ReportModel         `json:"models"`
	Trends      []TrendPoint          `json:"trends"`
}

// TrendPoint is one day of Report.Trends.
type TrendPoint struct {
	Date   string  `json:"date"`
	Calls  int     `json:"calls"`
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// Report builds the session, today, and all-time rollups plus a
// per-model table and trendDays of history.
func (l *Ledger) Report(trendDays int) (Report, error) {
	rep := Report{GeneratedAt: l.now()}
	var err error
	if rep.Session, err = l.Summary(Scope{Kind: ScopeSession}); err != nil {
		return rep, err
	}
	if rep.Today, err = l.Summary(Scope{Kind: ScopeDay}); err != nil {
		return rep, err
	}
	if rep.AllTime, err = l.Summary(Scope{Kind: ScopeAllTime}); err != nil {
		return rep, err
	}

	for _, m := range rep.AllTime.Models {
		rm := ReportModel{Model: m.Model, Calls: m.Calls, Tokens: m.Tokens, Cost: m.Cost}
		if m.Calls > 0 {
			rm.AvgTokens = float64(m.Tokens) / float64(m.Calls)
		}
		rep.Models = append(rep.Models, rm)
	}

	days, err := l.Trends(trendDays)
	if err != nil {
		return rep, err
	}
	for _, d := range days {
		rep.Trends = append(rep.Trends, TrendPoint{
			Date:   d.Date.Format(store.DayLayout),
			Calls:  d.Calls,
			Tokens: d.TotalTokens,
			Cost:   d.Cost,
		})
	}
	return rep, nil
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ExportReport writes the report to path, gzip-compressed when path ends
// in .gz.
func (l *Ledger) ExportReport(path string, trendDays int) error {
	rep, err := l.Report(trendDays)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("ledger: creating report: %w", err)
	}
	defer func() { _ = f.Close() }()

	if !strings.HasSuffix(path, ".gz") {
		if err := rep.WriteJSON(f); err != nil {
			return fmt.Errorf("ledger: writing report: %w", err)
		}
		return f.Close()
	}

	zw := gzip.NewWriter(f)
	if err := rep.WriteJSON(zw); err != nil {
		return fmt.Errorf("ledger: writing report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("ledger: compressing report: %w", err)
	}
	return f.Close()
}

// Budget projects month-end spend against monthlyBudget from this month's
// ledger entries.
func (l *Ledger) Budget(monthlyBudget float64) (model.BudgetStats, error) {
	now := l.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)
	daysInMonth := monthStart.AddDate(0, 1, -1).Day()

	days, err := l.db.Days(monthStart.Format(store.DayLayout))
	if err != nil {
		return model.BudgetStats{}, fmt.Errorf("ledger: budget: %w", err)
	}
	var spend float64
	for _, d := range days {
		spend += d.Cost
	}
	return ProjectBudget(monthlyBudget, spend, now.Day(), daysInMonth), nil
}

// ProjectBudget extrapolates spend over elapsed days to the whole month.
func ProjectBudget(monthlyBudget, spend float64, elapsedDays, daysInMonth int) model.BudgetStats {
	if elapsedDays < 1 {
		elapsedDays = 1
	}
	b := model.BudgetStats{
		MonthlyBudget: monthlyBudget,
		CurrentSpend:  spend,
		DailyBurnRate: spend / float64(elapsedDays),
		DaysRemaining: daysInMonth - elapsedDays,
	}
	b.ProjectedMonthly = b.DailyBurnRate * float64(daysInMonth)
	if monthlyBudget > 0 {
		b.BudgetUsedPercent = spend / monthlyBudget * 100
	}
	return b
}
