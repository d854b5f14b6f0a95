// Package store provides the SQLite view behind the cost ledger.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/theirongolddev/promptroute/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// DayLayout is the format of the day column.
const DayLayout = "2006-01-02"

// Store is the ledger database.
type Store struct {
	db *sql.DB
}

// Entry is one successful call as seen by the ledger.
type Entry struct {
	Timestamp        time.Time
	SessionID        string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Cost             float64
}

// Filter narrows an aggregate. Empty fields match everything.
type Filter struct {
	SessionID string
	Day       string
}

// Open opens or creates the ledger database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert adds one entry.
func (s *Store) Insert(e Entry) error {
	return insert(s.db, e)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insert(db execer, e Entry) error {
	_, err := db.Exec(`INSERT INTO ledger_entries
		(ts, day, session_id, model, prompt_tokens, completion_tokens, total_tokens, cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.Timestamp.Local().Format(DayLayout),
		e.SessionID, e.Model, e.PromptTokens, e.CompletionTokens, e.TotalTokens, e.Cost,
	)
	return err
}

// ReplaceAll swaps the whole view for entries in one transaction.
func (s *Store) ReplaceAll(entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM ledger_entries"); err != nil {
		return err
	}
	for _, e := range entries {
		if err := insert(tx, e); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO ledger_meta (key, value) VALUES ('rebuilt_at', ?)`,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

// RebuiltAt returns when ReplaceAll last ran, or the zero time.
func (s *Store) RebuiltAt() (time.Time, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM ledger_meta WHERE key = 'rebuilt_at'").Scan(&v)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

// Aggregate sums entries matching f, per model.
func (s *Store) Aggregate(f Filter) (model.LedgerAggregate, error) {
	var agg model.LedgerAggregate

	query := `SELECT model, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM ledger_entries WHERE 1=1`
	var args []any
	if f.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.Day != "" {
		query += " AND day = ?"
		args = append(args, f.Day)
	}
	query += " GROUP BY model"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return agg, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var m model.LedgerModel
		if err := rows.Scan(&m.Model, &m.Calls, &m.Tokens, &m.Cost); err != nil {
			return agg, err
		}
		agg.Calls += m.Calls
		agg.TotalTokens += m.Tokens
		agg.TotalCost += m.Cost
		agg.Models = append(agg.Models, m)
	}
	if err := rows.Err(); err != nil {
		return agg, err
	}

	sort.Slice(agg.Models, func(i, j int) bool {
		if agg.Models[i].Cost != agg.Models[j].Cost {
			return agg.Models[i].Cost > agg.Models[j].Cost
		}
		return agg.Models[i].Model < agg.Models[j].Model
	})
	return agg, nil
}

// Days returns per-day totals from since (inclusive), oldest first.
// Days without entries are omitted.
func (s *Store) Days(since string) ([]model.DailyStats, error) {
	rows, err := s.db.Query(`SELECT day, COUNT(*), COALESCE(SUM(total_tokens), 0), COALESCE(SUM(cost), 0)
		FROM ledger_entries WHERE day >= ? GROUP BY day ORDER BY day`, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.DailyStats
	for rows.Next() {
		var day string
		var d model.DailyStats
		if err := rows.Scan(&day, &d.Calls, &d.TotalTokens, &d.Cost); err != nil {
			return nil, err
		}
		d.Date, err = time.ParseInLocation(DayLayout, day, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing day %q: %w", day, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Count returns the number of entries.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM ledger_entries").Scan(&n)
	return n, err
}
