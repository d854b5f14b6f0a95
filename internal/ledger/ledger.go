// Package ledger tracks what routed calls cost, per session, day, and
// model. Every successful call is appended to api_costs.csv and to a
// SQLite view that can be rebuilt from the call log at any time.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/theirongolddev/promptroute/internal/catalog"
	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/store"
)

const (
	// CSVName is the flat cost log.
	CSVName = "api_costs.csv"
	// DBName is the SQLite view.
	DBName = "ledger.db"
)

// CSVHeader lists the columns of api_costs.csv.
var CSVHeader = []string{
	"timestamp", "model", "prompt_tokens", "completion_tokens", "total_tokens", "cost", "session_id",
}

// ScopeKind selects what a Summary covers.
type ScopeKind string

const (
	ScopeSession ScopeKind = "session"
	ScopeDay     ScopeKind = "day"
	ScopeAllTime ScopeKind = "all_time"
)

// Scope names one rollup. Key is a session id or a YYYY-MM-DD day; empty
// means the ledger's own session or today.
type Scope struct {
	Kind ScopeKind
	Key  string
}

// ParseScope converts a CLI or query string value into a ScopeKind.
func ParseScope(s string) (ScopeKind, error) {
	switch ScopeKind(s) {
	case ScopeSession, ScopeDay, ScopeAllTime:
		return ScopeKind(s), nil
	case "", "all", "total":
		return ScopeAllTime, nil
	case "today", "date":
		return ScopeDay, nil
	default:
		return "", fmt.Errorf("ledger: unknown scope %q (want session, day, or all_time)", s)
	}
}

// Logger is the part of the ledger the router depends on.
type Logger interface {
	Log(rec model.CallRecord) float64
}

// Ledger records call costs.
type Ledger struct {
	mu        sync.Mutex
	dir       string
	csvF      *os.File
	csvW      *csv.Writer
	db        *store.Store
	catalog   *catalog.Holder
	sessionID string
	logger    log.FieldLogger
	now       func() time.Time
}

// Open opens the cost log and the ledger database under dir.
func Open(dir string, holder *catalog.Holder, sessionID string, logger log.FieldLogger) (*Ledger, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: creating %s: %w", dir, err)
	}

	db, err := store.Open(filepath.Join(dir, DBName))
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	csvPath := filepath.Join(dir, CSVName)
	_, statErr := os.Stat(csvPath)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(csvPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: opening %s: %w", CSVName, err)
	}
	w := csv.NewWriter(f)
	if fresh {
		_ = w.Write(CSVHeader)
		w.Flush()
	}

	return &Ledger{
		dir:       dir,
		csvF:      f,
		csvW:      w,
		db:        db,
		catalog:   holder,
		sessionID: sessionID,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Close closes the cost log and database.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.csvW.Flush()
	err := l.csvF.Close()
	if derr := l.db.Close(); err == nil {
		err = derr
	}
	return err
}

// SessionID returns the session the ledger logs under.
func (l *Ledger) SessionID() string { return l.sessionID }

// Log prices a successful call against the live catalog and appends it
// under the call's own timestamp and session, so the entry lands where
// Rebuild would put it. A zero timestamp or empty session falls back to
// now and the ledger's session. It returns the cost. Unknown models cost 0.
// Storage errors are logged.
func (l *Ledger) Log(rec model.CallRecord) float64 {
	usage := rec.Usage.Normalized()
	cost, err := l.catalog.Current().Cost(rec.ModelID, usage.TotalTokens)
	if err != nil {
		l.logger.WithError(err).WithField("model", rec.ModelID).Warn("pricing unknown model as zero cost")
		cost = 0
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}
	session := rec.SessionID
	if session == "" {
		session = l.sessionID
	}
	l.append(store.Entry{
		Timestamp:        ts,
		SessionID:        session,
		Model:            rec.ModelID,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		Cost:             cost,
	})
	return cost
}

func (l *Ledger) append(e store.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{
		e.Timestamp.Format(time.RFC3339),
		e.Model,
		strconv.FormatInt(e.PromptTokens, 10),
		strconv.FormatInt(e.CompletionTokens, 10),
		strconv.FormatInt(e.TotalTokens, 10),
		strconv.FormatFloat(e.Cost, 'f', 6, 64),
		e.SessionID,
	}
	if err := l.csvW.Write(row); err != nil {
		l.logger.WithError(err).WithField("file", CSVName).Error("writing cost row")
	} else {
		l.csvW.Flush()
		if err := l.csvW.Error(); err != nil {
			l.logger.WithError(err).WithField("file", CSVName).Error("flushing cost row")
		}
	}

	if err := l.db.Insert(e); err != nil {
		l.logger.WithError(err).Error("inserting ledger entry")
	}
}

// Summary returns the cost rollup for scope.
func (l *Ledger) Summary(scope Scope) (model.LedgerAggregate, error) {
	var f store.Filter
	key := scope.Key
	switch scope.Kind {
	case ScopeSession:
		if key == "" {
			key = l.sessionID
		}
		f.SessionID = key
	case ScopeDay:
		if key == "" {
			key = l.now().Format(store.DayLayout)
		}
		if _, err := time.Parse(store.DayLayout, key); err != nil {
			return model.LedgerAggregate{}, fmt.Errorf("ledger: invalid day %q: %w", key, err)
		}
		f.Day = key
	case ScopeAllTime, "":
		scope.Kind = ScopeAllTime
		key = ""
	default:
		return model.LedgerAggregate{}, fmt.Errorf("ledger: unknown scope %q", scope.Kind)
	}

	agg, err := l.db.Aggregate(f)
	if err != nil {
		return agg, fmt.Errorf("ledger: summarizing %s: %w", scope.Kind, err)
	}
	agg.Scope = string(scope.Kind)
	agg.Key = key
	return agg, nil
}

// Rebuild replaces the SQLite view with the successful records. Records
// are priced by their stored cost. It returns the number of entries written.
func (l *Ledger) Rebuild(records []model.CallRecord) (int, error) {
	entries := make([]store.Entry, 0, len(records))
	for _, r := range records {
		if !r.Success {
			continue
		}
		u := r.Usage.Normalized()
		entries = append(entries, store.Entry{
			Timestamp:        r.Timestamp,
			SessionID:        r.SessionID,
			Model:            r.ModelID,
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
			Cost:             r.Cost,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.db.ReplaceAll(entries); err != nil {
		return 0, fmt.Errorf("ledger: rebuilding: %w", err)
	}
	return len(entries), nil
}

// Count returns the number of entries in the view.
func (l *Ledger) Count() (int, error) {
	return l.db.Count()
}

// RebuiltAt reports when Rebuild last replaced the view; zero if never.
func (l *Ledger) RebuiltAt() (time.Time, error) {
	return l.db.RebuiltAt()
}
