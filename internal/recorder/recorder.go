// Package recorder persists one CallRecord per upstream attempt and reads
// the call logs back.
package recorder

import (
	"sort"
	"sync"

	"github.com/theirongolddev/promptroute/internal/model"
)

// Recorder accepts call records. Implementations never fail the caller;
// storage problems are logged.
type Recorder interface {
	Record(rec model.CallRecord)
}

// Nop discards records.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(model.CallRecord) {}

// MemoryRecorder keeps records in memory.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []model.CallRecord
}

// Record implements Recorder.
func (m *MemoryRecorder) Record(rec model.CallRecord) {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
}

// Records returns a copy of everything recorded, oldest first.
func (m *MemoryRecorder) Records() []model.CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CallRecord(nil), m.records...)
}

// Recent returns the last n records, newest first.
func Recent(records []model.CallRecord, n int) []model.CallRecord {
	sorted := append([]model.CallRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// BySession returns the records of one session, oldest first.
func BySession(records []model.CallRecord, sessionID string) []model.CallRecord {
	var out []model.CallRecord
	for _, r := range records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
