package recorder

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/theirongolddev/promptroute/internal/model"
)

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleRecord(session string, ts time.Time, success bool) model.CallRecord {
	return model.CallRecord{
		Timestamp: ts,
		SessionID: session,
		PromptID:  "p-" + ts.Format("150405"),
		ModelID:   "openai/gpt-4o",
		Classification: model.PromptClassification{
			Type:   model.TypeCode,
			Bucket: model.BucketShort,
		},
		Decision:   model.RoutingDecision{ChosenStrategy: model.StrategyBalanced, ChosenModel: "openai/gpt-4o"},
		Usage:      model.UsageStats{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, LatencySeconds: 1.25},
		TokenCount: 150,
		Cost:       0.00075,
		Success:    success,
		Query:      strings.Repeat("q", 150),
		FullQuery:  strings.Repeat("q", 150),
	}
}

func TestFileRecorderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(dir, Options{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	rec.Record(sampleRecord("s1", base, true))
	rec.Record(sampleRecord("s1", base.Add(time.Minute), false))
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	files, err := ScanDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Rotated {
		t.Fatalf("files = %+v", files)
	}
	res := ReadFile(files[0])
	if res.Err != nil || res.ParseErrors != 0 {
		t.Fatalf("read: err=%v parseErrors=%d", res.Err, res.ParseErrors)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(res.Records))
	}
	got := res.Records[0]
	if got.ModelID != "openai/gpt-4o" || got.Cost != 0.00075 || !got.Success || got.TokenCount != 150 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if res.Records[1].Success {
		t.Error("second record should be a failure")
	}
}

func TestFileRecorderCSV(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(dir, Options{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	rec.Record(sampleRecord("s1", time.Now(), true))
	_ = rec.Close()

	// Reopening must not write a second header.
	rec, err = NewFileRecorder(dir, Options{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	rec.Record(sampleRecord("s1", time.Now(), true))
	_ = rec.Close()

	f, err := os.Open(filepath.Join(dir, CSVName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(CSVHeader, ",") {
		t.Errorf("header = %v", rows[0])
	}
	query := rows[1][len(CSVHeader)-1]
	if len([]rune(query)) != model.QueryPreviewLen || !strings.HasSuffix(query, "...") {
		t.Errorf("query column = %q", query)
	}
	if rows[1][6] != "balanced" || rows[1][7] != "false" {
		t.Errorf("strategy/manual = %q/%q", rows[1][6], rows[1][7])
	}
}

func TestReadFileCompressedAndMalformed(t *testing.T) {
	dir := t.TempDir()
	line, _ := json.Marshal(sampleRecord("s2", time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), true))

	gzPath := filepath.Join(dir, "calls-2025-05-01T00-00-00.000.jsonl.gz")
	f, err := os.Create(gzPath)
	if err != nil {
		t.Fatal(err)
	}
	zw := gzip.NewWriter(f)
	_, _ = zw.Write(append(line, '\n'))
	_, _ = zw.Write([]byte("{not json\n"))
	_ = zw.Close()
	_ = f.Close()

	if err := os.WriteFile(filepath.Join(dir, JSONLName), append(line, '\n'), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	files, err := ScanDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("files = %d, want 2", len(files))
	}
	if !files[0].Compressed || files[1].Path != filepath.Join(dir, JSONLName) {
		t.Errorf("order = %+v", files)
	}

	res := ReadFile(files[0])
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if len(res.Records) != 1 || res.ParseErrors != 1 {
		t.Errorf("records=%d parseErrors=%d, want 1/1", len(res.Records), res.ParseErrors)
	}
}

func TestReadFileOversizedLine(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(dir, Options{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2025, 5, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec.Record(sampleRecord("s", base.Add(time.Duration(i)*time.Second), true))
	}
	big := sampleRecord("s", base.Add(time.Minute), true)
	big.FullQuery = strings.Repeat("x", 3*1024*1024)
	rec.Record(big)
	rec.Record(sampleRecord("s", base.Add(2*time.Minute), true))
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	res := ReadFile(LogFile{Path: filepath.Join(dir, JSONLName)})
	if res.Err != nil {
		t.Fatalf("ReadFile: %v", res.Err)
	}
	if len(res.Records) != 7 || res.ParseErrors != 0 {
		t.Fatalf("records=%d parseErrors=%d, want 7/0", len(res.Records), res.ParseErrors)
	}
	if got := len(res.Records[5].FullQuery); got != 3*1024*1024 {
		t.Errorf("oversized full_query = %d bytes", got)
	}
}

type failingReader struct{ data *strings.Reader }

func (f failingReader) Read(p []byte) (int, error) {
	n, err := f.data.Read(p)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func TestDecodeKeepsRecordsBeforeReadError(t *testing.T) {
	line, _ := json.Marshal(sampleRecord("s", time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC), true))
	body := string(line) + "\n" + string(line) + "\n"

	res := decode(failingReader{strings.NewReader(body)})
	if res.Err == nil {
		t.Fatal("expected read error")
	}
	if len(res.Records) != 2 {
		t.Errorf("records = %d, want 2 kept before the error", len(res.Records))
	}
}

func TestFileRecorderWriteFailureIsLogged(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	rec, err := NewFileRecorder(t.TempDir(), Options{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	rec.Record(sampleRecord("s", time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC), true))

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.ErrorLevel && e.Data["file"] == CSVName {
			logged = true
		}
	}
	if !logged {
		t.Errorf("csv write failure not logged; entries = %d", len(hook.AllEntries()))
	}
}

func TestFileRecorderConcurrentRecord(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewFileRecorder(dir, Options{}, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	const writers, each = 8, 25
	base := time.Date(2025, 5, 5, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				rec.Record(sampleRecord("s", base.Add(time.Duration(w*each+i)*time.Second), true))
			}
		}(w)
	}
	wg.Wait()
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	res := ReadFile(LogFile{Path: filepath.Join(dir, JSONLName)})
	if res.Err != nil || res.ParseErrors != 0 {
		t.Fatalf("err=%v parseErrors=%d", res.Err, res.ParseErrors)
	}
	if len(res.Records) != writers*each {
		t.Errorf("records = %d, want %d", len(res.Records), writers*each)
	}

	f, err := os.Open(filepath.Join(dir, CSVName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("csv interleaved: %v", err)
	}
	if len(rows) != writers*each+1 {
		t.Errorf("csv rows = %d, want %d", len(rows), writers*each+1)
	}
}

func TestScanDirMissing(t *testing.T) {
	files, err := ScanDir(filepath.Join(t.TempDir(), "nope"))
	if err != nil || files != nil {
		t.Errorf("ScanDir(missing) = %v, %v", files, err)
	}
}

func TestRecentAndBySession(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var mem MemoryRecorder
	mem.Record(sampleRecord("a", base, true))
	mem.Record(sampleRecord("b", base.Add(2*time.Hour), true))
	mem.Record(sampleRecord("a", base.Add(time.Hour), true))
	records := mem.Records()

	recent := Recent(records, 2)
	if len(recent) != 2 || !recent[0].Timestamp.Equal(base.Add(2*time.Hour)) {
		t.Errorf("Recent = %+v", recent)
	}

	a := BySession(records, "a")
	if len(a) != 2 || !a[0].Timestamp.Equal(base) {
		t.Errorf("BySession = %+v", a)
	}
	if got := BySession(records, "zzz"); len(got) != 0 {
		t.Errorf("BySession(unknown) = %d records", len(got))
	}
}
