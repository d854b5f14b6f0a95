package recorder

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/theirongolddev/promptroute/internal/model"
)

const (
	// JSONLName is the structured call log.
	JSONLName = "calls.jsonl"
	// CSVName is the flat call log.
	CSVName = "calls.csv"
)

// CSVHeader lists the columns of calls.csv.
var CSVHeader = []string{
	"timestamp", "session_id", "prompt_id", "model_id", "prompt_type",
	"length_category", "strategy", "manual_selection", "token_count",
	"prompt_tokens", "completion_tokens", "latency", "cost", "success",
	"error_type", "query",
}

// Options controls rotation of the JSONL log.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// FileRecorder appends records to calls.jsonl (rotated) and calls.csv.
type FileRecorder struct {
	mu     sync.Mutex
	dir    string
	jsonl  io.WriteCloser
	csvF   *os.File
	csvW   *csv.Writer
	logger log.FieldLogger
}

// NewFileRecorder opens the call logs under dir, creating it if needed.
func NewFileRecorder(dir string, opts Options, logger log.FieldLogger) (*FileRecorder, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: creating %s: %w", dir, err)
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}

	csvPath := filepath.Join(dir, CSVName)
	_, statErr := os.Stat(csvPath)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(csvPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("recorder: opening %s: %w", CSVName, err)
	}
	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(CSVHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("recorder: writing csv header: %w", err)
		}
		w.Flush()
	}

	return &FileRecorder{
		dir: dir,
		jsonl: &lumberjack.Logger{
			Filename:   filepath.Join(dir, JSONLName),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   opts.Compress,
		},
		csvF:   f,
		csvW:   w,
		logger: logger,
	}, nil
}

// Dir returns the directory the logs are written to.
func (r *FileRecorder) Dir() string { return r.dir }

// Record appends rec to both logs. Errors are logged, not returned.
func (r *FileRecorder) Record(rec model.CallRecord) {
	line, err := json.Marshal(rec)
	if err != nil {
		r.logger.WithError(err).Error("encoding call record")
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.jsonl.Write(line); err != nil {
		r.logger.WithError(err).WithField("file", JSONLName).Error("writing call record")
	}
	if err := r.csvW.Write(csvRow(rec)); err != nil {
		r.logger.WithError(err).WithField("file", CSVName).Error("writing call record")
		return
	}
	r.csvW.Flush()
	if err := r.csvW.Error(); err != nil {
		r.logger.WithError(err).WithField("file", CSVName).Error("flushing call record")
	}
}

// Close flushes and closes both logs.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.csvW.Flush()
	err := r.csvF.Close()
	if jerr := r.jsonl.Close(); err == nil {
		err = jerr
	}
	return err
}

func csvRow(rec model.CallRecord) []string {
	return []string{
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.SessionID,
		rec.PromptID,
		rec.ModelID,
		string(rec.Classification.Type),
		string(rec.Classification.Bucket),
		string(rec.Strategy()),
		strconv.FormatBool(rec.ManualSelection()),
		strconv.FormatInt(rec.TokenCount, 10),
		strconv.FormatInt(rec.Usage.PromptTokens, 10),
		strconv.FormatInt(rec.Usage.CompletionTokens, 10),
		strconv.FormatFloat(rec.Usage.LatencySeconds, 'f', 3, 64),
		strconv.FormatFloat(rec.Cost, 'f', 6, 64),
		strconv.FormatBool(rec.Success),
		rec.ErrorKind,
		model.Truncate(rec.Query, model.QueryPreviewLen),
	}
}
