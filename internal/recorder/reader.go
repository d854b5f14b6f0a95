package recorder

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/theirongolddev/promptroute/internal/model"
)

// ReadResult holds the records parsed from one log file.
type ReadResult struct {
	Records     []model.CallRecord
	ParseErrors int
	Err         error
}

// ReadFile parses a JSONL call log. Malformed lines are counted and skipped.
// On a read error the records decoded before it are still returned.
func ReadFile(lf LogFile) ReadResult {
	f, err := os.Open(lf.Path)
	if err != nil {
		return ReadResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if lf.Compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return ReadResult{Err: err}
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return decode(r)
}

func decode(r io.Reader) ReadResult {
	var res ReadResult

	// ReadBytes has no line cap; full_query can be arbitrarily large.
	br := bufio.NewReaderSize(r, 256*1024)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var rec model.CallRecord
			if jerr := json.Unmarshal(line, &rec); jerr != nil {
				res.ParseErrors++
			} else {
				res.Records = append(res.Records, rec)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				res.Err = err
			}
			return res
		}
	}
}
