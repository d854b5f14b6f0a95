package pipeline

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/theirongolddev/promptroute/internal/model"
	"github.com/theirongolddev/promptroute/internal/recorder"
)

// LoadResult holds the output of replaying the call logs. FileErrors counts
// files that could not be read to the end; their leading records are kept.
type LoadResult struct {
	Records     []model.CallRecord
	TotalFiles  int
	ParsedFiles int
	ParseErrors int
	FileErrors  int
}

// ProgressFunc is called during loading to report progress.
// current is the number of files processed so far, total is the total count.
type ProgressFunc func(current, total int)

// Load reads every call log in dir, including rotated and compressed
// backups, with a bounded worker pool. Records come back oldest first.
func Load(dir string, progressFn ProgressFunc) (*LoadResult, error) {
	files, err := recorder.ScanDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	result := &LoadResult{TotalFiles: len(files)}
	if len(files) == 0 {
		return result, nil
	}

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	results := make([]recorder.ReadResult, len(files))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range files {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = recorder.ReadFile(files[idx])
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n), len(files))
				}
			}
		}()
	}

	wg.Wait()

	for _, rr := range results {
		if rr.Err != nil {
			result.FileErrors++
		} else {
			result.ParsedFiles++
		}
		result.ParseErrors += rr.ParseErrors
		result.Records = append(result.Records, rr.Records...)
	}

	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].Timestamp.Before(result.Records[j].Timestamp)
	})

	return result, nil
}
