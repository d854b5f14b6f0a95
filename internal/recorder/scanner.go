package recorder

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LogFile is one call log found on disk.
type LogFile struct {
	Path       string
	Compressed bool
	Rotated    bool
}

// ScanDir finds calls.jsonl and its rotated backups (plain or .gz) in dir.
// Backups come first, oldest to newest, then the live file.
func ScanDir(dir string) ([]LogFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	base := strings.TrimSuffix(JSONLName, ".jsonl")
	var backups []LogFile
	var live *LogFile

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(dir, name)
		switch {
		case name == JSONLName:
			live = &LogFile{Path: path}
		case strings.HasPrefix(name, base+"-") && strings.HasSuffix(name, ".jsonl"):
			backups = append(backups, LogFile{Path: path, Rotated: true})
		case strings.HasPrefix(name, base+"-") && strings.HasSuffix(name, ".jsonl.gz"):
			backups = append(backups, LogFile{Path: path, Rotated: true, Compressed: true})
		}
	}

	// Rotated names embed a sortable timestamp.
	sort.Slice(backups, func(i, j int) bool { return backups[i].Path < backups[j].Path })
	if live != nil {
		backups = append(backups, *live)
	}
	return backups, nil
}
