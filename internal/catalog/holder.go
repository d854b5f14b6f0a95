package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Holder publishes the live catalog snapshot. Readers always see a complete
// snapshot; reloads swap the pointer.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder returns a holder serving c.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Current returns the live snapshot.
func (h *Holder) Current() *Catalog {
	return h.current.Load()
}

// Store replaces the live snapshot.
func (h *Holder) Store(c *Catalog) {
	h.current.Store(c)
}

// LoadFunc builds a catalog from the file at path.
type LoadFunc func(path string) (*Catalog, error)

// Watch reloads the catalog whenever the file at path changes, until ctx is
// canceled. A reload that fails keeps the previous snapshot.
func (h *Holder) Watch(ctx context.Context, path string, load LoadFunc, logger log.FieldLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory so editors that replace the file are still seen.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("catalog: watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			c, err := load(path)
			if err != nil {
				logger.WithError(err).WithField("path", path).Warn("catalog reload failed, keeping previous snapshot")
				continue
			}
			h.Store(c)
			logger.WithFields(log.Fields{"path": path, "models": c.Len()}).Info("catalog reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("catalog watcher error")
		}
	}
}
