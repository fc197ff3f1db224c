package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/askdocs/askdocs/internal/extract"
)

// debounceWindow coalesces rapid write events for the same file. Editors
// and copies produce bursts of writes before the content settles.
const debounceWindow = 500 * time.Millisecond

// Watcher keeps a directory and the corpus in sync: supported files are
// ingested when created or modified and removed when deleted.
type Watcher struct {
	ingestor *Ingestor
	dir      string
	log      *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher over dir.
func NewWatcher(ingestor *Ingestor, dir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		ingestor: ingestor,
		dir:      dir,
		log:      logger,
		timers:   make(map[string]*time.Timer),
	}
}

// Run watches until ctx is done. Existing files are ingested first so the
// corpus reflects the directory from the start.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return err
	}

	if err := w.ingestExisting(ctx); err != nil {
		return err
	}

	w.log.Info("watch_started", "dir", w.dir)
	for {
		select {
		case <-ctx.Done():
			w.cancelTimers()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch_error", "error", err)
		}
	}
}

// ingestExisting processes the directory's current supported files.
func (w *Watcher) ingestExisting(ctx context.Context) error {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*"))
	if err != nil {
		return err
	}
	var paths []string
	for _, path := range matches {
		if supportedFile(path) {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return nil
	}
	reports, failures := w.ingestor.IngestPaths(ctx, paths)
	w.log.Info("watch_initial_sync", "ingested", len(reports), "failed", len(failures))
	return nil
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !supportedFile(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		w.scheduleIngest(ctx, event.Name)
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.cancelTimer(event.Name)
		if err := w.ingestor.Remove(ctx, filepath.Base(event.Name)); err != nil {
			w.log.Warn("watch_remove_failed", "path", event.Name, "error", err)
		} else {
			w.log.Info("watch_removed", "path", event.Name)
		}
	}
}

// scheduleIngest (re)arms the debounce timer for path.
func (w *Watcher) scheduleIngest(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := w.ingestor.IngestFile(ctx, path); err != nil {
			w.log.Warn("watch_ingest_failed", "path", path, "error", err)
		}
	})
}

func (w *Watcher) cancelTimer(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) cancelTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}

// supportedFile reports whether path has an ingestable format.
func supportedFile(path string) bool {
	_, err := extract.FormatForPath(path)
	return err == nil
}
