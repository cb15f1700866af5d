// Package watch turns transcript files dropped into an inbox directory into calls.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Handler receives the name and contents of a new transcript file.
type Handler func(ctx context.Context, name, text string) error

// Watcher monitors the inbox for *.txt files. Each file is handled once per
// process; writers should create the file atomically (write then rename).
type Watcher struct {
	dir     string
	enabled bool
	handle  Handler
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// New builds a watcher over dir.
func New(dir string, enabled bool, handle Handler, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, enabled: enabled, handle: handle, logger: logger, seen: make(map[string]bool)}
}

// Start begins watching until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.enabled {
		w.logger.Info("watcher disabled")
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 && isTranscript(evt.Name) {
					w.process(ctx, evt.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watcher error", "error", err)
			}
		}
	}()
	w.logger.Info("watching inbox", "dir", w.dir)
	return nil
}

// Backfill handles transcripts already present in the inbox.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.dir, "*"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if isTranscript(e) {
			w.process(ctx, e)
		}
	}
	return nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[path] {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		// Rename events also fire for the old name.
		if !os.IsNotExist(err) {
			w.logger.Warn("read transcript failed", "file", path, "error", err)
		}
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return
	}
	w.seen[path] = true
	if err := w.handle(ctx, filepath.Base(path), text); err != nil {
		w.logger.Warn("transcript handler failed", "file", path, "error", err)
	}
}

func isTranscript(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}
