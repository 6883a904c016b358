package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// ChangeHandler is notified when a monitor configuration file is written or
// removed.
type ChangeHandler interface {
	ReloadMonitor(name string) error
	RemoveMonitor(name string)
}

// Watcher hot reloads monitor files. Bursts of events for the same file are
// collapsed and delivered once per debounce period.
type Watcher struct {
	dir      string
	handler  ChangeHandler
	debounce time.Duration
	watcher  *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	done chan struct{}
}

func NewWatcher(dir string, handler ChangeHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: defaultDebounce,
		watcher:  fsw,
		pending:  make(map[string]fsnotify.Op),
		done:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create monitors directory: %w", err)
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	go w.processEvents(ctx)

	slog.Info("Monitor watcher started", "dir", w.dir, "debounce", w.debounce)

	return nil
}

// Stop closes the underlying watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Monitor watcher error", "error", err)

		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if filepath.Ext(event.Name) != ".yml" || event.Op == fsnotify.Chmod {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] |= event.Op
	w.pendingMu.Unlock()

	slog.Debug("Monitor file change detected", "path", event.Name, "op", event.Op.String())
}

func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range toProcess {
		name := NameFromPath(path)

		// Editors often save by rename, so the file's presence decides.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			slog.Info("Monitor configuration removed", "monitor", name)
			w.handler.RemoveMonitor(name)
			continue
		}

		if err := w.handler.ReloadMonitor(name); err != nil {
			slog.Error("Failed to reload monitor configuration", "monitor", name, "error", err)
			continue
		}

		slog.Info("Monitor configuration reloaded", "monitor", name)
	}
}
