package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu       sync.Mutex
	reloaded []string
	removed  []string
}

func (h *recordingHandler) ReloadMonitor(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloaded = append(h.reloaded, name)
	return nil
}

func (h *recordingHandler) RemoveMonitor(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removed = append(h.removed, name)
}

func (h *recordingHandler) snapshot() ([]string, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.reloaded...), append([]string(nil), h.removed...)
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestWatcherReloadsAndRemoves(t *testing.T) {
	dir := t.TempDir()
	handler := &recordingHandler{}

	watcher, err := NewWatcher(dir, handler)
	if err != nil {
		t.Fatal(err)
	}
	watcher.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := watcher.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer watcher.Stop()

	path := filepath.Join(dir, "acme.yml")
	if err := os.WriteFile(path, []byte("user_id: u\nquery: acme\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		reloaded, _ := handler.snapshot()
		return len(reloaded) > 0
	})

	reloaded, _ := handler.snapshot()
	for _, name := range reloaded {
		if name != "acme" {
			t.Errorf("Expected only 'acme' to be reloaded, got '%s'", name)
		}
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		_, removed := handler.snapshot()
		return len(removed) == 1
	})

	_, removed := handler.snapshot()
	if removed[0] != "acme" {
		t.Errorf("Expected 'acme' to be removed, got '%s'", removed[0])
	}
}

func TestWatcherCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "monitors")

	watcher, err := NewWatcher(dir, &recordingHandler{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := watcher.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Expected clean stop, got %v", err)
	}

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected monitors directory to be created: %v", err)
	}
}
