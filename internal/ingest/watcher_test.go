package ingest

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func waitWithTimeout(
	t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string,
) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal(msg)
	}
}

// newMockWatcher creates a Watcher without an fsnotify backend for
// exercising handleEvent and flush directly.
func newMockWatcher(
	debounce time.Duration, onChange func([]string),
) *Watcher {
	return &Watcher{
		debounce: debounce,
		pending:  make(map[string]time.Time),
		onChange: onChange,
		now:      time.Now,
	}
}

func TestWatcherCallsOnChange(t *testing.T) {
	dir := t.TempDir()
	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan struct{})
	var once sync.Once

	w, err := NewWatcher(dir, 50*time.Millisecond, func(paths []string) {
		mu.Lock()
		got = append(got, paths...)
		mu.Unlock()
		once.Do(func() { close(done) })
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Start()
	t.Cleanup(w.Stop)

	path := filepath.Join(dir, ContactsFile)
	if err := os.WriteFile(path, []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	waitWithTimeout(t, done, 5*time.Second,
		"timed out waiting for onChange callback")

	mu.Lock()
	defer mu.Unlock()
	if !slices.Contains(got, path) {
		t.Fatalf("onChange paths = %v, want %s", got, path)
	}
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(
		filepath.Join(t.TempDir(), "missing"), time.Second,
		func([]string) {},
	)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestNewWatcherNilCallback(t *testing.T) {
	if _, err := NewWatcher(t.TempDir(), time.Second, nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}

func TestHandleEventFiltersFiles(t *testing.T) {
	w := newMockWatcher(time.Second, func([]string) {})
	dir := t.TempDir()

	events := []fsnotify.Event{
		{Name: filepath.Join(dir, ContactsFile), Op: fsnotify.Write},
		{Name: filepath.Join(dir, ConversationsFile), Op: fsnotify.Create},
		{Name: filepath.Join(dir, "contacts.jsonl.tmp"), Op: fsnotify.Write},
		{Name: filepath.Join(dir, ContactsFile), Op: fsnotify.Chmod},
	}
	for _, ev := range events {
		w.handleEvent(ev)
	}
	if len(w.pending) != 2 {
		t.Fatalf("pending = %v, want the two export files", w.pending)
	}
}

func TestFlushWaitsForDebounce(t *testing.T) {
	var calls [][]string
	w := newMockWatcher(time.Minute, func(paths []string) {
		calls = append(calls, paths)
	})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.pending["recent"] = now.Add(-10 * time.Second)
	w.pending["settled"] = now.Add(-2 * time.Minute)
	w.flush()

	if len(calls) != 1 || !slices.Equal(calls[0], []string{"settled"}) {
		t.Fatalf("calls = %v, want [[settled]]", calls)
	}
	if _, ok := w.pending["recent"]; !ok {
		t.Error("recent change should still be pending")
	}

	w.flush()
	if len(calls) != 1 {
		t.Errorf("flush with nothing settled called onChange again")
	}
}
