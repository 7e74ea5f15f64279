package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	w, err := New(WithDebounce(20 * time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWatcher_DeliversWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.json")
	writeFile(t, path, `{}`)

	w := newTestWatcher(t)
	events := make(chan Event, 8)
	w.OnChange(func(ev Event) { events <- ev })
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, path, `{"theme": "dark"}`)

	select {
	case ev := <-events:
		if ev.Path != path {
			t.Errorf("path = %q, want %q", ev.Path, path)
		}
		if ev.Op != OpWrite && ev.Op != OpCreate {
			t.Errorf("op = %v", ev.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.json")
	writeFile(t, path, `{}`)

	w := newTestWatcher(t)
	events := make(chan Event, 16)
	w.OnChange(func(ev Event) { events <- ev })
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	for i := 0; i < 5; i++ {
		writeFile(t, path, `{}`)
		time.Sleep(2 * time.Millisecond)
	}

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	// The burst should have collapsed; allow the window to drain and
	// verify no flood arrived.
	time.Sleep(100 * time.Millisecond)
	if n := len(events); n > 1 {
		t.Errorf("%d extra events after burst, want coalescing", n+1)
	}
}

func TestWatcher_IgnoresUnwatchedSiblings(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched.json")
	sibling := filepath.Join(dir, "sibling.json")
	writeFile(t, watched, `{}`)
	writeFile(t, sibling, `{}`)

	w := newTestWatcher(t)
	events := make(chan Event, 8)
	w.OnChange(func(ev Event) { events <- ev })
	if err := w.Watch(watched); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeFile(t, sibling, `{"x": 1}`)

	select {
	case ev := <-events:
		t.Errorf("event for unwatched file: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_Unwatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "values.json")
	writeFile(t, path, `{}`)

	w := newTestWatcher(t)
	events := make(chan Event, 8)
	w.OnChange(func(ev Event) { events <- ev })
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	w.Unwatch(path)

	writeFile(t, path, `{"x": 1}`)

	select {
	case ev := <-events:
		t.Errorf("event after Unwatch: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Watch("/tmp/x"); err == nil {
		t.Error("Watch after Close accepted")
	}
}

func TestOperation_String(t *testing.T) {
	cases := map[Operation]string{
		OpWrite:       "write",
		OpCreate:      "create",
		OpRemove:      "remove",
		OpRename:      "rename",
		Operation(99): "unknown",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", op, got, want)
		}
	}
}
