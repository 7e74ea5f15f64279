// Package watch provides file watching for schema and values live
// reload. Rapid write bursts from editors are debounced so a reload
// handler fires once per burst.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/settle/logging"
)

// Event represents a file change event.
type Event struct {
	// Path is the absolute path to the changed file.
	Path string

	// Op is the operation that triggered the event.
	Op Operation

	// Time is when the event was delivered.
	Time time.Time
}

// Operation represents the type of file operation.
type Operation int

const (
	// OpWrite indicates the file was modified.
	OpWrite Operation = iota

	// OpCreate indicates a new file was created.
	OpCreate

	// OpRemove indicates the file was deleted.
	OpRemove

	// OpRename indicates the file was renamed.
	OpRename
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Handler is called when a debounced file change is delivered. Handlers
// run on timer goroutines, not on the caller's goroutine.
type Handler func(event Event)

// DefaultDebounce is the default burst coalescing window.
const DefaultDebounce = 100 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the debounce duration for rapid changes.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// Watcher monitors individual files for changes. Parent directories are
// registered with the underlying notifier so atomic save-via-rename
// still produces events for the watched file.
type Watcher struct {
	mu sync.Mutex

	fsw      *fsnotify.Watcher
	logger   *logging.Logger
	debounce time.Duration

	// Watched absolute file paths.
	files map[string]bool

	// Directories already registered with fsnotify.
	dirs map[string]bool

	handlers []Handler
	pending  map[string]*pendingEvent

	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

type pendingEvent struct {
	op    Operation
	timer *time.Timer
}

// New creates a file watcher and starts its event loop.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		logger:   logging.Null,
		debounce: DefaultDebounce,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		pending:  make(map[string]*pendingEvent),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// OnChange registers a handler for debounced change events.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	w.handlers = append(w.handlers, h)
	w.mu.Unlock()
}

// Watch adds a file to the watch list.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("watcher closed")
	}
	w.files[abs] = true

	dir := filepath.Dir(abs)
	if w.dirs[dir] {
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		delete(w.files, abs)
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.dirs[dir] = true
	return nil
}

// Unwatch removes a file from the watch list. The directory registration
// is kept; events for unwatched files are filtered out.
func (w *Watcher) Unwatch(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	delete(w.files, abs)
	if p, ok := w.pending[abs]; ok {
		p.timer.Stop()
		delete(w.pending, abs)
	}
	w.mu.Unlock()
}

// Close stops the watcher and cancels pending deliveries. Close is
// idempotent.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Write):
		op = OpWrite
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Remove):
		op = OpRemove
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.files[abs] {
		return
	}

	// Coalesce bursts: the latest operation wins, the timer restarts.
	if p, ok := w.pending[abs]; ok {
		p.op = op
		p.timer.Reset(w.debounce)
		return
	}
	p := &pendingEvent{op: op}
	p.timer = time.AfterFunc(w.debounce, func() { w.deliver(abs) })
	w.pending[abs] = p
}

func (w *Watcher) deliver(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok || w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	handlers := make([]Handler, len(w.handlers))
	copy(handlers, w.handlers)
	op := p.op
	w.mu.Unlock()

	ev := Event{Path: path, Op: op, Time: time.Now()}
	w.logger.Debug("file changed: %s (%s)", path, op)
	for _, h := range handlers {
		h(ev)
	}
}
