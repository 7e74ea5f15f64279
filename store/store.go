// Package store holds setting values and the state that surrounds them:
// validation errors, asynchronous save tracking, action in-flight flags,
// and pending confirmations. All state is exposed through immutable
// snapshots published to subscribers on every mutation.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/settle/logging"
	"github.com/dshills/settle/schema"
)

// Mode controls whether the host write callback runs for values that
// fail synchronous validation.
type Mode int

const (
	// ModeValidOnly records the validation error and skips the write
	// callback for invalid values. This is the default.
	ModeValidOnly Mode = iota

	// ModeEager runs the write callback even for invalid values while
	// still recording the error.
	ModeEager
)

// DefaultSavedHold is how long a save stays in the saved state before
// reverting to idle.
const DefaultSavedHold = 2 * time.Second

// Stats counts store activity since creation.
type Stats struct {
	Sets              uint64
	Applies           uint64
	SavesStarted      uint64
	SavesSuperseded   uint64
	Actions           uint64
	ActionsIgnored    uint64
	ConfirmsRequested uint64
	ConfirmsCancelled uint64
}

// Option configures a Store.
type Option func(*Store)

// WithMode sets the write mode.
func WithMode(m Mode) Option {
	return func(s *Store) { s.mode = m }
}

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSavedHold sets how long a key stays in the saved state.
func WithSavedHold(d time.Duration) Option {
	return func(s *Store) { s.savedHold = d }
}

// WithClock substitutes the timer source, used by tests.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Store is the settings value store. It is safe for concurrent use.
// Subscriber callbacks run outside the store lock.
type Store struct {
	mu sync.Mutex

	index     *schema.Index
	mode      Mode
	logger    *logging.Logger
	clock     Clock
	savedHold time.Duration

	values        map[string]any
	errors        map[string]string
	saveStatus    map[string]SaveState
	actionLoading map[string]bool
	pending       *Confirm

	version uint64
	snap    Snapshot

	subscribers map[uint64]func(Snapshot)
	nextSub     uint64

	onChange   ChangeFunc
	onValidate ValidateFunc
	onAction   ActionFunc

	saveGen    map[string]uint64
	saveTimers map[string]Timer
	inFlight   map[string]bool

	destroyed bool
	stats     Stats
}

// New creates a store over the schema index, seeded with the schema
// defaults overlaid by initial (which may be nil).
func New(index *schema.Index, initial map[string]any, opts ...Option) *Store {
	s := &Store{
		index:         index,
		logger:        logging.Null,
		clock:         realClock{},
		savedHold:     DefaultSavedHold,
		values:        index.Defaults(),
		errors:        make(map[string]string),
		saveStatus:    make(map[string]SaveState),
		actionLoading: make(map[string]bool),
		subscribers:   make(map[uint64]func(Snapshot)),
		saveGen:       make(map[string]uint64),
		saveTimers:    make(map[string]Timer),
		inFlight:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	for k, v := range initial {
		s.values[k] = v
	}
	s.snap = s.snapshotLocked()
	return s
}

// SetOnChange installs the host write callback.
func (s *Store) SetOnChange(fn ChangeFunc) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SetOnValidate installs the host custom validator.
func (s *Store) SetOnValidate(fn ValidateFunc) {
	s.mu.Lock()
	s.onValidate = fn
	s.mu.Unlock()
}

// SetOnAction installs the host action handler.
func (s *Store) SetOnAction(fn ActionFunc) {
	s.mu.Lock()
	s.onAction = fn
	s.mu.Unlock()
}

// State returns the current snapshot.
func (s *Store) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Stats returns a copy of the activity counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Subscribe registers fn to run on every published mutation and returns
// an unsubscribe func. Subscribing to a destroyed store is a no-op.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// SetValues replaces the value map without notifying subscribers. The
// snapshot is refreshed so readers see the new values immediately; call
// Flush to deliver one coalesced notification.
func (s *Store) SetValues(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.values = make(map[string]any, len(values))
	for k, v := range values {
		s.values[k] = v
	}
	s.version++
	s.snap = s.snapshotLocked()
}

// Flush notifies subscribers with the current snapshot.
func (s *Store) Flush() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	snap := s.snap
	subs := s.subscribersLocked()
	s.mu.Unlock()
	notify(subs, snap)
}

// Set writes a value. Unknown keys and action keys return errors;
// disabled and read-only keys drop the write silently. Keys with a
// confirm config install a pending confirmation instead of applying.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.stats.Sets++
	entry := s.index.Get(key)
	if entry == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if entry.IsAction() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrActionKey, key)
	}
	st := entry.Setting
	if st.Disabled || st.ReadOnly {
		s.mu.Unlock()
		s.logger.Debug("dropped write to %s setting %s", writeGuard(st), key)
		return nil
	}
	s.mu.Unlock()

	if st.Confirm != nil {
		_, err := s.RequestConfirm(key, value, *st.Confirm, st.Dangerous,
			func() { s.apply(st, key, value) },
			nil)
		return err
	}
	s.apply(st, key, value)
	return nil
}

func writeGuard(st *schema.Setting) string {
	if st.Disabled {
		return "disabled"
	}
	return "read-only"
}

// apply runs synchronous validation, updates the snapshot, and invokes
// the write callback according to the store mode.
func (s *Store) apply(st *schema.Setting, key string, value any) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.values[key] = value
	msg := schema.ValidateValue(st, value, s.values)
	if msg == "" {
		delete(s.errors, key)
	} else {
		s.errors[key] = msg
	}
	s.stats.Applies++
	cb := s.onChange
	skip := msg != "" && s.mode == ModeValidOnly
	snap, subs := s.publishLocked()
	s.mu.Unlock()

	notify(subs, snap)
	if cb == nil || skip {
		return
	}
	s.trackSave(key, cb(key, value))
}

// Validate runs the validation pipeline for key against its current
// value and records the result. Unknown keys and keys with a pending
// confirmation validate clean. Synchronous failures short-circuit the
// host validator; a host validator error is logged and recorded as a
// generic failure message rather than returned.
func (s *Store) Validate(ctx context.Context, key string) string {
	s.mu.Lock()
	v := s.values[key]
	s.mu.Unlock()
	return s.ValidateValue(ctx, key, v)
}

// ValidateValue is Validate against a candidate value instead of the
// stored one.
func (s *Store) ValidateValue(ctx context.Context, key string, value any) string {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ""
	}
	entry := s.index.Get(key)
	if entry == nil || entry.IsAction() {
		s.mu.Unlock()
		return ""
	}
	if s.pending != nil && s.pending.Key == key {
		s.mu.Unlock()
		return ""
	}
	values := copyValues(s.values)
	values[key] = value
	validator := s.onValidate
	s.mu.Unlock()

	msg := schema.ValidateValue(entry.Setting, value, values)
	if msg == "" && validator != nil {
		res, err := validator(ctx, key, value)
		if err != nil {
			s.logger.Error("async validation failed for %s: %v", key, err)
			res = "Validation failed"
		}
		msg = res
	}
	s.recordError(key, msg)
	return msg
}

func (s *Store) recordError(key, msg string) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	if msg == "" {
		if _, ok := s.errors[key]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.errors, key)
	} else {
		if s.errors[key] == msg {
			s.mu.Unlock()
			return
		}
		s.errors[key] = msg
	}
	snap, subs := s.publishLocked()
	s.mu.Unlock()
	notify(subs, snap)
}

// Destroy tears the store down. In-flight saves and actions settle as
// no-ops; further operations return ErrDestroyed or do nothing.
func (s *Store) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	for key, t := range s.saveTimers {
		t.Stop()
		delete(s.saveTimers, key)
	}
	s.subscribers = make(map[uint64]func(Snapshot))
	s.pending = nil
	s.mu.Unlock()
}

// Destroyed reports whether Destroy has been called.
func (s *Store) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Index returns the schema index the store was built over.
func (s *Store) Index() *schema.Index {
	return s.index
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:        s.version,
		Values:         copyValues(s.values),
		Errors:         copyErrors(s.errors),
		SaveStatus:     copySaves(s.saveStatus),
		ActionLoading:  copyLoading(s.actionLoading),
		PendingConfirm: s.pending,
	}
}

// publishLocked installs a fresh snapshot and returns it with the
// subscribers to notify. Callers notify after releasing the lock.
func (s *Store) publishLocked() (Snapshot, []func(Snapshot)) {
	s.version++
	s.snap = s.snapshotLocked()
	return s.snap, s.subscribersLocked()
}

func (s *Store) subscribersLocked() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
