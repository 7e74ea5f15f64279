// Package binding dispatches store snapshots to per-key observers,
// invoking them only when the slice of state they watch actually changed.
package binding

import (
	"reflect"
	"sync"

	"github.com/dshills/settle/schema"
	"github.com/dshills/settle/store"
)

// KeyView is the complete observable state of one setting key.
type KeyView struct {
	Key           string
	Value         any
	Error         string
	SaveState     store.SaveState
	ActionLoading bool
	Visible       bool
}

func (v KeyView) equal(o KeyView) bool {
	return v.Key == o.Key &&
		v.Error == o.Error &&
		v.SaveState == o.SaveState &&
		v.ActionLoading == o.ActionLoading &&
		v.Visible == o.Visible &&
		reflect.DeepEqual(v.Value, o.Value)
}

type keyBinding struct {
	key    string
	fn     func(KeyView)
	last   KeyView
	primed bool
}

// Binder multiplexes one store subscription into per-key, confirm, and
// whole-snapshot bindings. Callbacks run outside the binder lock, so a
// binding may write back into the store.
type Binder struct {
	mu sync.Mutex

	store *store.Store
	index *schema.Index
	unsub func()

	keys     map[uint64]*keyBinding
	confirms map[uint64]func(*store.Confirm)
	anys     map[uint64]func(store.Snapshot)
	nextID   uint64

	lastConfirm *store.Confirm
	closed      bool
}

// New creates a binder over the store. Close it when done.
func New(s *store.Store) *Binder {
	b := &Binder{
		store:    s,
		index:    s.Index(),
		keys:     make(map[uint64]*keyBinding),
		confirms: make(map[uint64]func(*store.Confirm)),
		anys:     make(map[uint64]func(store.Snapshot)),
	}
	b.unsub = s.Subscribe(b.dispatch)
	return b
}

// Bind observes one key. fn runs immediately with the current view, then
// again whenever the view changes. Returns an unbind func.
func (b *Binder) Bind(key string, fn func(KeyView)) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	kb := &keyBinding{key: key, fn: fn}
	b.keys[id] = kb
	snap := b.store.State()
	view := b.viewLocked(key, snap)
	kb.last = view
	kb.primed = true
	b.mu.Unlock()

	fn(view)
	return func() {
		b.mu.Lock()
		delete(b.keys, id)
		b.mu.Unlock()
	}
}

// BindConfirm observes the pending confirmation. fn runs whenever the
// pending request identity changes, including to nil on resolution.
func (b *Binder) BindConfirm(fn func(*store.Confirm)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.confirms[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.confirms, id)
		b.mu.Unlock()
	}
}

// BindAny observes every published snapshot.
func (b *Binder) BindAny(fn func(store.Snapshot)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.anys[id] = fn
	return func() {
		b.mu.Lock()
		delete(b.anys, id)
		b.mu.Unlock()
	}
}

// View returns the current view of key.
func (b *Binder) View(key string) KeyView {
	snap := b.store.State()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewLocked(key, snap)
}

// Close detaches the binder from the store. Dispatch after Close is a
// no-op. Close is idempotent.
func (b *Binder) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	unsub := b.unsub
	b.keys = make(map[uint64]*keyBinding)
	b.confirms = make(map[uint64]func(*store.Confirm))
	b.anys = make(map[uint64]func(store.Snapshot))
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (b *Binder) dispatch(snap store.Snapshot) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	var calls []func()
	for _, kb := range b.keys {
		view := b.viewLocked(kb.key, snap)
		if kb.primed && view.equal(kb.last) {
			continue
		}
		kb.last = view
		kb.primed = true
		fn := kb.fn
		calls = append(calls, func() { fn(view) })
	}
	if snap.PendingConfirm != b.lastConfirm {
		b.lastConfirm = snap.PendingConfirm
		c := snap.PendingConfirm
		for _, fn := range b.confirms {
			fn := fn
			calls = append(calls, func() { fn(c) })
		}
	}
	for _, fn := range b.anys {
		fn := fn
		calls = append(calls, func() { fn(snap) })
	}
	b.mu.Unlock()

	for _, call := range calls {
		call()
	}
}

func (b *Binder) viewLocked(key string, snap store.Snapshot) KeyView {
	view := KeyView{
		Key:           key,
		Value:         snap.Values[key],
		Error:         snap.Errors[key],
		SaveState:     snap.SaveStatus[key],
		ActionLoading: snap.ActionLoading[key],
		Visible:       true,
	}
	if entry := b.index.Get(key); entry != nil {
		view.Visible = schema.Visible(entry.Setting, snap.Values)
	}
	return view
}
