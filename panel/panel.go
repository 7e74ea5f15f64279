package panel

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/settle/binding"
	"github.com/dshills/settle/logging"
	"github.com/dshills/settle/schema"
	"github.com/dshills/settle/store"
)

type rowKind int

const (
	rowSection rowKind = iota
	rowSetting
)

// row is one rendered line of the settings list.
type row struct {
	kind  rowKind
	text  string
	entry *schema.Entry
}

// Option configures a Panel.
type Option func(*Panel)

// WithLogger sets the panel logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Panel) { p.logger = l }
}

// Panel is an interactive settings panel over a store. It consumes
// snapshots through the binding layer and mutates state only through the
// store API.
type Panel struct {
	backend Backend
	store   *store.Store
	index   *schema.Index
	binder  *binding.Binder
	logger  *logging.Logger

	pages []schema.Page

	// Navigation and edit state, owned by the run loop goroutine.
	pageIdx int
	sel     int
	top     int
	rows    []row

	editing bool
	editKey string
	editBuf string

	confirmTyped string

	dirty     chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
}

// New creates a panel over the store using the given backend.
func New(backend Backend, st *store.Store, opts ...Option) *Panel {
	p := &Panel{
		backend: backend,
		store:   st,
		index:   st.Index(),
		logger:  logging.Null,
		pages:   flattenPages(st.Index().Schema().Pages),
		dirty:   make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.binder = binding.New(st)
	p.binder.BindAny(func(store.Snapshot) { p.markDirty() })
	return p
}

// flattenPages lists pages depth-first so child pages become top-level
// tabs after their parent.
func flattenPages(pages []schema.Page) []schema.Page {
	var out []schema.Page
	for _, pg := range pages {
		out = append(out, pg)
		out = append(out, flattenPages(pg.Pages)...)
	}
	return out
}

// Run drives the panel until the user quits or Close is called.
func (p *Panel) Run() error {
	if err := p.backend.Init(); err != nil {
		return fmt.Errorf("panel init: %w", err)
	}
	defer p.backend.Fini()

	events := make(chan Event, 16)
	go func() {
		for {
			ev := p.backend.PollEvent()
			select {
			case events <- ev:
			case <-p.quit:
				return
			}
		}
	}()

	p.render()
	for {
		select {
		case <-p.quit:
			return nil
		case <-p.dirty:
			p.render()
		case ev := <-events:
			if ev.Type == EventKey && p.handleKey(ev) {
				p.Close()
				return nil
			}
			p.render()
		}
	}
}

// Close stops the panel. Close is idempotent and safe from any
// goroutine.
func (p *Panel) Close() {
	p.closeOnce.Do(func() {
		p.binder.Close()
		close(p.quit)
		p.backend.Interrupt()
	})
}

func (p *Panel) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// handleKey processes one key event. Returns true to quit.
func (p *Panel) handleKey(ev Event) bool {
	snap := p.store.State()

	if snap.PendingConfirm != nil {
		p.handleConfirmKey(ev, snap.PendingConfirm)
		return false
	}
	if p.editing {
		p.handleEditKey(ev)
		return false
	}

	switch ev.Key {
	case KeyCtrlC:
		return true
	case KeyRune:
		if ev.Rune == 'q' {
			return true
		}
	case KeyUp:
		p.moveSel(-1)
	case KeyDown:
		p.moveSel(1)
	case KeyLeft:
		p.switchPage(-1)
	case KeyRight, KeyTab:
		p.switchPage(1)
	case KeyEnter:
		p.activate(snap)
	}
	return false
}

func (p *Panel) handleConfirmKey(ev Event, c *store.Confirm) {
	switch ev.Key {
	case KeyEscape:
		p.store.ResolveConfirm(false, "")
		p.confirmTyped = ""
	case KeyEnter:
		if p.store.ResolveConfirm(true, p.confirmTyped) {
			p.confirmTyped = ""
		}
	case KeyBackspace:
		if len(p.confirmTyped) > 0 {
			p.confirmTyped = p.confirmTyped[:len(p.confirmTyped)-1]
		}
	case KeyRune:
		if c.Config.RequireText != "" {
			p.confirmTyped += string(ev.Rune)
		}
	}
}

func (p *Panel) handleEditKey(ev Event) {
	switch ev.Key {
	case KeyEscape:
		p.editing = false
		p.editBuf = ""
	case KeyEnter:
		p.commitEdit()
	case KeyBackspace:
		if len(p.editBuf) > 0 {
			p.editBuf = p.editBuf[:len(p.editBuf)-1]
		}
	case KeyRune:
		p.editBuf += string(ev.Rune)
	}
}

func (p *Panel) commitEdit() {
	entry := p.index.Get(p.editKey)
	if entry == nil {
		p.editing = false
		return
	}

	var value any = p.editBuf
	if entry.Setting.Kind == schema.KindNumber {
		// An unparseable entry is written as the raw string so the
		// validation engine reports it instead of the panel.
		if f, err := strconv.ParseFloat(strings.TrimSpace(p.editBuf), 64); err == nil {
			value = f
		}
	}
	if err := p.store.Set(p.editKey, value); err != nil {
		p.logger.Warn("set %s: %v", p.editKey, err)
	}
	p.editing = false
	p.editBuf = ""
}

func (p *Panel) moveSel(delta int) {
	for i := p.sel + delta; i >= 0 && i < len(p.rows); i += delta {
		if p.rows[i].kind == rowSetting {
			p.sel = i
			return
		}
	}
}

func (p *Panel) switchPage(delta int) {
	next := p.pageIdx + delta
	if next < 0 || next >= len(p.pages) {
		return
	}
	p.pageIdx = next
	p.sel = 0
	p.top = 0
}

// activate applies Enter to the selected row.
func (p *Panel) activate(snap store.Snapshot) {
	if p.sel < 0 || p.sel >= len(p.rows) || p.rows[p.sel].kind != rowSetting {
		return
	}
	entry := p.rows[p.sel].entry
	st := entry.Setting
	key := entry.Key()

	if entry.IsAction() {
		if err := p.store.Invoke(key, nil); err != nil {
			p.logger.Warn("invoke %s: %v", key, err)
		}
		return
	}
	if st.Disabled || st.ReadOnly {
		return
	}

	switch st.Kind {
	case schema.KindBoolean:
		if err := p.store.Set(key, !schema.Truthy(snap.Values[key])); err != nil {
			p.logger.Warn("set %s: %v", key, err)
		}
	case schema.KindSelect:
		if next, ok := nextOption(st.Options, snap.Values[key]); ok {
			if err := p.store.Set(key, next); err != nil {
				p.logger.Warn("set %s: %v", key, err)
			}
		}
	case schema.KindText, schema.KindNumber, schema.KindDate, schema.KindCustom:
		p.editing = true
		p.editKey = key
		p.editBuf = valueText(snap.Values[key])
	}
}

// nextOption cycles to the option after current, wrapping around.
func nextOption(options []schema.Option, current any) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	cur := valueText(current)
	for i, opt := range options {
		if opt.Value == cur {
			return options[(i+1)%len(options)].Value, true
		}
	}
	return options[0].Value, true
}

func valueText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = valueText(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", val)
	}
}
