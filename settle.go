package settle

import (
	"fmt"
	"sync"
	"time"

	"github.com/dshills/settle/binding"
	"github.com/dshills/settle/logging"
	"github.com/dshills/settle/schema"
	"github.com/dshills/settle/store"
	"github.com/dshills/settle/values"
)

// Config carries everything a host supplies when mounting a session.
// All fields are optional except the schema passed to Mount.
type Config struct {
	// Values are the host's explicit values, flat or nested. They are
	// resolved over the schema defaults.
	Values map[string]any

	// OnChange persists a written value. Nil means writes apply to the
	// snapshot only.
	OnChange store.ChangeFunc

	// OnValidate is the custom validator consulted after the built-in
	// rules pass.
	OnValidate store.ValidateFunc

	// OnAction handles action invocations.
	OnAction store.ActionFunc

	// Mode selects valid-only (default) or eager write behavior.
	Mode store.Mode

	// Logger receives store and session logs. Nil disables logging.
	Logger *logging.Logger

	// SavedHold overrides how long saves show as saved before reverting
	// to idle. Zero keeps the default.
	SavedHold time.Duration
}

// Session is a mounted settings panel state: one store and one binder
// over a validated schema.
type Session struct {
	index  *schema.Index
	store  *store.Store
	binder *binding.Binder
	logger *logging.Logger

	closeOnce sync.Once
}

// Mount validates the schema, resolves defaults with the host's values,
// and builds the live session.
func Mount(sch *schema.Schema, cfg Config) (*Session, error) {
	if sch == nil {
		return nil, fmt.Errorf("mount: nil schema")
	}
	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	index := schema.NewIndex(sch)
	resolved := values.Resolve(index, cfg.Values)

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Null
	}

	opts := []store.Option{
		store.WithMode(cfg.Mode),
		store.WithLogger(logger.WithComponent("store")),
	}
	if cfg.SavedHold > 0 {
		opts = append(opts, store.WithSavedHold(cfg.SavedHold))
	}

	st := store.New(index, resolved, opts...)
	st.SetOnChange(cfg.OnChange)
	st.SetOnValidate(cfg.OnValidate)
	st.SetOnAction(cfg.OnAction)

	return &Session{
		index:  index,
		store:  st,
		binder: binding.New(st),
		logger: logger,
	}, nil
}

// UpdateValues replaces the session's values with a fresh resolve of the
// host's explicit values over schema defaults, then delivers a single
// coalesced notification.
func (s *Session) UpdateValues(explicit map[string]any) {
	resolved := values.Resolve(s.index, explicit)
	s.store.SetValues(resolved)
	s.store.Flush()
}

// Store returns the session's value store.
func (s *Session) Store() *store.Store {
	return s.store
}

// Index returns the flattened schema index.
func (s *Session) Index() *schema.Index {
	return s.index
}

// Binder returns the session's binding layer.
func (s *Session) Binder() *binding.Binder {
	return s.binder
}

// Close tears the session down. Close is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.binder.Close()
		s.store.Destroy()
	})
}
