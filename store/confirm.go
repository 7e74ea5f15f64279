package store

import (
	"github.com/google/uuid"

	"github.com/dshills/settle/schema"
)

// Confirm is a pending confirmation dialog. At most one is active per
// store; requesting a new one cancels the previous request exactly once,
// after the new request is already installed.
type Confirm struct {
	ID        string
	Key       string
	Value     any
	Config    schema.ConfirmConfig
	Dangerous bool

	onConfirm func()
	onCancel  func()
}

// RequestConfirm installs a confirmation request for key with the given
// dialog config and resolution callbacks. Either callback may be nil.
func (s *Store) RequestConfirm(key string, value any, cfg schema.ConfirmConfig, dangerous bool, onConfirm, onCancel func()) (string, error) {
	c := &Confirm{
		ID:        uuid.NewString(),
		Key:       key,
		Value:     value,
		Config:    cfg,
		Dangerous: dangerous,
		onConfirm: onConfirm,
		onCancel:  onCancel,
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return "", ErrDestroyed
	}
	prev := s.pending
	s.pending = c
	s.stats.ConfirmsRequested++
	snap, subs := s.publishLocked()
	s.mu.Unlock()

	// The superseded request is cancelled only after the new one is
	// visible, so observers never see an idle gap between the two.
	if prev != nil {
		s.mu.Lock()
		s.stats.ConfirmsCancelled++
		s.mu.Unlock()
		if prev.onCancel != nil {
			prev.onCancel()
		}
	}
	notify(subs, snap)
	return c.ID, nil
}

// ResolveConfirm settles the pending confirmation. When confirmed and the
// dialog requires typed text, a mismatch leaves the request pending and
// returns false. Resolving with no pending request is a no-op.
func (s *Store) ResolveConfirm(confirmed bool, typed string) bool {
	s.mu.Lock()
	c := s.pending
	if c == nil || s.destroyed {
		s.mu.Unlock()
		return false
	}
	if confirmed && c.Config.RequireText != "" && typed != c.Config.RequireText {
		s.mu.Unlock()
		return false
	}
	s.pending = nil
	if !confirmed {
		s.stats.ConfirmsCancelled++
	}
	snap, subs := s.publishLocked()
	s.mu.Unlock()

	notify(subs, snap)
	if confirmed {
		if c.onConfirm != nil {
			c.onConfirm()
		}
	} else if c.onCancel != nil {
		c.onCancel()
	}
	return true
}

// PendingConfirm returns the active confirmation request, if any.
func (s *Store) PendingConfirm() *Confirm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
