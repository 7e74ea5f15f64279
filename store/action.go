package store

import "fmt"

// Invoke runs the action registered for key. While an asynchronous
// invocation is in flight further invocations of the same key are
// silently ignored. A synchronous completion produces no loading
// transition at all.
func (s *Store) Invoke(key string, payload any) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	entry := s.index.Get(key)
	if entry == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if !entry.IsAction() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAction, key)
	}
	if s.inFlight[key] {
		s.stats.ActionsIgnored++
		s.mu.Unlock()
		s.logger.Debug("ignored reentrant invoke of %s", key)
		return nil
	}
	cb := s.onAction
	if cb == nil {
		s.mu.Unlock()
		s.logger.Warn("no action handler installed, ignoring invoke of %s", key)
		return nil
	}
	s.inFlight[key] = true
	s.stats.Actions++
	s.mu.Unlock()

	p := cb(key, payload)
	if p == nil {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	if s.destroyed {
		delete(s.inFlight, key)
		s.mu.Unlock()
		return nil
	}
	s.actionLoading[key] = true
	snap, subs := s.publishLocked()
	s.mu.Unlock()
	notify(subs, snap)

	go func() {
		err := <-p
		s.settleAction(key, err)
	}()
	return nil
}

func (s *Store) settleAction(key string, err error) {
	s.mu.Lock()
	delete(s.inFlight, key)
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	delete(s.actionLoading, key)
	snap, subs := s.publishLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("action %s failed: %v", key, err)
	}
	notify(subs, snap)
}
