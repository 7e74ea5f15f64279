package store

// trackSave records the host write result for key. Each tracked write
// takes a new generation; a settlement whose generation has been
// superseded by a later write is dropped, so the indicator always
// reflects the most recent write.
func (s *Store) trackSave(key string, p Pending) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.saveGen[key]++
	gen := s.saveGen[key]
	if t, ok := s.saveTimers[key]; ok {
		t.Stop()
		delete(s.saveTimers, key)
	}

	if p == nil {
		// Synchronous completion. No saving flicker; clear any stale
		// indicator from an earlier write.
		if _, ok := s.saveStatus[key]; !ok {
			s.mu.Unlock()
			return
		}
		delete(s.saveStatus, key)
		snap, subs := s.publishLocked()
		s.mu.Unlock()
		notify(subs, snap)
		return
	}

	s.saveStatus[key] = SaveSaving
	s.stats.SavesStarted++
	snap, subs := s.publishLocked()
	s.mu.Unlock()
	notify(subs, snap)

	go func() {
		err := <-p
		s.settleSave(key, gen, err)
	}()
}

func (s *Store) settleSave(key string, gen uint64, err error) {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	if s.saveGen[key] != gen {
		s.stats.SavesSuperseded++
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.saveStatus[key] = SaveError
		snap, subs := s.publishLocked()
		s.mu.Unlock()
		s.logger.Error("save failed for %s: %v", key, err)
		notify(subs, snap)
		return
	}

	s.saveStatus[key] = SaveSaved
	s.saveTimers[key] = s.clock.AfterFunc(s.savedHold, func() {
		s.revertSaved(key, gen)
	})
	snap, subs := s.publishLocked()
	s.mu.Unlock()
	notify(subs, snap)
}

// revertSaved drops the saved indicator after the hold elapses, unless a
// newer write has taken over the key.
func (s *Store) revertSaved(key string, gen uint64) {
	s.mu.Lock()
	if s.destroyed || s.saveGen[key] != gen {
		s.mu.Unlock()
		return
	}
	delete(s.saveStatus, key)
	delete(s.saveTimers, key)
	snap, subs := s.publishLocked()
	s.mu.Unlock()
	notify(subs, snap)
}
