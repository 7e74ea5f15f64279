package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dshills/settle/schema"
)

const testSchema = `{
	"version": 1,
	"pages": [{
		"id": "general",
		"title": "General",
		"sections": [{
			"id": "main",
			"title": "Main",
			"settings": [
				{"key": "username", "type": "text", "title": "Username",
				 "validation": {"required": true, "requiredMessage": "Username is required"}},
				{"key": "fontSize", "type": "number", "title": "Font Size", "default": 14,
				 "validation": {"min": 8, "max": 72}},
				{"key": "theme", "type": "select", "title": "Theme", "default": "dark",
				 "options": [{"value": "dark", "label": "Dark"}, {"value": "light", "label": "Light"}]},
				{"key": "license", "type": "text", "title": "License", "readonly": true, "default": "fixed"},
				{"key": "legacyMode", "type": "boolean", "title": "Legacy", "disabled": true, "default": false},
				{"key": "resetAll", "type": "action", "title": "Reset", "buttonLabel": "Reset"},
				{"key": "apiToken", "type": "text", "title": "API Token", "dangerous": true,
				 "confirm": {"title": "Replace token?", "message": "Existing token stops working.", "requireText": "REPLACE"}},
				{"key": "region", "type": "select", "title": "Region",
				 "confirm": {"message": "Switch region?"},
				 "options": [{"value": "us", "label": "US"}, {"value": "eu", "label": "EU"}]}
			]
		}]
	}]
}`

func testStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	sc, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := New(schema.NewIndex(sc), nil, opts...)
	t.Cleanup(s.Destroy)
	return s
}

// waitState polls until the snapshot satisfies cond or the deadline hits.
func waitState(t *testing.T, s *Store, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := s.State()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// manualClock drives saved-hold timers by hand.
type manualClock struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  int
	pending map[int]manualTimer
}

type manualTimer struct {
	at time.Duration
	fn func()
}

func newManualClock() *manualClock {
	return &manualClock{pending: make(map[int]manualTimer)}
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.pending[id] = manualTimer{at: c.now + d, fn: f}
	return &manualStop{c: c, id: id}
}

// Advance moves the clock forward and fires due timers outside the lock.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []func()
	for id, mt := range c.pending {
		if mt.at <= c.now {
			due = append(due, mt.fn)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

type manualStop struct {
	c  *manualClock
	id int
}

func (s *manualStop) Stop() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	_, ok := s.c.pending[s.id]
	delete(s.c.pending, s.id)
	return ok
}

func TestNew_SeedsDefaults(t *testing.T) {
	sc, err := schema.Parse([]byte(testSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := New(schema.NewIndex(sc), map[string]any{"theme": "light", "username": "ada"})
	defer s.Destroy()

	snap := s.State()
	if got := snap.Values["fontSize"]; got != float64(14) {
		t.Errorf("fontSize default = %v, want 14", got)
	}
	if got := snap.Values["theme"]; got != "light" {
		t.Errorf("theme = %v, want initial value to win over default", got)
	}
	if got := snap.Values["username"]; got != "ada" {
		t.Errorf("username = %v, want ada", got)
	}
}

func TestSet_RoundTrip(t *testing.T) {
	s := testStore(t)

	var gotKey string
	var gotValue any
	s.SetOnChange(func(key string, value any) Pending {
		gotKey, gotValue = key, value
		return nil
	})

	if err := s.Set("username", "grace"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	snap := s.State()
	if snap.Values["username"] != "grace" {
		t.Errorf("value = %v, want grace", snap.Values["username"])
	}
	if snap.Error("username") != "" {
		t.Errorf("unexpected error %q", snap.Error("username"))
	}
	if gotKey != "username" || gotValue != "grace" {
		t.Errorf("onChange got (%q, %v)", gotKey, gotValue)
	}
	if snap.Save("username") != SaveIdle {
		t.Errorf("sync completion should stay idle, got %v", snap.Save("username"))
	}
}

func TestSet_Errors(t *testing.T) {
	s := testStore(t)

	if err := s.Set("nope", 1); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key err = %v", err)
	}
	if err := s.Set("resetAll", 1); !errors.Is(err, ErrActionKey) {
		t.Errorf("action key err = %v", err)
	}
}

func TestSet_GuardedKeysDropSilently(t *testing.T) {
	s := testStore(t)
	called := false
	s.SetOnChange(func(string, any) Pending {
		called = true
		return nil
	})

	for _, key := range []string{"license", "legacyMode"} {
		if err := s.Set(key, "changed"); err != nil {
			t.Errorf("Set(%s) = %v, want nil", key, err)
		}
	}
	snap := s.State()
	if snap.Values["license"] != "fixed" {
		t.Errorf("readonly value changed to %v", snap.Values["license"])
	}
	if snap.Values["legacyMode"] != false {
		t.Errorf("disabled value changed to %v", snap.Values["legacyMode"])
	}
	if called {
		t.Error("onChange ran for a guarded key")
	}
}

func TestSet_InvalidValidOnly(t *testing.T) {
	s := testStore(t)
	called := false
	s.SetOnChange(func(string, any) Pending {
		called = true
		return nil
	})

	if err := s.Set("username", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	snap := s.State()
	if got := snap.Error("username"); got != "Username is required" {
		t.Errorf("error = %q", got)
	}
	if called {
		t.Error("onChange ran for an invalid value in valid-only mode")
	}
	if snap.Values["username"] != "" {
		t.Errorf("invalid value not reflected in state: %v", snap.Values["username"])
	}
}

func TestSet_InvalidEager(t *testing.T) {
	s := testStore(t, WithMode(ModeEager))
	called := false
	s.SetOnChange(func(string, any) Pending {
		called = true
		return nil
	})

	if err := s.Set("username", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !called {
		t.Error("onChange skipped in eager mode")
	}
	if got := s.State().Error("username"); got != "Username is required" {
		t.Errorf("error = %q, want recorded even in eager mode", got)
	}
}

func TestSet_ValidWriteClearsError(t *testing.T) {
	s := testStore(t)
	if err := s.Set("username", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if s.State().Error("username") == "" {
		t.Fatal("expected an error after the invalid write")
	}
	if err := s.Set("username", "grace"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := s.State().Error("username"); got != "" {
		t.Errorf("error = %q, want cleared", got)
	}
}

func TestSaveLifecycle(t *testing.T) {
	clock := newManualClock()
	s := testStore(t, WithClock(clock))

	done := make(chan error, 1)
	s.SetOnChange(func(string, any) Pending { return Pending(done) })

	if err := s.Set("username", "grace"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := s.State().Save("username"); got != SaveSaving {
		t.Fatalf("status = %v, want saving", got)
	}

	done <- nil
	waitState(t, s, "saved", func(snap Snapshot) bool {
		return snap.Save("username") == SaveSaved
	})

	clock.Advance(DefaultSavedHold)
	waitState(t, s, "idle after hold", func(snap Snapshot) bool {
		return snap.Save("username") == SaveIdle
	})
}

func TestSaveError_StaysUntilNextWrite(t *testing.T) {
	s := testStore(t)

	first := true
	s.SetOnChange(func(string, any) Pending {
		if first {
			first = false
			return Fail(errors.New("disk full"))
		}
		return nil
	})

	if err := s.Set("username", "grace"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitState(t, s, "error state", func(snap Snapshot) bool {
		return snap.Save("username") == SaveError
	})

	// The error indicator is terminal until the next write. A
	// synchronous second write clears it straight to idle.
	if err := s.Set("username", "hopper"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitState(t, s, "idle after retry", func(snap Snapshot) bool {
		return snap.Save("username") == SaveIdle
	})
}

func TestSave_StaleSettlementDropped(t *testing.T) {
	clock := newManualClock()
	s := testStore(t, WithClock(clock))

	p1 := make(chan error, 1)
	p2 := make(chan error, 1)
	pendings := []chan error{p1, p2}
	s.SetOnChange(func(string, any) Pending {
		p := pendings[0]
		pendings = pendings[1:]
		return Pending(p)
	})

	if err := s.Set("username", "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("username", "second"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// The newer write settles first and wins.
	p2 <- nil
	waitState(t, s, "saved", func(snap Snapshot) bool {
		return snap.Save("username") == SaveSaved
	})

	// The stale settlement must not disturb the indicator.
	p1 <- errors.New("late failure")
	waitState(t, s, "stale drop", func(Snapshot) bool {
		return s.Stats().SavesSuperseded == 1
	})
	if got := s.State().Save("username"); got != SaveSaved {
		t.Errorf("status = %v, stale settlement leaked through", got)
	}
}

func TestSave_HoldRearmsPerWrite(t *testing.T) {
	clock := newManualClock()
	s := testStore(t, WithClock(clock))

	s.SetOnChange(func(string, any) Pending { return Done() })

	if err := s.Set("username", "first"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitState(t, s, "first saved", func(snap Snapshot) bool {
		return snap.Save("username") == SaveSaved
	})

	clock.Advance(DefaultSavedHold / 2)
	if err := s.Set("username", "second"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	waitState(t, s, "second saved", func(snap Snapshot) bool {
		return snap.Save("username") == SaveSaved && snap.Values["username"] == "second"
	})

	// The first write's hold expiry must not revert the second write's
	// indicator.
	clock.Advance(DefaultSavedHold / 2)
	if got := s.State().Save("username"); got != SaveSaved {
		t.Errorf("status = %v, old hold timer reverted the new save", got)
	}
	clock.Advance(DefaultSavedHold)
	waitState(t, s, "idle", func(snap Snapshot) bool {
		return snap.Save("username") == SaveIdle
	})
}

func TestConfirm_GatesWrite(t *testing.T) {
	s := testStore(t)
	applied := false
	s.SetOnChange(func(string, any) Pending {
		applied = true
		return nil
	})

	if err := s.Set("apiToken", "tok-123"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	snap := s.State()
	if snap.PendingConfirm == nil {
		t.Fatal("no pending confirmation")
	}
	if snap.PendingConfirm.Key != "apiToken" || !snap.PendingConfirm.Dangerous {
		t.Errorf("confirm = %+v", snap.PendingConfirm)
	}
	if _, ok := snap.Values["apiToken"]; ok {
		t.Error("value applied before confirmation")
	}
	if applied {
		t.Error("onChange ran before confirmation")
	}

	// Wrong typed text leaves the request pending.
	if s.ResolveConfirm(true, "replace") {
		t.Error("mismatched text accepted")
	}
	if s.State().PendingConfirm == nil {
		t.Fatal("mismatch cleared the pending confirmation")
	}

	if !s.ResolveConfirm(true, "REPLACE") {
		t.Fatal("exact text rejected")
	}
	snap = s.State()
	if snap.PendingConfirm != nil {
		t.Error("confirmation still pending after accept")
	}
	if snap.Values["apiToken"] != "tok-123" {
		t.Errorf("value = %v after confirm", snap.Values["apiToken"])
	}
	if !applied {
		t.Error("onChange did not run after confirm")
	}
}

func TestConfirm_CancelDiscards(t *testing.T) {
	s := testStore(t)
	if err := s.Set("region", "eu"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !s.ResolveConfirm(false, "") {
		t.Fatal("cancel returned false")
	}
	snap := s.State()
	if snap.PendingConfirm != nil {
		t.Error("confirmation still pending after cancel")
	}
	if _, ok := snap.Values["region"]; ok {
		t.Errorf("cancelled write applied: %v", snap.Values["region"])
	}
}

func TestConfirm_SupersedeCancelsPreviousOnce(t *testing.T) {
	s := testStore(t)

	cancels := 0
	sawIdleGap := false
	unsub := s.Subscribe(func(snap Snapshot) {
		if snap.PendingConfirm == nil {
			sawIdleGap = true
		}
	})
	defer unsub()

	cfg := schema.ConfirmConfig{Message: "Switch region?"}
	if _, err := s.RequestConfirm("region", "eu", cfg, false, nil, func() { cancels++ }); err != nil {
		t.Fatalf("RequestConfirm: %v", err)
	}
	if _, err := s.RequestConfirm("region", "us", cfg, false, nil, nil); err != nil {
		t.Fatalf("RequestConfirm: %v", err)
	}

	if cancels != 1 {
		t.Errorf("previous request cancelled %d times, want exactly once", cancels)
	}
	if sawIdleGap {
		t.Error("observed an idle gap between confirmation requests")
	}
	if got := s.State().PendingConfirm.Value; got != "us" {
		t.Errorf("pending value = %v, want the superseding request", got)
	}
}

func TestResolveConfirm_NoPending(t *testing.T) {
	s := testStore(t)
	if s.ResolveConfirm(true, "") {
		t.Error("resolve with no pending request returned true")
	}
}

func TestValidate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if got := s.Validate(ctx, "username"); got != "Username is required" {
		t.Errorf("sync failure = %q", got)
	}
	if got := s.State().Error("username"); got != "Username is required" {
		t.Errorf("recorded error = %q", got)
	}
	if got := s.Validate(ctx, "missing"); got != "" {
		t.Errorf("unknown key = %q, want clean", got)
	}
}

func TestValidate_HostValidator(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SetOnValidate(func(_ context.Context, key string, value any) (string, error) {
		if value == "taken" {
			return "Name already in use", nil
		}
		if value == "boom" {
			return "", errors.New("backend unreachable")
		}
		return "", nil
	})

	if got := s.ValidateValue(ctx, "username", "taken"); got != "Name already in use" {
		t.Errorf("host message = %q", got)
	}
	if got := s.ValidateValue(ctx, "username", "free"); got != "" {
		t.Errorf("clean value = %q", got)
	}
	// Validator failures surface as a generic message, never an error.
	if got := s.ValidateValue(ctx, "username", "boom"); got != "Validation failed" {
		t.Errorf("validator error = %q", got)
	}

	// Sync failure short-circuits the host validator.
	called := false
	s.SetOnValidate(func(context.Context, string, any) (string, error) {
		called = true
		return "", nil
	})
	if got := s.ValidateValue(ctx, "username", ""); got != "Username is required" {
		t.Errorf("sync failure = %q", got)
	}
	if called {
		t.Error("host validator ran despite sync failure")
	}
}

func TestValidate_SuppressedWhileConfirmPending(t *testing.T) {
	s := testStore(t)
	if err := s.Set("apiToken", "tok"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := s.Validate(context.Background(), "apiToken"); got != "" {
		t.Errorf("validate during pending confirm = %q, want suppressed", got)
	}
}

func TestInvoke(t *testing.T) {
	s := testStore(t)

	if err := s.Invoke("missing", nil); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("unknown key err = %v", err)
	}
	if err := s.Invoke("username", nil); !errors.Is(err, ErrNotAction) {
		t.Errorf("value key err = %v", err)
	}

	calls := 0
	s.SetOnAction(func(key string, payload any) Pending {
		calls++
		if key != "resetAll" || payload != "payload" {
			t.Errorf("handler got (%q, %v)", key, payload)
		}
		return nil
	})
	if err := s.Invoke("resetAll", "payload"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if calls != 1 {
		t.Errorf("handler ran %d times", calls)
	}
	if s.State().Loading("resetAll") {
		t.Error("sync action left loading set")
	}
}

func TestInvoke_AsyncLoadingAndReentrancy(t *testing.T) {
	s := testStore(t)

	calls := 0
	done := make(chan error, 1)
	s.SetOnAction(func(string, any) Pending {
		calls++
		return Pending(done)
	})

	if err := s.Invoke("resetAll", nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !s.State().Loading("resetAll") {
		t.Fatal("loading not set for async action")
	}

	// Reentrant invoke while in flight is ignored.
	if err := s.Invoke("resetAll", nil); err != nil {
		t.Fatalf("reentrant Invoke: %v", err)
	}
	if calls != 1 {
		t.Errorf("handler ran %d times during flight", calls)
	}
	if s.Stats().ActionsIgnored != 1 {
		t.Errorf("ignored count = %d", s.Stats().ActionsIgnored)
	}

	done <- nil
	waitState(t, s, "loading cleared", func(snap Snapshot) bool {
		return !snap.Loading("resetAll")
	})

	// After settlement the action can run again.
	done = make(chan error, 1)
	s.SetOnAction(func(string, any) Pending {
		calls++
		return Pending(done)
	})
	if err := s.Invoke("resetAll", nil); err != nil {
		t.Fatalf("Invoke after settle: %v", err)
	}
	if calls != 2 {
		t.Errorf("handler ran %d times total", calls)
	}
	done <- nil
}

func TestSetValues_NonNotifying_FlushCoalesces(t *testing.T) {
	s := testStore(t)

	notifies := 0
	unsub := s.Subscribe(func(Snapshot) { notifies++ })
	defer unsub()

	s.SetValues(map[string]any{"theme": "light"})
	s.SetValues(map[string]any{"theme": "light", "fontSize": 16})
	if notifies != 0 {
		t.Fatalf("SetValues notified %d times", notifies)
	}
	if got := s.State().Values["fontSize"]; got != 16 {
		t.Errorf("snapshot not refreshed, fontSize = %v", got)
	}

	s.Flush()
	if notifies != 1 {
		t.Errorf("Flush notified %d times, want 1", notifies)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := testStore(t)

	notifies := 0
	unsub := s.Subscribe(func(Snapshot) { notifies++ })
	if err := s.Set("theme", "light"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if notifies != 1 {
		t.Fatalf("notified %d times", notifies)
	}
	unsub()
	if err := s.Set("theme", "dark"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if notifies != 1 {
		t.Errorf("notified after unsubscribe")
	}
}

func TestSnapshot_Immutable(t *testing.T) {
	s := testStore(t)
	before := s.State()
	if err := s.Set("theme", "light"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if before.Values["theme"] != "dark" {
		t.Error("earlier snapshot mutated by later write")
	}
	after := s.State()
	if after.Version <= before.Version {
		t.Errorf("version did not advance: %d -> %d", before.Version, after.Version)
	}
}

func TestDestroy(t *testing.T) {
	s := testStore(t)

	done := make(chan error, 1)
	s.SetOnChange(func(string, any) Pending { return Pending(done) })
	if err := s.Set("username", "grace"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s.Destroy()
	if err := s.Set("theme", "light"); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Set after destroy = %v", err)
	}
	if err := s.Invoke("resetAll", nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Invoke after destroy = %v", err)
	}

	// A settlement arriving after destroy is a no-op, not a panic.
	done <- nil
	time.Sleep(10 * time.Millisecond)
	s.Destroy() // idempotent
}

func TestStats(t *testing.T) {
	s := testStore(t)
	s.SetOnChange(func(string, any) Pending { return nil })
	for i := 0; i < 3; i++ {
		if err := s.Set("theme", fmt.Sprintf("v%d", i)); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	st := s.Stats()
	if st.Sets != 3 || st.Applies != 3 {
		t.Errorf("stats = %+v", st)
	}
}
