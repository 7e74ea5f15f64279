package script

import (
	"context"
	"strings"
	"sync"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	t.Cleanup(e.Close)
	return e
}

func TestEngine_Validator(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Load(`
		function check_port(key, value)
			if value < 1 or value > 65535 then
				return "Port must be between 1 and 65535"
			end
		end
	`); err != nil {
		t.Fatalf("Load: %v", err)
	}

	validate := e.Validator("check_port")
	ctx := context.Background()

	msg, err := validate(ctx, "server.port", 8080)
	if err != nil || msg != "" {
		t.Errorf("valid port: msg=%q err=%v", msg, err)
	}

	msg, err = validate(ctx, "server.port", 70000)
	if err != nil {
		t.Fatalf("invalid port: %v", err)
	}
	if msg != "Port must be between 1 and 65535" {
		t.Errorf("msg = %q", msg)
	}
}

func TestEngine_Validator_BoolResult(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Load(`function always_no(key, value) return false end`); err != nil {
		t.Fatalf("Load: %v", err)
	}
	msg, err := e.Validator("always_no")(context.Background(), "k", "v")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if msg != "Invalid value" {
		t.Errorf("msg = %q", msg)
	}
}

func TestEngine_Validator_Missing(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Validator("nope")(context.Background(), "k", "v")
	if err == nil || !strings.Contains(err.Error(), "not a function") {
		t.Errorf("err = %v", err)
	}
}

func TestEngine_Validator_RuntimeError(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Load(`function boom(key, value) error("kaput") end`); err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err := e.Validator("boom")(context.Background(), "k", "v")
	if err == nil || !strings.Contains(err.Error(), "kaput") {
		t.Errorf("err = %v", err)
	}
}

func TestEngine_Action(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Load(`
		invocations = 0
		function clear_cache(key, payload)
			invocations = invocations + 1
			if payload == "fail" then
				return "cache backend offline"
			end
		end
	`); err != nil {
		t.Fatalf("Load: %v", err)
	}

	action := e.Action("clear_cache")

	if err := <-action("cache.clear", nil); err != nil {
		t.Errorf("action: %v", err)
	}
	err := <-action("cache.clear", "fail")
	if err == nil || err.Error() != "cache backend offline" {
		t.Errorf("failed action err = %v", err)
	}
}

func TestEngine_TableArguments(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Load(`
		function check_tags(key, value)
			if #value > 3 then
				return "Too many tags"
			end
		end
	`); err != nil {
		t.Fatalf("Load: %v", err)
	}

	validate := e.Validator("check_tags")
	ctx := context.Background()

	if msg, err := validate(ctx, "tags", []any{"a", "b"}); err != nil || msg != "" {
		t.Errorf("short list: msg=%q err=%v", msg, err)
	}
	msg, err := validate(ctx, "tags", []any{"a", "b", "c", "d"})
	if err != nil || msg != "Too many tags" {
		t.Errorf("long list: msg=%q err=%v", msg, err)
	}
}

func TestEngine_Sandbox(t *testing.T) {
	e := newTestEngine(t)
	for _, src := range []string{
		`assert(os == nil, "os is reachable")`,
		`assert(io == nil, "io is reachable")`,
		`assert(dofile == nil, "dofile is reachable")`,
		`assert(load == nil, "load is reachable")`,
	} {
		if err := e.Load(src); err != nil {
			t.Errorf("%s: %v", src, err)
		}
	}
	// The pure stdlib stays available.
	if err := e.Load(`assert(string.upper("ok") == "OK")`); err != nil {
		t.Errorf("string library: %v", err)
	}
}

func TestEngine_SerializedAccess(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Load(`
		counter = 0
		function bump(key, value)
			counter = counter + 1
		end
		function read(key, value)
			if counter ~= 50 then
				return "counter is " .. counter
			end
		end
	`); err != nil {
		t.Fatalf("Load: %v", err)
	}

	bump := e.Validator("bump")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := bump(context.Background(), "k", nil); err != nil {
				t.Errorf("bump: %v", err)
			}
		}()
	}
	wg.Wait()

	msg, err := e.Validator("read")(context.Background(), "k", nil)
	if err != nil || msg != "" {
		t.Errorf("counter check: msg=%q err=%v", msg, err)
	}
}

func TestEngine_Has(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Load(`function present() end`); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !e.Has("present") {
		t.Error("Has(present) = false")
	}
	if e.Has("absent") {
		t.Error("Has(absent) = true")
	}
}

func TestEngine_Close(t *testing.T) {
	e := NewEngine()
	e.Close()
	e.Close() // idempotent
	if err := e.Load(`x = 1`); err != ErrEngineClosed {
		t.Errorf("Load after Close = %v", err)
	}
}
