// Package script runs Lua validators and action handlers for a settings
// panel. One sandboxed Lua state serves all scripts; operations are
// serialized through an executor goroutine, so validator and action
// callbacks built here are safe to call from any goroutine.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/settle/logging"
	"github.com/dshills/settle/store"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine owns a sandboxed Lua state and builds store callbacks out of
// global Lua functions.
type Engine struct {
	L      *lua.LState
	exec   *executor
	logger *logging.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewEngine creates a sandboxed engine and starts its executor.
func NewEngine(opts ...Option) *Engine {
	L := lua.NewState()
	applySandbox(L)

	e := &Engine{
		L:      L,
		exec:   newExecutor(L, 64),
		logger: logging.Null,
	}
	for _, opt := range opts {
		opt(e)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.exec.run(ctx)
	}()
	return e
}

// Load executes a script, typically to register validator and action
// functions as globals.
func (e *Engine) Load(source string) error {
	return e.exec.execute(context.Background(), func(L *lua.LState) error {
		return L.DoString(source)
	})
}

// LoadFile reads and executes a script file.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading script %s: %w", path, err)
	}
	if err := e.Load(string(data)); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}
	return nil
}

// Has reports whether a global Lua function with the given name exists.
func (e *Engine) Has(name string) bool {
	found := false
	_ = e.exec.execute(context.Background(), func(L *lua.LState) error {
		found = L.GetGlobal(name).Type() == lua.LTFunction
		return nil
	})
	return found
}

// Validator builds a store validator from the named Lua function. The
// function receives (key, value) and returns a message string to fail,
// or nil/"" to pass; returning false fails with a generic message.
func (e *Engine) Validator(name string) store.ValidateFunc {
	return func(ctx context.Context, key string, value any) (string, error) {
		var msg string
		err := e.exec.execute(ctx, func(L *lua.LState) error {
			fn := L.GetGlobal(name)
			if fn.Type() != lua.LTFunction {
				return fmt.Errorf("lua validator %s is not a function", name)
			}
			L.Push(fn)
			L.Push(lua.LString(key))
			L.Push(toLua(L, value))
			if err := L.PCall(2, 1, nil); err != nil {
				return fmt.Errorf("lua validator %s: %w", name, err)
			}
			ret := L.Get(-1)
			L.Pop(1)
			switch v := ret.(type) {
			case lua.LString:
				msg = string(v)
			case lua.LBool:
				if !bool(v) {
					msg = "Invalid value"
				}
			}
			return nil
		})
		return msg, err
	}
}

// Action builds a store action handler from the named Lua function. The
// function receives (key, payload); returning a non-empty string marks
// the action failed with that message.
func (e *Engine) Action(name string) store.ActionFunc {
	return func(key string, payload any) store.Pending {
		return store.Async(func() error {
			return e.exec.execute(context.Background(), func(L *lua.LState) error {
				fn := L.GetGlobal(name)
				if fn.Type() != lua.LTFunction {
					return fmt.Errorf("lua action %s is not a function", name)
				}
				L.Push(fn)
				L.Push(lua.LString(key))
				L.Push(toLua(L, payload))
				if err := L.PCall(2, 1, nil); err != nil {
					return fmt.Errorf("lua action %s: %w", name, err)
				}
				ret := L.Get(-1)
				L.Pop(1)
				if s, ok := ret.(lua.LString); ok && string(s) != "" {
					return errors.New(string(s))
				}
				return nil
			})
		})
	}
}

// Close shuts the engine down. Close is idempotent; operations after
// Close return ErrEngineClosed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.exec.close()
		e.cancel()
		e.wg.Wait()
		e.L.Close()
	})
}
