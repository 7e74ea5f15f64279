package script

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// ErrEngineClosed is returned when attempting to use a closed engine.
var ErrEngineClosed = errors.New("script engine is closed")

// call represents one Lua operation queued for the executor goroutine.
type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// executor serializes all Lua operations through a single goroutine.
// gopher-lua's LState is not goroutine-safe; every operation must run on
// the goroutine that owns the state.
type executor struct {
	L      *lua.LState
	queue  chan *call
	closed atomic.Bool
	done   chan struct{}

	closeOnce sync.Once
}

func newExecutor(L *lua.LState, queueSize int) *executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &executor{
		L:     L,
		queue: make(chan *call, queueSize),
		done:  make(chan struct{}),
	}
}

// run processes queued operations until the context is cancelled or the
// executor is closed. Must be the only goroutine touching the LState.
func (e *executor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.drain(ctx.Err())
			return
		case <-e.done:
			e.drain(ErrEngineClosed)
			return
		case c, ok := <-e.queue:
			if !ok {
				return
			}
			err := e.runCall(c)
			select {
			case c.result <- err:
			default:
			}
			close(c.result)
		}
	}
}

// runCall executes one operation with panic recovery.
func (e *executor) runCall(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			case string:
				err = errors.New(v)
			default:
				err = errors.New("lua panic")
			}
		}
	}()
	return c.fn(e.L)
}

func (e *executor) drain(err error) {
	for {
		select {
		case c, ok := <-e.queue:
			if !ok {
				return
			}
			select {
			case c.result <- err:
			default:
			}
			close(c.result)
		default:
			return
		}
	}
}

// execute runs a Lua operation and blocks until it completes or the
// context is cancelled.
func (e *executor) execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		// The call stays queued and will run, but we stop waiting.
		return ctx.Err()
	case err, ok := <-c.result:
		if !ok {
			return ErrEngineClosed
		}
		return err
	}
}

func (e *executor) close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}
