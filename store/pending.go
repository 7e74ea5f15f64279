package store

import "context"

// Pending is the handle for an asynchronous host operation. The host
// returns nil for work that completed synchronously, or a channel that
// yields exactly one error (nil on success) when the operation settles.
type Pending <-chan error

// Async runs fn on its own goroutine and returns a Pending that settles
// with fn's result.
func Async(fn func() error) Pending {
	ch := make(chan error, 1)
	go func() {
		ch <- fn()
	}()
	return ch
}

// Done returns an already-settled successful Pending.
func Done() Pending {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}

// Fail returns an already-settled failed Pending.
func Fail(err error) Pending {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// ChangeFunc is the host write callback. A nil Pending means the write
// completed synchronously; a non-nil Pending starts save tracking.
type ChangeFunc func(key string, value any) Pending

// ActionFunc is the host action handler. A nil Pending means the action
// completed synchronously with no loading transition.
type ActionFunc func(key string, payload any) Pending

// ValidateFunc is the host's custom validator for a key. It may block on
// I/O; it returns the validation message ("" passes) or an error for a
// validator failure, which is logged and surfaced as a generic message.
type ValidateFunc func(ctx context.Context, key string, value any) (string, error)
