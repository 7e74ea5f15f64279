package store

import "time"

// Timer is a stoppable pending callback, matching *time.Timer.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred callbacks. The default implementation wraps
// time.AfterFunc; tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
