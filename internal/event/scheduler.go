package event

import (
	"context"
	"time"
)

// Task is a scheduled callback that can be cancelled before it runs.
type Task interface {
	Cancel()
}

// Scheduler runs fn once after d. Implementations must invoke fn on the same
// goroutine that owns the state fn touches.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) Task
}

// Runner executes blocking work away from the dispatcher and hands the
// result back to it.
type Runner interface {
	Go(work func(ctx context.Context) error, done func(err error))
}

// InlineRunner completes work synchronously on the caller's goroutine.
type InlineRunner struct{}

func (InlineRunner) Go(work func(ctx context.Context) error, done func(err error)) {
	done(work(context.Background()))
}
