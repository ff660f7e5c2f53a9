package event

import (
	"context"
	"errors"
	"github.com/life-stream-dev/life-stream-go-coedit/internal/logger"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

var ErrLoopStopped = errors.New("event loop stopped")

// Loop is the single dispatcher. Every closure submitted to it runs to
// completion on one goroutine, in submission order, so the state those
// closures touch needs no further locking. Code running on the loop must
// never call Submit synchronously on a full queue; timers and Go already
// submit from their own goroutines.
type Loop struct {
	queue     chan func()
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	inflight  atomic.Int64
	opTimeout time.Duration

	// OnPanic, if set, is told about every recovered handler panic.
	OnPanic func(v any)
}

func NewLoop(queueSize int, opTimeout time.Duration) *Loop {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Loop{
		queue:     make(chan func(), queueSize),
		done:      make(chan struct{}),
		opTimeout: opTimeout,
	}
}

func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.queue:
			l.exec(fn)
		case <-l.done:
			l.drain()
			return
		}
	}
}

// drain runs whatever was queued before the loop stopped.
func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.queue:
			l.exec(fn)
		default:
			return
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if v := recover(); v != nil {
			logger.ErrorF("Event handler panicked: %v\n%s", v, debug.Stack())
			if l.OnPanic != nil {
				l.OnPanic(v)
			}
		}
	}()
	fn()
}

// Submit enqueues fn. It blocks while the queue is full and reports false
// once the loop has stopped.
func (l *Loop) Submit(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

type loopTask struct {
	timer    *time.Timer
	canceled atomic.Bool
}

func (t *loopTask) Cancel() {
	t.canceled.Store(true)
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Schedule arms a wall-clock timer whose callback is executed on the loop.
// A task cancelled after the timer fired but before the loop reached it is
// still skipped.
func (l *Loop) Schedule(d time.Duration, fn func()) Task {
	t := &loopTask{}
	t.timer = time.AfterFunc(d, func() {
		l.Submit(func() {
			if t.canceled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Go runs work on its own goroutine bounded by the loop's operation timeout,
// then delivers the result to done on the loop.
func (l *Loop) Go(work func(ctx context.Context) error, done func(err error)) {
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Add(-1)
		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if l.opTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, l.opTimeout)
		}
		err := func() (err error) {
			defer func() {
				if v := recover(); v != nil {
					logger.ErrorF("Background work panicked: %v", v)
					err = errors.New("background work panicked")
				}
			}()
			return work(ctx)
		}()
		cancel()
		if !l.Submit(func() { done(err) }) {
			logger.DebugF("Dropping background result, %v", ErrLoopStopped)
		}
	}()
}

// Invoke stops the loop; it satisfies Callable for the Cleaner. Work started
// with Go is awaited first, within ctx, so its completion still runs on the
// loop. Timers that have not fired are dropped.
func (l *Loop) Invoke(ctx context.Context) error {
	if err := l.awaitInflight(ctx); err != nil {
		logger.WarnF("Stopping loop with background work still running: %v", err)
	}
	l.stopOnce.Do(func() { close(l.done) })
	return wait(ctx, &l.wg)
}

func (l *Loop) awaitInflight(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for l.inflight.Load() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
