// Package loop provides the single cooperative event loop that owns all
// shared lazy-image state. Work from other goroutines (timers, fetch workers,
// image loaders, HTTP handlers) reaches that state only by posting tasks.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/timmy/lazyimg/internal/logger"
)

var (
	// ErrLoopStopped is returned when posting to a loop that has exited.
	ErrLoopStopped = errors.New("loop: stopped")

	// ErrLoopRunning is returned when Run is called twice.
	ErrLoopRunning = errors.New("loop: already running")
)

// Loop runs posted tasks one at a time, in FIFO order, on a single goroutine.
//
// The queue is unbounded so Post never blocks: a task may post follow-up
// tasks, and worker goroutines may post completions, without deadlocking.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running bool
	stopped bool
	done    chan struct{}

	log *logger.Logger
}

// New creates a loop. It does nothing until Run is called.
func New(log *logger.Logger) *Loop {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log.WithComponent("loop"),
	}
}

// Run services the queue until ctx is done. Tasks still queued at that point
// are dropped.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.safeExecute(task)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

// Post enqueues fn. Safe to call from any goroutine, including the loop itself.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the loop and waits for it to finish.
// Must not be called from the loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// The task may have run right before exit.
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// safeExecute keeps the loop alive when a task panics.
func (l *Loop) safeExecute(task func()) {
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.log.WithField("panic", r).Error("Loop task panicked")
		}
	}()
	task()
}

// Timer is a cancellable one-shot loop timer.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented fn from running.
	Stop() bool
}

type loopTimer struct {
	t         *time.Timer
	cancelled bool // loop-owned
	fired     bool // loop-owned
}

// Stop must be called from the loop goroutine. A timer whose wakeup is
// already queued on the loop is still prevented from running.
func (t *loopTimer) Stop() bool {
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	t.t.Stop()
	return true
}

// AfterFunc runs fn on the loop after d. The returned timer must only be
// stopped from the loop goroutine.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		_ = l.Post(func() {
			if lt.cancelled {
				return
			}
			lt.fired = true
			fn()
		})
	})
	return lt
}
