package playback

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Dispatcher runs callbacks one at a time on the controller's goroutine.
type Dispatcher interface {
	Post(fn func())
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer.
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

const defaultLoopQueue = 64

// Loop is a single-goroutine Dispatcher. Callbacks posted before Run starts
// are queued; callbacks posted after the loop stopped are dropped. Post never
// blocks, so callbacks and event sources holding their own locks may post
// freely.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
	log     hclog.Logger
}

// NewLoop creates a loop with room for size pending callbacks before the
// queue grows.
func NewLoop(size int, log hclog.Logger) *Loop {
	if size <= 0 {
		size = defaultLoopQueue
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Loop{
		pending: make([]func(), 0, size),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     log,
	}
}

// Post enqueues fn.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.stopped.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.pending = nil
		l.mu.Unlock()
		close(l.done)
	})
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			if ctx.Err() != nil {
				return
			}
			l.invoke(fn)
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return nil, false
	}
	fn := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	return fn, true
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("dispatcher callback panicked", "panic", r)
		}
	}()
	fn()
}
