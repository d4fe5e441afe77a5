// Package mainloop provides the single coordinating context of the account
// core: one goroutine runs every state transition, blocking I/O runs on spawned
// goroutines and re-enters the loop to publish its result.
package mainloop

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrClosed is returned by Do and Idle after Close.
var ErrClosed = errors.New("mainloop: closed")

const idlePoll = time.Millisecond

// Poster is the part of Loop that state owners need to re-enter the loop.
type Poster interface {
	Post(fn func())
	Spawn(fn func(ctx context.Context))
}

// Loop serializes closures on one goroutine.
type Loop struct {
	log *zap.Logger

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool

	inflight atomic.Int64
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// New starts a loop. Close must be called to stop it.
func New(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		log:    log,
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

// Context is cancelled when the loop closes; spawned work derives from it.
func (l *Loop) Context() context.Context { return l.ctx }

// Post enqueues fn without blocking. Posts after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to finish. Calling Do from a
// closure already running on the loop deadlocks unless ctx ends; use Post there.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Spawn runs blocking work off the loop. The work receives the loop context.
func (l *Loop) Spawn(fn func(ctx context.Context)) {
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Add(-1)
		fn(l.ctx)
	}()
}

// Idle waits until no spawned work is running and the queue is drained.
func (l *Loop) Idle(ctx context.Context) error {
	for {
		var idle bool
		err := l.Do(ctx, func() {
			l.mu.Lock()
			pending := len(l.queue)
			l.mu.Unlock()
			idle = pending == 0 && l.inflight.Load() == 0
		})
		if err != nil {
			return err
		}
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrClosed
		case <-time.After(idlePoll):
		}
	}
}

// Close stops the loop after the closure currently running and cancels the
// context handed to spawned work. Queued closures are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.queue = nil
	l.mu.Unlock()

	l.cancel()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("panic in loop task",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	fn()
}
