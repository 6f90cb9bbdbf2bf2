// Package worker runs the single-threaded executor that owns ticket state,
// plus the background wiring around it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrLoopStopped is returned for work submitted after Stop.
var ErrLoopStopped = errors.New("event loop stopped")

type loopKey struct{}

type task struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// EventLoop executes submitted closures one at a time on a single goroutine.
// State touched only from inside Do needs no further locking.
type EventLoop struct {
	tasks    chan task
	done     chan struct{}
	finished chan struct{}
	logger   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewEventLoop creates a loop with the given queue depth.
func NewEventLoop(logger *zap.Logger, queue int) *EventLoop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue < 0 {
		queue = 0
	}
	return &EventLoop{
		tasks:    make(chan task, queue),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		logger:   logger,
	}
}

// Start launches the loop goroutine. Calling it twice is a no-op.
func (l *EventLoop) Start() {
	l.startOnce.Do(func() {
		go l.run()
	})
}

// Stop ends the loop after the task in progress and waits for it to exit.
// Queued tasks that have not started fail with ErrLoopStopped.
func (l *EventLoop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
	l.startOnce.Do(func() { close(l.finished) })
	<-l.finished
}

// InLoop reports whether ctx belongs to a task running on this loop.
func (l *EventLoop) InLoop(ctx context.Context) bool {
	owner, _ := ctx.Value(loopKey{}).(*EventLoop)
	return owner == l
}

// Do runs fn on the loop and returns its error. Calls made from inside a loop
// task run inline.
func (l *EventLoop) Do(ctx context.Context, fn func(context.Context) error) error {
	if l.InLoop(ctx) {
		return fn(ctx)
	}
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	t := task{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case l.tasks <- t:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-t.result:
		return err
	case <-l.finished:
		select {
		case err := <-t.result:
			return err
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *EventLoop) run() {
	defer close(l.finished)
	for {
		select {
		case <-l.done:
			l.drain()
			return
		case t := <-l.tasks:
			t.result <- l.exec(t)
		}
	}
}

func (l *EventLoop) drain() {
	for {
		select {
		case t := <-l.tasks:
			t.result <- ErrLoopStopped
		default:
			return
		}
	}
}

func (l *EventLoop) exec(t task) (err error) {
	if cerr := t.ctx.Err(); cerr != nil {
		return cerr
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("event loop task panicked: %v", r)
		}
	}()
	return t.fn(context.WithValue(t.ctx, loopKey{}, l))
}
