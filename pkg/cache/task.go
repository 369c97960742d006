package cache

import (
	"context"
	"sync"
)

// SharedTask is the single-flight rendezvous stored in an AC record.
// It is created under the cache mutex, started at most once by the first
// awaiter, and runs outside the mutex. All concurrent awaiters share the
// one execution and its result.
type SharedTask struct {
	once sync.Once
	run  func() (any, error)
	done chan struct{}
	val  any
	err  error
}

// NewSharedTask wraps a computation. run captures its own resolution
// context; it must not take the cache mutex at construction time.
func NewSharedTask(run func() (any, error)) *SharedTask {
	return &SharedTask{run: run, done: make(chan struct{})}
}

// Completed wraps an already-available value in a task that is already
// done.
func Completed(v any) *SharedTask {
	t := &SharedTask{done: make(chan struct{}), val: v}
	close(t.done)
	t.once.Do(func() {})
	return t
}

func (t *SharedTask) start() {
	t.once.Do(func() {
		go func() {
			t.val, t.err = t.run()
			close(t.done)
		}()
	})
}

// Await starts the task if no one has yet, then waits for the shared
// result. A cancelled context abandons the wait only; the computation
// keeps running for the other awaiters.
func (t *SharedTask) Await(ctx context.Context) (any, error) {
	t.start()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.val, t.err
	}
}

// Done reports whether the task has finished.
func (t *SharedTask) Done() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
