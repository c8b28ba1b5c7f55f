// Package executor provides the per-channel single-threaded command executor:
// one goroutine owning a bounded task queue through which all mutations of a
// channel's state are serialized. Futures returned from Invoke are completion
// signals, not async chains.
package executor

import (
	"sync"
)

// DefaultCapacity bounds the task queue when the caller does not. Command
// traffic is light (operator actions plus one self-rescheduled tick), so this
// mostly guards against a stuck worker.
const DefaultCapacity = 512

// Executor runs queued tasks on a single goroutine in submission order.
type Executor struct {
	name string

	mu      sync.RWMutex
	stopped bool

	tasks    chan func()
	stopping chan struct{}
	done     chan struct{}
}

// New creates and starts an executor. name is used by String for log lines.
// capacity <= 0 selects DefaultCapacity.
func New(name string, capacity int) *Executor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	e := &Executor{
		name:     name,
		tasks:    make(chan func(), capacity),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		select {
		case <-e.stopping:
			// Drain what was accepted before the stop, then exit.
			for {
				select {
				case fn := <-e.tasks:
					fn()
				default:
					return
				}
			}
		case fn := <-e.tasks:
			fn()
		}
	}
}

// Begin enqueues fn, blocking while the queue is full. It reports false if
// the executor has stopped, in which case fn never runs.
func (e *Executor) Begin(fn func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}
	e.tasks <- fn
	return true
}

// TryBegin enqueues fn without blocking. It reports false if the queue is
// full or the executor has stopped.
func (e *Executor) TryBegin(fn func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.tasks <- fn:
		return true
	default:
		return false
	}
}

// Len returns the number of queued tasks.
func (e *Executor) Len() int { return len(e.tasks) }

// Cap returns the queue capacity.
func (e *Executor) Cap() int { return cap(e.tasks) }

// Stop refuses further tasks. Already-accepted tasks still run; use Join to
// wait for them.
func (e *Executor) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	close(e.stopping)
}

// Join blocks until the worker goroutine has drained and exited.
func (e *Executor) Join() { <-e.done }

func (e *Executor) String() string { return "executor[" + e.name + "]" }

// Invoke runs fn on the executor and returns a single-use future. The
// channel yields fn's result, or closes without a value if the executor has
// stopped.
func Invoke[T any](e *Executor, fn func() T) <-chan T {
	ch := make(chan T, 1)
	ok := e.Begin(func() {
		ch <- fn()
		close(ch)
	})
	if !ok {
		close(ch)
	}
	return ch
}
