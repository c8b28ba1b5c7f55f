package executor

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTasksRunInOrder(t *testing.T) {
	t.Parallel()

	e := New("test", 0)
	defer func() { e.Stop(); e.Join() }()

	var got []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		e.Begin(func() { got = append(got, i) })
	}
	e.Begin(func() { close(done) })
	<-done

	for i, v := range got {
		if v != i {
			t.Fatalf("order: got %v", got)
		}
	}
}

func TestInvokeReturnsValue(t *testing.T) {
	t.Parallel()

	e := New("test", 0)
	defer func() { e.Stop(); e.Join() }()

	v, ok := <-Invoke(e, func() int { return 42 })
	if !ok || v != 42 {
		t.Fatalf("Invoke: got %d %v, want 42 true", v, ok)
	}
}

func TestInvokeAfterStopClosesFuture(t *testing.T) {
	t.Parallel()

	e := New("test", 0)
	e.Stop()
	e.Join()

	if _, ok := <-Invoke(e, func() int { return 1 }); ok {
		t.Error("future after Stop should be closed without a value")
	}
}

func TestStopDrainsAcceptedTasks(t *testing.T) {
	t.Parallel()

	e := New("test", 16)
	var ran atomic.Int32
	for i := 0; i < 8; i++ {
		e.Begin(func() { ran.Add(1) })
	}
	e.Stop()
	e.Join()

	if got := ran.Load(); got != 8 {
		t.Errorf("drained tasks: got %d, want 8", got)
	}
	if e.Begin(func() {}) {
		t.Error("Begin after Stop should report false")
	}
}

func TestTryBeginFullQueue(t *testing.T) {
	t.Parallel()

	e := New("test", 1)
	defer func() { e.Stop(); e.Join() }()

	block := make(chan struct{})
	e.Begin(func() { <-block })

	// Fill the queue while the worker is blocked on the first task.
	for !e.TryBegin(func() {}) {
		time.Sleep(time.Millisecond)
	}
	if e.TryBegin(func() {}) {
		t.Error("TryBegin should refuse when the queue is full")
	}
	close(block)
}
