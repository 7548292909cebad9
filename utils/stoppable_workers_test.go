package utils

import (
	"context"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestStoppableWorkers(t *testing.T) {
	var running atomic.Int32
	started := make(chan struct{}, 2)
	worker := func(ctx context.Context) {
		running.Add(1)
		started <- struct{}{}
		<-ctx.Done()
		running.Add(-1)
	}

	sw := NewStoppableWorkers(worker, worker)
	<-started
	<-started
	test.That(t, running.Load(), test.ShouldEqual, int32(2))

	sw.Stop()
	test.That(t, running.Load(), test.ShouldEqual, int32(0))
	test.That(t, sw.Context().Err(), test.ShouldNotBeNil)

	// Adding after Stop is a no-op.
	sw.AddWorkers(worker)
	test.That(t, running.Load(), test.ShouldEqual, int32(0))
}

func TestStoppableWorkersParentContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	sw := NewStoppableWorkersWithContext(parent, func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})
	cancel()
	<-done
	sw.Stop()
}

func TestStoppableWorkersPanic(t *testing.T) {
	sw := NewStoppableWorkers(func(ctx context.Context) {
		panic("worker failed")
	})
	// Stop must not hang on a worker that panicked.
	sw.Stop()
}
