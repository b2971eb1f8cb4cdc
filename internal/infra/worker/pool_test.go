//go:build !integration

package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"tcross-assistant/internal/infra/logging"
	"tcross-assistant/internal/infra/worker"
)

func TestPool_RunsTasks(t *testing.T) {
	p := worker.NewPool(3, 16, logging.Nop())
	p.Start(context.Background())

	var done int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&done, 1)
			if atomic.LoadInt32(&done) == 5 {
				panic("boom")
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
	p.Stop()
	if done != 10 {
		t.Fatalf("done = %d", done)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, worker.ErrStopped) {
		t.Fatalf("submit after stop = %v", err)
	}
	p.Stop() // idempotent
}

func TestPool_RefusesWhenSaturated(t *testing.T) {
	p := worker.NewPool(1, 1, logging.Nop())
	// not started: the single queue slot fills up
	if err := p.Submit(func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, worker.ErrQueueFull) {
		t.Fatalf("err = %v", err)
	}
	if err := p.Submit(nil); err == nil {
		t.Fatal("nil task accepted")
	}
}
