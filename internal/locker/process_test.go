package locker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestProcess_MutualExclusionPerOrder(t *testing.T) {
	t.Parallel()

	p := NewProcess()
	ctx := context.Background()

	const workers = 16
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Lock(ctx, "order-1")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			defer release()

			// Без блокировки инкремент был бы гонкой.
			current := counter
			time.Sleep(time.Millisecond)
			counter = current + 1
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("lost updates under lock: got=%d want=%d", counter, workers)
	}
}

func TestProcess_IndependentOrdersDoNotBlock(t *testing.T) {
	t.Parallel()

	p := NewProcess()
	ctx := context.Background()

	releaseA, err := p.Lock(ctx, "order-a")
	if err != nil {
		t.Fatalf("lock order-a: %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := p.Lock(ctx, "order-b")
		if err != nil {
			t.Errorf("lock order-b: %v", err)
			return
		}
		releaseB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different order blocked")
	}
}

func TestProcess_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	p := NewProcess()
	release, err := p.Lock(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	release()
	release() // повторное освобождение не должно паниковать

	again, err := p.Lock(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}
