package handle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rybkr/blobrepo/internal/errs"
)

func TestLatchWaitBeforeFire(t *testing.T) {
	l := NewLatch[int]()

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Wait(context.Background())
			if err != nil {
				t.Errorf("waiter %d: unexpected error %v", i, err)
			}
			results[i] = v
		}(i)
	}

	time.Sleep(10 * time.Millisecond) // let waiters block
	if err := l.Fire(42, nil); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	wg.Wait()

	for i, v := range results {
		if v != 42 {
			t.Errorf("waiter %d: got %d, want 42", i, v)
		}
	}
}

func TestLatchWaitAfterFire(t *testing.T) {
	l := NewLatch[string]()
	if err := l.Fire("done", nil); err != nil {
		t.Fatal(err)
	}

	v, err := l.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "done" {
		t.Errorf("got %q, want %q", v, "done")
	}
}

func TestLatchFireCarriesError(t *testing.T) {
	l := NewLatch[int]()
	boom := errors.New("boom")
	if err := l.Fire(0, boom); err != nil {
		t.Fatal(err)
	}

	_, err := l.Wait(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want %v", err, boom)
	}
}

func TestLatchDoubleFireFails(t *testing.T) {
	l := NewLatch[int]()
	if err := l.Fire(1, nil); err != nil {
		t.Fatal(err)
	}
	if err := l.Fire(2, nil); !errors.Is(err, errs.ErrLatchAlreadyFired) {
		t.Fatalf("expected ErrLatchAlreadyFired, got %v", err)
	}

	v, _ := l.Wait(context.Background())
	if v != 1 {
		t.Errorf("second Fire must not alter the value: got %d", v)
	}
}

func TestLatchConcurrentFireOnlyOneWins(t *testing.T) {
	l := NewLatch[int]()
	var wg sync.WaitGroup
	successes := make(chan int, 8)
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Fire(i, nil); err == nil {
				successes <- i
			}
		}(i)
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	if count != 1 {
		t.Errorf("expected exactly one successful Fire, got %d", count)
	}
}

func TestLatchWaitRespectsContextCancellation(t *testing.T) {
	l := NewLatch[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := l.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}

func TestLatchFired(t *testing.T) {
	l := NewLatch[int]()
	if l.Fired() {
		t.Fatal("expected unfired latch to report Fired() == false")
	}
	if err := l.Fire(1, nil); err != nil {
		t.Fatal(err)
	}
	if !l.Fired() {
		t.Fatal("expected fired latch to report Fired() == true")
	}
}
