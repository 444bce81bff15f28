package configwatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBridgeRunsJobsSerially(t *testing.T) {
	bridge := NewBridge(BridgeOptions{})
	defer bridge.Close()

	var active atomic.Int32
	var maxActive atomic.Int32
	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			err := bridge.Run(context.Background(), "job", func(context.Context) error {
				current := active.Add(1)
				for {
					seen := maxActive.Load()
					if current <= seen || maxActive.CompareAndSwap(seen, current) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				order = append(order, index)
				mu.Unlock()
				active.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("run: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Fatalf("expected one job at a time, saw %d", maxActive.Load())
	}
	if len(order) != 8 {
		t.Fatalf("expected 8 jobs, got %d", len(order))
	}
}

func TestBridgeRunWaitsForSideEffects(t *testing.T) {
	bridge := NewBridge(BridgeOptions{})
	defer bridge.Close()

	done := false
	if err := bridge.Run(context.Background(), "job", func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		done = true
		return nil
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !done {
		t.Fatal("expected Run to return after the job finished")
	}
}

func TestBridgeReturnsJobError(t *testing.T) {
	bridge := NewBridge(BridgeOptions{})
	defer bridge.Close()

	want := errors.New("render failed")
	if err := bridge.Run(context.Background(), "job", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected job error, got %v", err)
	}
}

func TestBridgeRecoversPanics(t *testing.T) {
	bridge := NewBridge(BridgeOptions{})
	defer bridge.Close()

	if err := bridge.Run(context.Background(), "job", func(context.Context) error { panic("boom") }); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if err := bridge.Run(context.Background(), "after", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected worker to survive panic, got %v", err)
	}
}

func TestBridgeAppliesTimeout(t *testing.T) {
	bridge := NewBridge(BridgeOptions{Timeout: 20 * time.Millisecond})
	defer bridge.Close()

	err := bridge.Run(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBridgeCloseFailsQueuedJobs(t *testing.T) {
	bridge := NewBridge(BridgeOptions{QueueSize: 4})

	started := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		first <- bridge.Run(context.Background(), "blocking", func(ctx context.Context) error {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return ctx.Err()
		})
	}()
	<-started

	queued := make(chan error, 1)
	go func() {
		queued <- bridge.Run(context.Background(), "queued", func(context.Context) error { return nil })
	}()
	deadline := time.Now().Add(time.Second)
	for bridge.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for queued job")
		}
		time.Sleep(time.Millisecond)
	}

	if err := bridge.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected in-flight job to be cancelled, got %v", err)
	}
	if err := <-queued; !errors.Is(err, ErrBridgeClosed) {
		t.Fatalf("expected ErrBridgeClosed for queued job, got %v", err)
	}
	if err := bridge.Run(context.Background(), "late", func(context.Context) error { return nil }); !errors.Is(err, ErrBridgeClosed) {
		t.Fatalf("expected ErrBridgeClosed after close, got %v", err)
	}
	close(release)
}

func TestBridgeRunHonorsCallerContextWhileQueueFull(t *testing.T) {
	bridge := NewBridge(BridgeOptions{QueueSize: 1})
	defer bridge.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	go bridge.Run(context.Background(), "blocking", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started
	go bridge.Run(context.Background(), "filler", func(context.Context) error { return nil })
	deadline := time.Now().Add(time.Second)
	for bridge.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for queue to fill")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bridge.Run(ctx, "blocked", func(context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
	close(release)
}
