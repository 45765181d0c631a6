package snakebind

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestGateConcurrent tests that at most one goroutine holds the gate.
func TestGateConcurrent(t *testing.T) {
	g := newGate()

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	numGoroutines := 50
	numOps := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				if err := g.Acquire(context.Background()); err != nil {
					t.Errorf("Acquire: %v", err)
					return
				}
				cur := holders.Add(1)
				if cur > maxSeen.Load() {
					maxSeen.Store(cur)
				}
				holders.Add(-1)
				g.Release()
			}
		}()
	}

	wg.Wait()
	if got := maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent holders = %d, want 1", got)
	}
}

// TestGateTryAcquire tests that TryAcquire never blocks.
func TestGateTryAcquire(t *testing.T) {
	g := newGate()
	if !g.TryAcquire() {
		t.Fatal("TryAcquire on a free gate failed")
	}
	if g.TryAcquire() {
		t.Fatal("TryAcquire on a held gate succeeded")
	}
	g.Release()
	if !g.TryAcquire() {
		t.Fatal("TryAcquire after Release failed")
	}
	g.Release()
}

// TestGateAcquireTimeout tests that AcquireTimeout gives up on a held gate.
func TestGateAcquireTimeout(t *testing.T) {
	g := newGate()
	g.TryAcquire()

	start := time.Now()
	if g.AcquireTimeout(20 * time.Millisecond) {
		t.Fatal("AcquireTimeout on a held gate succeeded")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("AcquireTimeout returned after %v", elapsed)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Release()
	}()
	if !g.AcquireTimeout(5 * time.Second) {
		t.Fatal("AcquireTimeout did not see the release")
	}
	g.Release()
}

// TestGateAcquireCanceled tests that a waiting Acquire returns when the
// context is canceled.
func TestGateAcquireCanceled(t *testing.T) {
	g := newGate()
	g.TryAcquire()
	defer g.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Acquire(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Acquire() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not return after cancel")
	}
}

// TestGateReleaseUnheld tests that releasing a free gate panics.
func TestGateReleaseUnheld(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Release of a free gate did not panic")
		}
	}()
	newGate().Release()
}
