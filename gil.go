package snakebind

import (
	"context"
	"time"
)

// gate is the process-side half of the GIL: a binary semaphore that
// serializes every interpreter-touching operation of one Interpreter.
// The native GIL is taken after the gate, so at most one goroutine ever
// waits on it.
//
// Acquire blocks until the gate can be taken, TryAcquire never blocks and
// AcquireTimeout gives up after d. Release must be called exactly once per
// successful acquisition.
type gate struct {
	ch chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{}, 1)}
}

func (g *gate) Acquire(ctx context.Context) error {
	select {
	case g.ch <- struct{}{}:
		return nil
	default:
	}
	select {
	case g.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) TryAcquire() bool {
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *gate) AcquireTimeout(d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return g.Acquire(ctx) == nil
}

func (g *gate) Release() {
	select {
	case <-g.ch:
	default:
		panic("snakebind: release of an unheld GIL gate")
	}
}
