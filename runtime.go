package snakebind

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Runtime owns a process-wide interpreter. The first caller of Interpreter
// starts it; concurrent first callers share that start, and the lifecycle
// lock is not held while it runs. Dispose closes the current interpreter;
// a later call to Interpreter starts a new one.
type Runtime struct {
	opts Options

	mu      sync.Mutex
	current atomic.Pointer[Interpreter]
	starts  singleflight.Group
}

// NewRuntime returns a Runtime that starts interpreters with opts.
func NewRuntime(opts Options) *Runtime {
	return &Runtime{opts: opts}
}

func (r *Runtime) ready() *Interpreter {
	if in := r.current.Load(); in != nil && in.State() == Ready {
		return in
	}
	return nil
}

// Interpreter returns the running interpreter, starting it if needed. The
// start is shared by every caller waiting for it and does not stop when one
// of them gives up; a caller whose ctx ends returns ctx.Err() at once.
func (r *Runtime) Interpreter(ctx context.Context) (*Interpreter, error) {
	if in := r.ready(); in != nil {
		return in, nil
	}
	start := context.WithoutCancel(ctx)
	ch := r.starts.DoChan("start", func() (any, error) {
		r.mu.Lock()
		in := r.ready()
		r.mu.Unlock()
		if in != nil {
			return in, nil
		}

		in, err := New(start, r.opts)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.current.Store(in)
		r.mu.Unlock()
		return in, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Interpreter), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dispose closes the running interpreter, if any. It is safe to call
// concurrently and more than once.
func (r *Runtime) Dispose() error {
	r.mu.Lock()
	in := r.current.Swap(nil)
	r.mu.Unlock()
	if in == nil {
		return nil
	}
	return in.Close()
}

var (
	defaultMu      sync.Mutex
	defaultRuntime = NewRuntime(Options{})
)

// Configure replaces the options of the process-wide runtime and disposes
// the interpreter it was running, if any.
func Configure(opts Options) error {
	defaultMu.Lock()
	old := defaultRuntime
	defaultRuntime = NewRuntime(opts)
	defaultMu.Unlock()
	return old.Dispose()
}

func getDefault() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultRuntime
}

// Acquire returns the process-wide interpreter, starting it on first use.
func Acquire(ctx context.Context) (*Interpreter, error) {
	return getDefault().Interpreter(ctx)
}

// Dispose closes the process-wide interpreter.
func Dispose() error {
	return getDefault().Dispose()
}
