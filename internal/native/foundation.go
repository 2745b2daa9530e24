package native

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoFactory is returned by Acquire when no factory was supplied for the
// first reference.
var ErrNoFactory = errors.New("native: no physics factory configured")

// Factory creates the process-wide Physics object.
type Factory func() (Physics, error)

// Foundation is the process-wide native engine state.
//
// The Physics object is created on the first Acquire and torn down when the
// last reference is released, regardless of how many worlds share it. The
// counter is only mutated from the consuming goroutine in practice; the
// mutex keeps concurrent tests honest.
type Foundation struct {
	mu       sync.Mutex
	refs     int
	physics  Physics
	teardown func()
}

var process = &Foundation{}

// Process returns the process-wide foundation.
func Process() *Foundation {
	return process
}

// Acquire returns the shared Physics, creating it with factory on first use.
// A factory failure is fatal for the caller and leaves the count unchanged.
func (f *Foundation) Acquire(factory Factory) (Physics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refs > 0 {
		f.refs++
		return f.physics, nil
	}
	if factory == nil {
		return nil, ErrNoFactory
	}

	p, err := factory()
	if err != nil {
		return nil, fmt.Errorf("create physics: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("create physics: factory returned nil")
	}

	f.physics = p
	f.refs = 1
	if r, ok := p.(interface{ Release() }); ok {
		f.teardown = r.Release
	} else {
		f.teardown = nil
	}
	slog.Debug("native foundation created")
	return p, nil
}

// Release drops one reference; the last one tears the foundation down.
func (f *Foundation) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refs == 0 {
		return
	}
	f.refs--
	if f.refs > 0 {
		return
	}
	if f.teardown != nil {
		f.teardown()
	}
	f.physics = nil
	f.teardown = nil
	slog.Debug("native foundation released")
}

// Refs returns the current reference count.
func (f *Foundation) Refs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs
}
