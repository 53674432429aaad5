// Package gctools defines the GC-tools facade the host runtime provides
// to liveslots (spec.md §6): quiescence detection and a forced GC pass
// that lets finalizers run. The weak references and finalization queue
// themselves live in internal/weakref, which the registry uses directly.
// This package also ships a default implementation backed
// by Go's own runtime, grounded on the teacher's collector.go (which
// exposes runtime.GC/runtime.ReadMemStats to Io scripts) generalized from
// "force a GC and report a count" to "force a GC, then let finalizers
// run".
package gctools

import (
	"context"
	"time"

	"github.com/vatkit/liveslots/internal/weakref"
)

// Tools is the facade liveslots depends on; a production vat host wires in
// Runtime, tests wire in a synchronous fake (see testutil).
type Tools interface {
	// WaitUntilQuiescent settles once the microtask/task queue this vat's
	// user code runs on has drained (spec.md §6).
	WaitUntilQuiescent(ctx context.Context) error
	// GCAndFinalize forces a GC pass and gives finalizer callbacks a chance
	// to run; Runtime's implementation does not wait for them to complete.
	GCAndFinalize(ctx context.Context)
}

// Runtime is the default Tools implementation for production use, backed
// directly by Go's garbage collector and finalizers via internal/weakref.
type Runtime struct {
	// Quiescent is called to detect whether the vat's task queue (whatever
	// it is wired to: a channel, a worker pool, a single goroutine's defer
	// chain) is empty. It defaults to an always-quiescent check suitable
	// for a vat driven entirely synchronously within Dispatch.
	Quiescent func() bool
	// PollInterval controls how often WaitUntilQuiescent re-checks
	// Quiescent when it is not yet satisfied.
	PollInterval time.Duration
}

// NewRuntime returns a Runtime whose WaitUntilQuiescent always reports
// quiescent immediately, appropriate for a vat whose user code runs
// entirely within the call stack of a single crank (the common case for a
// systems-language host with no separate microtask queue, per the design
// notes' "model each delivery as a bounded event loop" guidance).
func NewRuntime() *Runtime {
	return &Runtime{
		Quiescent:    func() bool { return true },
		PollInterval: time.Millisecond,
	}
}

// WaitUntilQuiescent blocks until Quiescent reports true or ctx is done.
func (r *Runtime) WaitUntilQuiescent(ctx context.Context) error {
	if r.Quiescent == nil || r.Quiescent() {
		return nil
	}
	t := time.NewTicker(r.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if r.Quiescent() {
				return nil
			}
		}
	}
}

// GCAndFinalize forces Go's garbage collector to run and gives queued
// finalizers a chance to execute before returning.
func (r *Runtime) GCAndFinalize(ctx context.Context) {
	weakref.GCAndFinalize()
}
