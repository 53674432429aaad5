// Package weakref provides a weak-reference-plus-finalizer primitive: a
// handle that can be dereferenced while its referent is alive, reports
// "gone" once Go's GC has collected it, and queues a notification that is
// drained between turns. It is the systems-language substitute the design
// notes call for (spec.md §9): "a weak handle whose upgrade may fail, plus
// a finalizer notification queue drained between turns."
//
// Grounded directly on the pack's golua runtime/internal/weakref.UnsafePool:
// a plain `map[K]interface{}` cannot hold the tracked value, because a
// normal Go reference sitting in that map is itself a GC root and the
// finalizer golua's scheme (and this one) depends on would never fire. The
// fix golua uses, reused here verbatim, is to copy an interface's two
// machine words (type pointer, data pointer) into a `[2]uintptr` -- a type
// the garbage collector does not scan as a pointer -- and reconstitute the
// interface from those words only while the finalizer has not yet run.
// Table is generic over the caller's own key type (here, vref.Vref) so the
// drain queue can report exactly which key went dead without a second
// lookup table.
package weakref

import (
	"runtime"
	"sync"
	"unsafe"
)

// wiface is a non-retaining copy of an interface value's two words. It
// must never be read back via iface() once the entry is marked dead: by
// then the referent may be physically freed.
type wiface [2]uintptr

func toWiface(v interface{}) wiface {
	return *(*wiface)(unsafe.Pointer(&v))
}

func (w wiface) iface() interface{} {
	return *(*interface{})(unsafe.Pointer(&w))
}

// Identity returns a non-retaining numeric identity for v's underlying
// pointer, stable for v's lifetime and safe to use as a map key precisely
// because storing a uintptr, unlike storing v itself, creates no
// reference the garbage collector must trace. Callers needing pointer
// identity rather than a full weak handle (the registry's valToSlot table)
// use this instead of a second Table.
func Identity(v interface{}) uintptr {
	return toWiface(v)[1]
}

// Handle is a weak reference to a value of interface type, keyed by K in
// its owning Table.
type Handle[K comparable] struct {
	key   K
	table *Table[K]
}

// Key returns the key this handle was registered under.
func (h Handle[K]) Key() K { return h.key }

// Deref returns the referent and true if it is still alive, or nil and
// false if it has been collected (or was never registered).
func (h Handle[K]) Deref() (interface{}, bool) {
	h.table.mu.Lock()
	defer h.table.mu.Unlock()
	e, ok := h.table.entries[h.key]
	if !ok || e.dead {
		return nil, false
	}
	return e.w.iface(), true
}

// Dead reports whether the referent has been collected.
func (h Handle[K]) Dead() bool {
	_, alive := h.Deref()
	return !alive
}

type entry struct {
	w    wiface
	dead bool
}

// Table is a set of weak handles, keyed by K, sharing one finalizer-drain
// queue.
type Table[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
	pending []K // keys finalized since the last Drain, in finalization order
}

// NewTable returns an empty weak-reference table.
func NewTable[K comparable]() *Table[K] {
	return &Table[K]{entries: make(map[K]*entry)}
}

// Track registers v under key for weak tracking and returns a handle to it.
// v must be a pointer-shaped value (pointer, map, chan, func, or an
// interface wrapping one) for runtime.SetFinalizer to apply; Track panics
// otherwise, matching runtime.SetFinalizer's own contract. Tracking the
// same key twice replaces the previous entry and disarms its finalizer,
// which is what re-introduction (§3: re-registration after removal from
// deadSet) needs.
func (t *Table[K]) Track(key K, v interface{}) Handle[K] {
	t.mu.Lock()
	if old, ok := t.entries[key]; ok && !old.dead {
		runtime.SetFinalizer(old.w.iface(), nil)
	}
	t.entries[key] = &entry{w: toWiface(v)}
	t.mu.Unlock()

	runtime.SetFinalizer(v, func(interface{}) {
		t.finalize(key)
	})
	return Handle[K]{key: key, table: t}
}

// Forget removes a key's bookkeeping without waiting for Go's GC, disarming
// its finalizer. Used when a value is retired deterministically (e.g.
// retireExports) rather than through the collector.
func (t *Table[K]) Forget(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return
	}
	if !e.dead {
		runtime.SetFinalizer(e.w.iface(), nil)
	}
	delete(t.entries, key)
}

func (t *Table[K]) finalize(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || e.dead {
		// Already forgotten or finalized through another path; stale
		// callback from an earlier incarnation, tolerated per the import
		// lifecycle note that finalizer callbacks from prior incarnations
		// must not corrupt current state.
		return
	}
	e.dead = true
	e.w = wiface{}
	t.pending = append(t.pending, key)
}

// Drain returns the keys finalized since the last Drain call, in
// finalization order, and clears the pending queue. This is the
// "notification queue drained between turns" the design notes require.
func (t *Table[K]) Drain() []K {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	out := t.pending
	t.pending = nil
	return out
}

// GCAndFinalize forces two Go GC passes, so any values only reachable via
// weak handles that are now garbage get a chance to finalize before the
// caller next calls Drain. It does not wait for finalizer callbacks to
// complete; one that has not run yet is picked up by a later Drain. This
// backs gctools.Runtime.GCAndFinalize.
func GCAndFinalize() {
	runtime.GC()
	// A second GC cycle ensures finalizers queued by the first have been
	// invoked: runtime.SetFinalizer callbacks run on their own goroutine
	// scheduled by the GC, and one more collection provides a scheduling
	// point for them to complete before we return.
	runtime.GC()
}
