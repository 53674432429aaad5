// Package vstore provides the optional vatstore key-value facility
// (spec.md §6) and the virtual-object store facade liveslots' Slot
// Registry and Distributed GC Engine depend on (spec.md §4.1, §4.5, §9
// supplement). The virtual-object facade (VirtualObjectManager/Memory) is
// an in-process stand-in for a real paging object store, fine for tests
// and small deployments. The vatstore key-value facility (Store) is not:
// spec.md §1's own Non-goals rule out persisting state between process
// restarts in liveslots itself, so Store must forward every Get/Set/Delete
// to the kernel-mediated syscall.Syscall.VatstoreGet/Set/Delete rather
// than fake persistence with a local map -- persistence is the kernel's
// job, not this package's.
package vstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/vatkit/liveslots/values"
	"github.com/vatkit/liveslots/vref"
)

// Syscall is the narrow slice of syscall.Syscall the Store forwards to,
// kept as an interface so vstore does not import the syscall package
// directly.
type Syscall interface {
	VatstoreGet(ctx context.Context, key string) (value []byte, found bool, err error)
	VatstoreSet(ctx context.Context, key string, value []byte) error
	VatstoreDelete(ctx context.Context, key string) error
}

// Store is a namespaced vatstoreGet/Set/Delete facade over a Syscall,
// grounded on addon.go's namespacing-by-prefix idiom for registered
// addons (string-keyed, prefix-qualified lookups). Keys passed to
// Get/Set/Delete are transparently namespaced with Prefix before being
// handed to the kernel, per spec.md §6.
type Store struct {
	Prefix string
	sys    Syscall
}

// NewStore returns a Store namespacing all keys under prefix and
// forwarding every call to sys.
func NewStore(prefix string, sys Syscall) *Store {
	return &Store{Prefix: prefix, sys: sys}
}

func (s *Store) namespaced(key string) string {
	return s.Prefix + key
}

// Get returns the value previously stored for key, if any.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.sys.VatstoreGet(ctx, s.namespaced(key))
}

// Set stores value for key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.sys.VatstoreSet(ctx, s.namespaced(key), value)
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.sys.VatstoreDelete(ctx, s.namespaced(key))
}

// VirtualObjectManager is the collaborator that pages virtual-object state
// in and out (spec.md §4.1 case 2, §4.5's "virtual object manager may
// signal further work"). Materialize backs the registry's
// ConvertSlotToVal; HasMoreWork and RefcountOf back the GC Engine's
// classification and iteration-continuation logic.
type VirtualObjectManager interface {
	Materialize(v vref.Vref) (*values.VirtualRepresentative, error)
	// HasMoreWork reports whether releasing a representative during this
	// GC round caused further internal state changes that may produce
	// additional dead imports -- the GC Engine drain loop iterates while
	// this is true (spec.md §4.5).
	HasMoreWork() bool
	// RefcountOf reports the manager's internal refcount for a virtual
	// vref, used by the GC Engine's "refcount check only" classification
	// for virtual, vat-allocated representatives (spec.md §4.5).
	RefcountOf(v vref.Vref) int
}

// Memory is a trivial in-memory VirtualObjectManager sufficient for tests
// and small deployments: every virtual vref maps to a fixed payload
// supplied at registration time, and it never reports further work.
type Memory struct {
	mu      sync.Mutex
	objects map[vref.Vref]interface{}
	refs    map[vref.Vref]int
}

// NewMemory returns an empty in-memory virtual object manager.
func NewMemory() *Memory {
	return &Memory{objects: make(map[vref.Vref]interface{}), refs: make(map[vref.Vref]int)}
}

// Put registers the backing data for a virtual vref with an initial
// refcount.
func (m *Memory) Put(v vref.Vref, data interface{}, refcount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[v] = data
	m.refs[v] = refcount
}

// Materialize returns a fresh VirtualRepresentative wrapping the
// registered data for v.
func (m *Memory) Materialize(v vref.Vref) (*values.VirtualRepresentative, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[v]
	if !ok {
		return nil, fmt.Errorf("vstore: no virtual object registered for %s", v)
	}
	return &values.VirtualRepresentative{Vref: v, Data: data}, nil
}

// HasMoreWork always reports false: the in-memory manager never defers
// work across rounds.
func (m *Memory) HasMoreWork() bool { return false }

// RefcountOf returns the refcount most recently set via Put or Release.
func (m *Memory) RefcountOf(v vref.Vref) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[v]
}

// Release decrements v's refcount, as a dropped representative would
// during a GC round.
func (m *Memory) Release(v vref.Vref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs[v] > 0 {
		m.refs[v]--
	}
}
