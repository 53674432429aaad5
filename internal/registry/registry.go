// Package registry implements the Slot Registry (spec.md §4.1): the
// bidirectional mapping between in-vat values and kernel vrefs, the
// weak/strong reference discipline, and the dead set of vrefs observed
// finalized.
//
// Locking mirrors the teacher's internal/object.go discipline (a mutex
// held around slot/proto mutation), generalized to guard the whole table
// set as one unit since the tables are not independent: moving a vref
// between deadSet and slotToVal, or pinning/unpinning exportedRemotables,
// must be atomic with respect to concurrent GC-drain classification.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vatkit/liveslots/internal/weakref"
	"github.com/vatkit/liveslots/values"
	"github.com/vatkit/liveslots/vref"
)

// VirtualObjectStore is the external collaborator paging virtual object
// state in and out (spec.md §4.1 case 2, §9 supplement). A trivial
// in-memory implementation lives in package vstore.
type VirtualObjectStore interface {
	Materialize(v vref.Vref) (*values.VirtualRepresentative, error)
}

// Registry holds every table from spec.md §3 and implements the six
// operations of §4.1.
type Registry struct {
	mu sync.Mutex

	allocator *vref.IDAllocator
	virtual   VirtualObjectStore

	weak *weakref.Table[vref.Vref] // backs valToSlot/slotToVal together

	// valToSlot is keyed by weakref.Identity(v), a non-retaining pointer
	// identity, rather than by v itself: a map keyed directly on an
	// interface value holds a real strong reference to it, which would
	// make valToSlot a second GC root pinning every value it has ever seen
	// and defeat the weak-over-value requirement this table carries
	// (spec.md §3). See internal/weakref's package doc for the full
	// grounding of this technique.
	valToSlot map[uintptr]vref.Vref
	slotToVal map[vref.Vref]weakref.Handle[vref.Vref]
	// identityOf records which identity each slot was last registered under,
	// so a slot's valToSlot entry can be deleted on finalize/retire without
	// needing the (possibly already-collected) value itself.
	identityOf map[vref.Vref]uintptr

	exportedRemotables map[vref.Vref]*values.Remotable // strong
	pendingPromises    map[vref.Vref]*values.Promise   // strong

	deadSet            map[vref.Vref]struct{}
	disavowedPresences map[vref.Vref]struct{} // weak in spirit; we only need membership

	// presenceFactory and promiseFactory construct new Values for unknown
	// slots on deserialization. They are func fields, not an interface,
	// because the registry doesn't need to know anything else about the
	// factory -- this is the "registry mapping method name to handler"
	// option from the design notes (§9), applied to "how do I build a
	// value for this vref kind" instead of method dispatch.
	newPresence func(vref.Vref) *values.Presence
	newPromise  func(vref.Vref) *values.Promise
	newDevice   func(vref.Vref) *values.DeviceNode
}

// New constructs an empty Registry. newPresence/newPromise/newDevice
// construct fresh Values for previously-unseen imported vrefs; they are
// supplied by the vat package, which is the only place a Sender/DeviceCaller
// is available to bind into the new Value.
func New(alloc *vref.IDAllocator, virtual VirtualObjectStore, newPresence func(vref.Vref) *values.Presence, newPromise func(vref.Vref) *values.Promise, newDevice func(vref.Vref) *values.DeviceNode) *Registry {
	return &Registry{
		allocator:           alloc,
		virtual:             virtual,
		weak:                weakref.NewTable[vref.Vref](),
		valToSlot:           make(map[uintptr]vref.Vref),
		slotToVal:           make(map[vref.Vref]weakref.Handle[vref.Vref]),
		identityOf:          make(map[vref.Vref]uintptr),
		exportedRemotables:  make(map[vref.Vref]*values.Remotable),
		pendingPromises:     make(map[vref.Vref]*values.Promise),
		deadSet:             make(map[vref.Vref]struct{}),
		disavowedPresences:  make(map[vref.Vref]struct{}),
		newPresence:         newPresence,
		newPromise:          newPromise,
		newDevice:           newDevice,
	}
}

// ErrDisavowedReference is raised by ConvertValToSlot on a disavowed value
// (spec.md §4.1); per §7 it also terminates the vat, which the caller
// (dispatch) is responsible for doing.
var ErrDisavowedReference = errors.New("disavowed reference")

// ErrUnknownExport is raised by ConvertSlotToVal for an unknown
// vat-allocated vref: the kernel is claiming an export this vat never
// made.
var ErrUnknownExport = errors.New("unknown export")

// GetSlotForVal returns the vref already assigned to v, if any.
func (r *Registry) GetSlotForVal(v values.Value) (vref.Vref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.valToSlot[weakref.Identity(v)]
	return s, ok
}

// GetValForSlot returns the value currently registered for s, if its weak
// reference is still alive.
func (r *Registry) GetValForSlot(s vref.Vref) (values.Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getValForSlotLocked(s)
}

func (r *Registry) getValForSlotLocked(s vref.Vref) (values.Value, bool) {
	h, ok := r.slotToVal[s]
	if !ok {
		return nil, false
	}
	v, alive := h.Deref()
	if !alive {
		return nil, false
	}
	return v.(values.Value), true
}

// RegisterValue installs v under the given slot in both direction tables,
// replacing anything previously there. Used both for fresh allocations and
// for re-introduction after a drop.
func (r *Registry) RegisterValue(s vref.Vref, v values.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerValueLocked(s, v)
}

func (r *Registry) registerValueLocked(s vref.Vref, v values.Value) {
	delete(r.deadSet, s)
	h := r.weak.Track(s, v)
	r.slotToVal[s] = h
	id := weakref.Identity(v)
	r.valToSlot[id] = s
	r.identityOf[s] = id
}

// ConvertValToSlot returns the vref for v, allocating one if this is the
// first time v has crossed the boundary. Promises get a fresh vat-promise
// vref and are pinned in pendingPromises; non-promises must be
// pass-by-capability: a Remotable gets a fresh object vref, and a
// DeviceNode returns the vref it was constructed with. Disavowed presences
// fail with ErrDisavowedReference.
func (r *Registry) ConvertValToSlot(v values.Value) (vref.Vref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.valToSlot[weakref.Identity(v)]; ok {
		if _, disavowed := r.disavowedPresences[s]; disavowed {
			return vref.Vref{}, fmt.Errorf("%w: %s", ErrDisavowedReference, s)
		}
		return s, nil
	}

	switch val := v.(type) {
	case *values.Promise:
		s := r.allocator.NextPromise()
		r.registerValueLocked(s, v)
		r.pendingPromises[s] = val
		return s, nil
	case *values.Remotable:
		s := r.allocator.NextObject()
		r.registerValueLocked(s, v)
		return s, nil
	case *values.DeviceNode:
		// Device nodes are always vat-side proxies for a kernel device;
		// they keep whatever vref they were constructed with rather than
		// allocating a fresh one (devices are configured, not exported).
		return val.Vref, nil
	default:
		return vref.Vref{}, fmt.Errorf("value of kind %s is not pass-by-capability", v.Kind())
	}
}

// RetainExportedRemotable strongly pins the Remotable behind a
// vat-allocated object vref, so the kernel can rely on its export
// surviving until dropExports. Called by the Marshaller Bridge on every
// slot a serialize pass emits (spec.md §4.3).
func (r *Registry) RetainExportedRemotable(s vref.Vref) {
	if s.Type() != vref.Object || s.Allocator() != vref.Vat || s.IsVirtual() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.getValForSlotLocked(s)
	if !ok {
		return
	}
	if rem, ok := v.(*values.Remotable); ok {
		r.exportedRemotables[s] = rem
	}
}

// ConvertSlotToVal resolves a vref to its in-vat value, materializing one
// if none exists yet. iface, if non-empty, is advisory typing information
// a marshaller may pass through (unused by the registry itself; it exists
// so callers matching the spec's "iface?" parameter have somewhere to put
// it).
func (r *Registry) ConvertSlotToVal(s vref.Vref, iface string) (values.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.getValForSlotLocked(s); ok {
		if s.IsVirtual() {
			// Case (1) for virtuals: materialize a throwaway representative
			// so user code cannot distinguish this from true reanimation.
			if r.virtual != nil {
				if rep, err := r.virtual.Materialize(s); err == nil {
					return rep, nil
				}
			}
		}
		return v, nil
	}

	if s.IsVirtual() {
		if r.virtual == nil {
			return nil, fmt.Errorf("slot %s is virtual but no virtual-object store is configured", s)
		}
		rep, err := r.virtual.Materialize(s)
		if err != nil {
			return nil, err
		}
		r.registerValueLocked(s, rep)
		return rep, nil
	}

	if s.Allocator() == vref.Vat {
		// Unknown vat-allocated vref: the kernel is claiming an export we
		// never made.
		return nil, fmt.Errorf("%w: %s", ErrUnknownExport, s)
	}

	switch s.Type() {
	case vref.Object:
		p := r.newPresence(s)
		r.registerValueLocked(s, p)
		return p, nil
	case vref.Promise:
		p := r.newPromise(s)
		r.registerValueLocked(s, p)
		r.pendingPromises[s] = p
		return p, nil
	case vref.Device:
		d := r.newDevice(s)
		r.registerValueLocked(s, d)
		return d, nil
	default:
		return nil, fmt.Errorf("slot %s has unrecognized type", s)
	}
}

// RetirePromise drops a resolved promise's registry entries entirely:
// both direction tables and the pendingPromises pin (spec.md §3 promise
// lifecycle).
func (r *Registry) RetirePromise(s vref.Vref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.identityOf[s]; ok {
		delete(r.valToSlot, id)
		delete(r.identityOf, s)
	}
	delete(r.slotToVal, s)
	r.weak.Forget(s)
	delete(r.pendingPromises, s)
}

// DropExport removes the strong pin on a vat-allocated Remotable so it may
// be collected normally. It does not remove the registry entries
// themselves; those persist until the value is actually collected and the
// GC Engine retires it.
func (r *Registry) DropExport(s vref.Vref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exportedRemotables, s)
}

// StillPinnedExport reports whether s is still strongly pinned in
// exportedRemotables, used by retireExports handling to detect the
// kernel-protocol violation of retiring a still-exported Remotable
// (spec.md §4.4, §7).
func (r *Registry) StillPinnedExport(s vref.Vref) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.exportedRemotables[s]
	return ok
}

// RetireExport removes both direction table entries for s and disarms its
// finalizer, used when the kernel sends retireExports.
func (r *Registry) RetireExport(s vref.Vref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.identityOf[s]; ok {
		delete(r.valToSlot, id)
		delete(r.identityOf, s)
	}
	delete(r.slotToVal, s)
	r.weak.Forget(s)
	delete(r.exportedRemotables, s)
}

// Disavow records s in disavowedPresences, so ConvertValToSlot rejects it
// with ErrDisavowedReference from then on. Setting the Presence's own flag
// (so invocations see ErrDisavowed) and reporting the vref to the kernel
// via dropImports are done by the caller (package vat), matching the
// disavow scenario (spec.md §8 scenario 6).
func (r *Registry) Disavow(s vref.Vref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disavowedPresences[s] = struct{}{}
}

// DrainFinalized moves every vref whose weak entry was finalized since the
// last drain into deadSet and returns them, maintaining the invariant that
// a vref is in deadSet iff it is FINALIZED (spec.md §3).
func (r *Registry) DrainFinalized() []vref.Vref {
	dead := r.weak.Drain()
	if len(dead) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range dead {
		r.deadSet[s] = struct{}{}
		delete(r.slotToVal, s)
		if id, ok := r.identityOf[s]; ok {
			delete(r.valToSlot, id)
			delete(r.identityOf, s)
		}
	}
	return dead
}

// DeadSet returns a sorted-by-vref-string snapshot of the current dead
// set, for the GC Engine to classify.
func (r *Registry) DeadSet() []vref.Vref {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]vref.Vref, 0, len(r.deadSet))
	for s := range r.deadSet {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return vref.Less(out[i], out[j]) })
	return out
}

// ClearDeadSet removes the given vrefs from deadSet, called once the GC
// Engine has emitted syscalls for them.
func (r *Registry) ClearDeadSet(vrefs []vref.Vref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range vrefs {
		delete(r.deadSet, s)
	}
}

// IsExported reports whether s is a vat-allocated object vref, judged from
// its coordinates alone (the registry tables are not consulted) -- used by
// classification to distinguish "Remotable" from "Presence" dead-set
// entries without a type assertion on an already-collected value.
func (r *Registry) IsExported(s vref.Vref) bool {
	return s.Type() == vref.Object && s.Allocator() == vref.Vat
}

// PendingPromiseResolver returns the pinned Promise for a kernel-decided
// vpid, used by notify handling to resolve/reject it.
func (r *Registry) PendingPromiseResolver(s vref.Vref) (*values.Promise, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pendingPromises[s]
	return p, ok
}
