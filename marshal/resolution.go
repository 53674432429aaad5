package marshal

import (
	"github.com/zephyrtronium/contains"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/values"
	"github.com/vatkit/liveslots/vref"
)

// PromiseResolver looks up the pinned Promise backing a promise vref, if
// any -- the registry's pendingPromises table (spec.md §3).
type PromiseResolver func(vref.Vref) (*values.Promise, bool)

// ResolutionCollector is the transient helper from spec.md §4.3, used by
// both outbound sends and local promise resolution: given a set of slots
// to scan, it finds every promise vref whose backing promise has already
// settled and gathers [vref, isRejected, serialize(value)], recursing into
// the settled value's own slots. Each vref appears at most once per batch,
// in the order it was first discovered.
//
// Dedup reuses the set-plus-ordered-list idiom from internal/object.go's
// IsKindOf (a contains.Set guarding against revisiting a vref, a plain
// slice preserving discovery order) via vref.Vref packed into the uintptr
// contains.Set expects -- the same dependency the teacher already carries,
// given a second job.
type ResolutionCollector struct {
	resolve PromiseResolver
}

// NewResolutionCollector constructs a collector backed by resolve.
func NewResolutionCollector(resolve PromiseResolver) *ResolutionCollector {
	return &ResolutionCollector{resolve: resolve}
}

// Collect scans slots (and transitively, the slots of any settled values
// found) for promise vrefs with a recorded resolution.
func (c *ResolutionCollector) Collect(slots []vref.Vref) []capdata.Resolution {
	var seen contains.Set
	var out []capdata.Resolution
	queue := append([]vref.Vref(nil), slots...)

	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if s.Type() != vref.Promise {
			continue
		}
		if !seen.Add(vrefKey(s)) {
			continue
		}
		p, ok := c.resolve(s)
		if !ok {
			continue
		}
		isRejected, value, settled := p.Settled()
		if !settled {
			continue
		}
		out = append(out, capdata.Resolution{Target: s, IsRejected: isRejected, Value: value})
		queue = append(queue, value.Slots...)
	}
	return out
}

// vrefKey packs a Vref's coordinates into the uintptr contains.Set
// expects. It is exact (no hashing, no collisions) as long as no vat
// allocates more than 2^60 ids in a single (type, allocator) bucket, far
// beyond any real vat's lifetime -- the same order of assumption the
// teacher makes about pointer-width uintptrs being big enough to hold an
// address.
func vrefKey(s vref.Vref) uintptr {
	bit := func(b bool) uintptr {
		if b {
			return 1
		}
		return 0
	}
	return uintptr(s.ID())<<4 | uintptr(s.Type())<<2 | uintptr(s.Allocator())<<1 | bit(s.IsVirtual())
}
