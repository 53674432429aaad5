// Package gc implements the Distributed GC Engine (spec.md §4.5): the
// post-crank sweep that forces finalization, classifies the dead set the
// Slot Registry has accumulated, and emits dropImports/retireImports/
// retireExports syscalls in a stable, deduplicated, sorted order.
//
// Grounded on the teacher's collector.go (CollectorCollect forces
// runtime.GC and diffs runtime.MemStats before/after) generalized from
// "force a GC and report a count" to "force a GC, wait for finalizers,
// classify, emit sorted batches", and on scheduler.go's
// "for len(s.coros) > 0 { ... }" repeat-until-drained loop for the
// per-round "iterate while the virtual-object store reports more work"
// behavior.
package gc

import (
	"context"
	"sort"

	"github.com/vatkit/liveslots/gctools"
	"github.com/vatkit/liveslots/syscall"
	"github.com/vatkit/liveslots/vref"
)

// Registry is the narrow slice of internal/registry.Registry the engine
// needs, kept as an interface so gc does not import the registry package
// directly and so tests can supply a fake.
type Registry interface {
	DrainFinalized() []vref.Vref
	DeadSet() []vref.Vref
	ClearDeadSet([]vref.Vref)
	IsExported(vref.Vref) bool
	StillPinnedExport(vref.Vref) bool
	RetireExport(vref.Vref)
}

// VirtualObjectManager is the narrow slice of vstore.VirtualObjectManager
// this package depends on: whether a virtual representative's internal
// refcount has dropped to zero, and whether releasing it produced further
// work worth another round (spec.md §4.5 row 1).
type VirtualObjectManager interface {
	HasMoreWork() bool
	RefcountOf(v vref.Vref) int
}

// Logger is the narrow logging surface the engine uses for the
// still-pinned-Remotable protocol warning (spec.md §7) and for a drain cut
// short by MaxRounds; internal/logging satisfies it.
type Logger interface {
	Warn(msg string, args ...interface{})
}

// Engine runs Distributed GC Engine drains for one vat.
type Engine struct {
	registry Registry
	virtual  VirtualObjectManager
	tools    gctools.Tools
	sys      syscall.Syscall
	log      Logger

	// MaxRounds bounds the number of "virtual-object store reports more
	// work" iterations a single Drain performs before stopping regardless
	// of HasMoreWork, per the Open Question decision recorded in
	// DESIGN.md: the spec places no inherent bound on this loop, but an
	// unbounded loop is an availability hazard in a host embedding this
	// engine. Zero means unbounded.
	MaxRounds int
}

// New constructs an Engine. virtual may be nil if this vat has no virtual
// objects configured, in which case every dead vref is treated as
// non-virtual.
func New(registry Registry, virtual VirtualObjectManager, tools gctools.Tools, sys syscall.Syscall, log Logger) *Engine {
	return &Engine{registry: registry, virtual: virtual, tools: tools, sys: sys, log: log}
}

// Drain runs one Distributed GC Engine pass to completion: force
// finalization, classify the accumulated dead set, emit syscalls, and
// repeat while the virtual-object store reports more work (spec.md §4.4
// step 3, §4.5).
func (e *Engine) Drain(ctx context.Context) error {
	for round := 0; e.MaxRounds <= 0 || round < e.MaxRounds; round++ {
		e.tools.GCAndFinalize(ctx)
		e.registry.DrainFinalized()

		dead := e.registry.DeadSet()
		if len(dead) == 0 {
			if e.virtual == nil || !e.virtual.HasMoreWork() {
				return nil
			}
			continue
		}

		var dropImports, retireImports, retireExports []vref.Vref
		for _, s := range dead {
			switch {
			case s.IsVirtual():
				// Representative, virtual vat-allocated: refcount check
				// only. No syscall is emitted directly for it; the
				// virtual-object store's own bookkeeping (HasMoreWork)
				// decides whether another round is warranted.
				if e.virtual != nil && e.virtual.RefcountOf(s) > 0 {
					continue
				}
			case e.registry.IsExported(s):
				// Remotable, non-virtual, vat-allocated: always retireExports.
				if e.registry.StillPinnedExport(s) {
					e.log.Warn("retireExports for still-pinned export", "vref", s.String())
				}
				e.registry.RetireExport(s)
				retireExports = append(retireExports, s)
			default:
				// Presence, kernel-allocated: dropImports unconditionally
				// (reaching deadSet already means it is not reachable via
				// the virtual-object store, since only vat-allocated
				// object vrefs can be virtual), and retireImports since by
				// construction a vref only enters deadSet once its weak
				// entry is gone from every table this registry maintains.
				dropImports = append(dropImports, s)
				retireImports = append(retireImports, s)
			}
		}

		sortVrefs(dropImports)
		sortVrefs(retireImports)
		sortVrefs(retireExports)

		if len(dropImports) > 0 {
			if err := e.sys.DropImports(ctx, dropImports); err != nil {
				return err
			}
		}
		if len(retireImports) > 0 {
			if err := e.sys.RetireImports(ctx, retireImports); err != nil {
				return err
			}
		}
		if len(retireExports) > 0 {
			if err := e.sys.RetireExports(ctx, retireExports); err != nil {
				return err
			}
		}

		e.registry.ClearDeadSet(dead)

		if e.virtual == nil || !e.virtual.HasMoreWork() {
			return nil
		}
	}
	e.log.Warn("gc drain stopped at MaxRounds with work remaining", "maxRounds", e.MaxRounds)
	return nil
}

func sortVrefs(vrefs []vref.Vref) {
	sort.Slice(vrefs, func(i, j int) bool { return vref.Less(vrefs[i], vrefs[j]) })
}
