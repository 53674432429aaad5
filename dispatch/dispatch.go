package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/gctools"
	"github.com/vatkit/liveslots/syscall"
	"github.com/vatkit/liveslots/values"
	"github.com/vatkit/liveslots/vref"
)

// Registry is the narrow slice of internal/registry.Registry the crank
// loop needs, kept as an interface so dispatch does not import the
// registry package directly.
type Registry interface {
	ConvertSlotToVal(s vref.Vref, iface string) (values.Value, error)
	PendingPromiseResolver(s vref.Vref) (*values.Promise, bool)
	RetirePromise(s vref.Vref)
	DropExport(s vref.Vref)
	StillPinnedExport(s vref.Vref) bool
	RetireExport(s vref.Vref)
}

// GCDrainer is the narrow slice of gc.Engine the crank loop needs.
type GCDrainer interface {
	Drain(ctx context.Context) error
}

// ResolutionCollector is the narrow slice of marshal.ResolutionCollector
// the crank loop needs, for gathering nested settled promises out of a
// delivery's result or a notify entry's value.
type ResolutionCollector interface {
	Collect(slots []vref.Vref) []capdata.Resolution
}

// Logger is the narrow logging surface dispatch uses.
type Logger interface {
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Core runs dispatch() for one vat. It owns no mutable vat state itself;
// every table lives in Registry, consistent with spec.md §9's "no
// process-wide singletons, a single owned record threaded through the
// Dispatch Core."
type Core struct {
	registry  Registry
	gc        GCDrainer
	tools     gctools.Tools
	sys       syscall.Syscall
	collector ResolutionCollector
	log       Logger
}

// New constructs a Core.
func New(registry Registry, gcEngine GCDrainer, tools gctools.Tools, sys syscall.Syscall, collector ResolutionCollector, log Logger) *Core {
	return &Core{registry: registry, gc: gcEngine, tools: tools, sys: sys, collector: collector, log: log}
}

// Dispatch runs one delivery to completion: schedule the user-visible
// work, wait for quiescence, then drain distributed GC until it reports
// nothing more to do (spec.md §4.4). Per the error-handling propagation
// policy (spec.md §7), classified errors never escape Dispatch; only a
// genuine transport failure from the syscall layer is returned.
func (c *Core) Dispatch(ctx context.Context, d Delivery) error {
	if err := c.deliver(ctx, d); err != nil {
		var transport transportError
		if errors.As(err, &transport) {
			return transport.err
		}
		// Any other error is already a *CrankError that deliver has fully
		// handled (logged, resolved, or exited); nothing further to do.
	}

	if err := c.tools.WaitUntilQuiescent(ctx); err != nil {
		return err
	}
	return c.gc.Drain(ctx)
}

// transportError distinguishes a hard syscall-layer failure (the kernel
// connection itself is broken) from the classified, internally-handled
// crank errors dispatch normally absorbs.
type transportError struct{ err error }

func (t transportError) Error() string { return t.err.Error() }

func (c *Core) deliver(ctx context.Context, d Delivery) error {
	switch d.Kind {
	case Message:
		return c.deliverMessage(ctx, d)
	case Notify:
		return c.deliverNotify(ctx, d)
	case DropExports:
		for _, s := range d.Vrefs {
			c.registry.DropExport(s)
		}
		return nil
	case RetireExports:
		for _, s := range d.Vrefs {
			if c.registry.StillPinnedExport(s) {
				c.log.Warn("retireExports for still-pinned export", "vref", s.String())
			}
			c.registry.RetireExport(s)
		}
		return nil
	case RetireImports:
		for _, s := range d.Vrefs {
			if s.Type() != vref.Object || s.Allocator() != vref.Kernel {
				c.log.Warn("retireImports for non-kernel-object vref", "vref", s.String())
			}
		}
		return nil
	default:
		err := newCrankError(ProtocolErrorKind, true, fmt.Errorf("unknown delivery kind %d", d.Kind))
		c.log.Error(err.Error())
		return c.exitFatal(ctx, err)
	}
}

func (c *Core) deliverMessage(ctx context.Context, d Delivery) error {
	target, err := c.registry.ConvertSlotToVal(d.Target, "")
	if err != nil {
		ce := newCrankError(ProtocolErrorKind, true, err)
		c.log.Error(ce.Error())
		return c.exitFatal(ctx, ce)
	}

	// "unserialize arguments": register every slot the arguments mention
	// so fresh Presences/Promises exist before the target method runs.
	for _, s := range d.Args.Slots {
		if _, err := c.registry.ConvertSlotToVal(s, ""); err != nil {
			c.log.Warn("could not resolve argument slot", "vref", s.String(), "err", err)
		}
	}

	rem, ok := target.(*values.Remotable)
	if !ok {
		ce := newCrankError(InternalInvariantKind, false, fmt.Errorf("delivery target %s is not a Remotable", d.Target))
		c.log.Error(ce.Error())
		return nil
	}

	result, invokeErr := rem.Invoke(ctx, d.Method, d.Args)

	if invokeErr != nil && errors.Is(invokeErr, values.ErrDisavowed) {
		ce := newCrankError(DisavowedReferenceKind, true, invokeErr)
		c.log.Error(ce.Error())
		return c.exitFatal(ctx, ce)
	}

	if d.Result.IsZero() {
		if invokeErr != nil {
			c.log.Warn("user error with no result vref to resolve", "err", invokeErr)
		}
		return nil
	}
	if d.Result.Type() != vref.Promise {
		ce := newCrankError(ProtocolErrorKind, false, fmt.Errorf("result vref %s is not a promise", d.Result))
		c.log.Error(ce.Error())
		return nil
	}

	resolutions := []capdata.Resolution{{Target: d.Result, IsRejected: invokeErr != nil, Value: errorOrResult(invokeErr, result)}}
	if invokeErr == nil && c.collector != nil {
		resolutions = append(resolutions, c.collector.Collect(result.Slots)...)
	}
	if err := c.sys.Resolve(ctx, resolutions); err != nil {
		return transportError{err}
	}
	return nil
}

func errorOrResult(err error, result capdata.Capdata) capdata.Capdata {
	if err == nil {
		return result
	}
	return capdata.Capdata{Body: []byte(err.Error())}
}

func (c *Core) deliverNotify(ctx context.Context, d Delivery) error {
	var toSubscribe []vref.Vref
	for _, n := range d.Notifications {
		p, ok := c.registry.PendingPromiseResolver(n.Vpid)
		if !ok {
			ce := newCrankError(ProtocolErrorKind, false, fmt.Errorf("notify for unknown vpid %s", n.Vpid))
			c.log.Warn(ce.Error())
			continue
		}
		p.Resolve(n.IsRejected, n.Value)
		c.registry.RetirePromise(n.Vpid)

		for _, s := range n.Value.Slots {
			if s.Type() == vref.Promise && s.Allocator() == vref.Kernel {
				toSubscribe = append(toSubscribe, s)
			}
			if _, err := c.registry.ConvertSlotToVal(s, ""); err != nil {
				c.log.Warn("could not resolve notify value slot", "vref", s.String(), "err", err)
			}
		}
	}

	// Subscribe at most once per imported promise vref, and only for
	// those still live after the whole batch has been processed -- the
	// Open Question decision recorded in DESIGN.md.
	seen := make(map[vref.Vref]bool)
	for _, s := range toSubscribe {
		if seen[s] {
			continue
		}
		seen[s] = true
		if _, stillLive := c.registry.PendingPromiseResolver(s); !stillLive {
			continue
		}
		if err := c.sys.Subscribe(ctx, s); err != nil {
			return transportError{err}
		}
	}
	return nil
}

func (c *Core) exitFatal(ctx context.Context, ce *CrankError) error {
	if err := c.sys.Exit(ctx, true, capdata.Capdata{Body: []byte(ce.Error())}); err != nil {
		return transportError{err}
	}
	return nil
}
