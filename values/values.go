// Package values defines the in-vat value kinds liveslots translates to
// and from kernel vrefs: Remotable, Presence, Promise, DeviceNode, and
// VirtualRepresentative (spec.md §3). The kinds share the sealed Value
// interface, loosely grounded on the teacher's internal/object.go Tag
// (Activate/CloneValue/String); each kind has its own invocation method
// (Remotable.Invoke, Presence.Send, Promise.Send, DeviceNode.Call), and
// callers that need to tell kinds apart use a type switch or assertion.
package values

import (
	"context"
	"errors"
	"fmt"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/vref"
)

// Value is the sealed set of things liveslots can hold a vref for.
type Value interface {
	// isValue seals the interface to this package's concrete kinds.
	isValue()
	// Kind names the value's concrete kind, for logging and error messages.
	Kind() string
}

// Method is the shape of a single exported capability-style method: given
// serialized arguments, it returns a serialized result or an error. The
// specification does not require real dynamic dispatch in the host
// language, only that user code sees "call any method on this value" --
// Remotable holds these in a method table (a map from method name to
// Method), because Remotable construction reads naturally as a method
// table literal.
type Method func(ctx context.Context, args capdata.Capdata) (capdata.Capdata, error)

// Remotable is a sealed in-vat pass-by-capability object exported by this
// vat. Its Vref is assigned lazily, at first serialization, by the Slot
// Registry; Remotable itself only knows its method table.
type Remotable struct {
	// Methods maps method name to handler. A missing entry is a
	// MethodNotFound UserError at dispatch time, not a construction-time
	// error, since methods can be data-dependent (e.g. added post-hoc by
	// user code via a forwarding scheme) in the general case.
	Methods map[string]Method
}

func (*Remotable) isValue()     {}
func (*Remotable) Kind() string { return "remotable" }

// Invoke calls the named method, or returns ErrMethodNotFound.
func (r *Remotable) Invoke(ctx context.Context, method string, args capdata.Capdata) (capdata.Capdata, error) {
	m, ok := r.Methods[method]
	if !ok {
		return capdata.Capdata{}, fmt.Errorf("%w: %s", ErrMethodNotFound, method)
	}
	return m(ctx, args)
}

// ErrMethodNotFound is returned by Remotable.Invoke for an unknown method
// name; it is a UserError per the error taxonomy (spec.md §7).
var ErrMethodNotFound = errors.New("method not found")

// Presence is an in-vat proxy representing a kernel-allocated object
// belonging to another vat. Sending it a method call is an "eventual
// send": it becomes a syscall.send, never a synchronous local call. The
// Sender interface is what lets Presence issue that send without the
// values package importing the syscall or registry packages; the vat
// package supplies the concrete implementation at construction time.
type Presence struct {
	Vref       vref.Vref
	sender     Sender
	disavowed  *bool
}

func (*Presence) isValue()     {}
func (*Presence) Kind() string { return "presence" }

// Sender issues an eventual send on behalf of a Presence or unresolved
// Promise and returns the vref of a fresh result promise.
type Sender interface {
	Send(ctx context.Context, target vref.Vref, method string, args capdata.Capdata) (result vref.Vref, err error)
}

// NewPresence constructs a Presence bound to the given sender. disavowed is
// a shared flag so Disavow (vat powers, §6) can mark every alias of the
// same presence revoked at once.
func NewPresence(v vref.Vref, sender Sender, disavowed *bool) *Presence {
	if disavowed == nil {
		f := false
		disavowed = &f
	}
	return &Presence{Vref: v, sender: sender, disavowed: disavowed}
}

// ErrDisavowed is the DisavowedReference error (spec.md §7): invoking a
// disavowed presence is a synchronous throw that also terminates the vat.
var ErrDisavowed = errors.New("disavowed reference")

// ErrBadMethodName is raised by Presence.Send and Promise.Send for an
// empty method name (spec.md §4.2).
var ErrBadMethodName = errors.New("bad method name")

// AsyncIteratorSymbol is the literal method-name string that stands for the
// asynchronous-iteration symbol. Method names are plain Go strings, so it
// passes through Send and Invoke like any other name; nothing in this
// package rewrites method names.
const AsyncIteratorSymbol = "Symbol.asyncIterator"

// Send performs the eventual send, refusing calls on a disavowed presence
// and calls with an empty method name.
func (p *Presence) Send(ctx context.Context, method string, args capdata.Capdata) (vref.Vref, error) {
	if p.disavowed != nil && *p.disavowed {
		return vref.Vref{}, ErrDisavowed
	}
	if method == "" {
		return vref.Vref{}, ErrBadMethodName
	}
	return p.sender.Send(ctx, p.Vref, method, args)
}

// Promise is either a locally-created promise or one imported from the
// kernel. Unresolved, it is "pipelinable": further method sends are
// forwarded to the kernel targeted at the promise's own vref until it
// resolves (spec.md §4.2), mirroring the teacher's Future
// ("activate-if-ready-else-return-self") placeholder shape in
// coreext/future/future.go, generalized from "return self" to "pipeline a
// send".
type Promise struct {
	Vref   vref.Vref
	sender Sender

	resolved   bool
	isRejected bool
	value      capdata.Capdata
}

func (*Promise) isValue()     {}
func (*Promise) Kind() string { return "promise" }

// NewPromise constructs an unresolved Promise.
func NewPromise(v vref.Vref, sender Sender) *Promise {
	return &Promise{Vref: v, sender: sender}
}

// ErrHandlerAfterResolution is raised by programming errors that reuse a
// promise's pre-resolution pipelining handler after it has settled
// (spec.md §4.2).
var ErrHandlerAfterResolution = errors.New("handler used after promise resolution")

// Send pipelines a method call to the promise's eventual resolution if
// unresolved, or reports ErrHandlerAfterResolution if it has already
// settled -- post-resolution use of the pipelining handler is a
// programming error, not a retry path.
func (p *Promise) Send(ctx context.Context, method string, args capdata.Capdata) (vref.Vref, error) {
	if p.resolved {
		return vref.Vref{}, ErrHandlerAfterResolution
	}
	if method == "" {
		return vref.Vref{}, ErrBadMethodName
	}
	return p.sender.Send(ctx, p.Vref, method, args)
}

// Resolve settles the promise with a value or rejection. It is idempotent
// only in the sense that callers (the Dispatch Core) must guarantee it is
// called at most once per promise, per the promise lifecycle invariant
// that resolution happens exactly once.
func (p *Promise) Resolve(isRejected bool, value capdata.Capdata) {
	p.resolved = true
	p.isRejected = isRejected
	p.value = value
}

// Settled reports whether the promise has resolved, and if so, its
// recorded settlement. This backs the resolution collector (spec.md
// §4.3): "a prior recorded resolution, captured at .then firing time."
func (p *Promise) Settled() (isRejected bool, value capdata.Capdata, ok bool) {
	return p.isRejected, p.value, p.resolved
}

// DeviceNode is a proxy for synchronous kernel device calls. Unlike
// Presence and Promise, invoking it never produces an eventual send; it
// blocks the crank on syscall.callNow (spec.md §4.2).
type DeviceNode struct {
	Vref   vref.Vref
	caller DeviceCaller
}

func (*DeviceNode) isValue()     {}
func (*DeviceNode) Kind() string { return "device" }

// DeviceCaller issues a synchronous device call.
type DeviceCaller interface {
	CallNow(ctx context.Context, device vref.Vref, method string, args capdata.Capdata) (capdata.Capdata, error)
}

// NewDeviceNode constructs a DeviceNode bound to the given caller.
func NewDeviceNode(v vref.Vref, caller DeviceCaller) *DeviceNode {
	return &DeviceNode{Vref: v, caller: caller}
}

// ErrPromiseInDeviceCall and ErrDeviceOfDevice are the device-call misuse
// errors from spec.md §4.2/§7: promises may never appear in a device
// call's arguments, and a device proxy may never itself be passed as an
// argument to another device call.
var (
	ErrPromiseInDeviceCall = errors.New("promise argument in device call")
	ErrDeviceOfDevice      = errors.New("device node passed to device call")
)

// Call invokes the device synchronously, after the caller has already
// validated the argument slots via CheckDeviceArgs.
func (d *DeviceNode) Call(ctx context.Context, method string, args capdata.Capdata) (capdata.Capdata, error) {
	return d.caller.CallNow(ctx, d.Vref, method, args)
}

// CheckDeviceArgs validates that no argument slot is a promise or another
// device node, per spec.md §4.2's device-call restrictions. kindOf reports
// the Value kind backing each slot, if known to the caller's registry.
func CheckDeviceArgs(args capdata.Capdata, kindOf func(vref.Vref) (Value, bool)) error {
	for _, s := range args.Slots {
		if s.Type() == vref.Promise {
			return ErrPromiseInDeviceCall
		}
		if v, ok := kindOf(s); ok {
			if _, isDevice := v.(*DeviceNode); isDevice {
				return ErrDeviceOfDevice
			}
		}
	}
	return nil
}

// VirtualRepresentative is a transient in-vat handle for an entity whose
// canonical state lives in virtual-object storage (spec.md §3). Its
// backing Data is whatever the virtual-object store handed back on
// materialization; liveslots itself treats it opaquely.
type VirtualRepresentative struct {
	Vref vref.Vref
	Data interface{}
}

func (*VirtualRepresentative) isValue()     {}
func (*VirtualRepresentative) Kind() string { return "virtual" }
