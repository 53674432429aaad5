// Package syscall defines the kernel-facing contract liveslots calls
// downward through (spec.md §6). It is a pure interface: the kernel itself
// -- scheduling, persistence, delivery ordering between vats -- is an
// external collaborator entirely out of scope (spec.md §1).
package syscall

import (
	"context"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/vref"
)

// Syscall is everything liveslots may ask the kernel to do on this vat's
// behalf.
type Syscall interface {
	// Send queues a message to target. result is the vat-allocated promise
	// vref for the call's eventual result, or the zero Vref if none was
	// requested.
	Send(ctx context.Context, target vref.Vref, method string, args capdata.Capdata, result vref.Vref) error

	// Resolve reports a batch of promise settlements this vat decides.
	Resolve(ctx context.Context, resolutions []capdata.Resolution) error

	// Subscribe requests notification when the kernel resolves vpid.
	Subscribe(ctx context.Context, vpid vref.Vref) error

	// DropImports, RetireImports, RetireExports are GC notifications; each
	// takes a sorted, duplicate-free list of object vrefs (spec.md §5).
	DropImports(ctx context.Context, vrefs []vref.Vref) error
	RetireImports(ctx context.Context, vrefs []vref.Vref) error
	RetireExports(ctx context.Context, vrefs []vref.Vref) error

	// CallNow issues a synchronous device call.
	CallNow(ctx context.Context, device vref.Vref, method string, args capdata.Capdata) (capdata.Capdata, error)

	// Exit terminates the vat. isFailure distinguishes a clean shutdown
	// from a fatal one (spec.md §7).
	Exit(ctx context.Context, isFailure bool, completion capdata.Capdata) error

	// VatstoreGet/Set/Delete are the optional key-value store syscalls,
	// enabled by vat configuration; keys are namespaced by the caller
	// (package vstore), not by the kernel.
	VatstoreGet(ctx context.Context, key string) (value []byte, found bool, err error)
	VatstoreSet(ctx context.Context, key string, value []byte) error
	VatstoreDelete(ctx context.Context, key string) error
}
