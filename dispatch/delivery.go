// Package dispatch implements the Dispatch Core (spec.md §4.4): the
// `dispatch(delivery)` crank loop that turns one kernel-delivered message,
// notification, or GC notice into user-visible work, waits for the vat to
// quiesce, and drains distributed GC before returning.
//
// Grounded on two teacher shapes at once: message.go's Message.Eval
// (strictly sequential, one step completes before the next begins) for
// the idea that a crank runs to completion without interleaving, and
// scheduler.go's schedule() select-loop (a single goroutine owning all
// mutable state, everyone else communicates by channel) for the
// single-goroutine-owns-the-vat discipline spec.md §5 requires.
package dispatch

import (
	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/vref"
)

// Kind tags the five delivery shapes spec.md §4.4/§6 define.
type Kind int

const (
	// Message delivers a method call to a vat-exported target.
	Message Kind = iota
	// Notify delivers a batch of promise settlements.
	Notify
	// DropExports unpins a batch of vat-allocated object vrefs.
	DropExports
	// RetireExports removes a batch of vat-allocated object vrefs entirely.
	RetireExports
	// RetireImports is a sanity-check-only notice about kernel-allocated
	// object vrefs this vat already dropped.
	RetireImports
)

func (k Kind) String() string {
	switch k {
	case Message:
		return "message"
	case Notify:
		return "notify"
	case DropExports:
		return "dropExports"
	case RetireExports:
		return "retireExports"
	case RetireImports:
		return "retireImports"
	default:
		return "unknown"
	}
}

// NotifyEntry is one [vpid, isRejected, capdata] triple from a notify
// batch.
type NotifyEntry struct {
	Vpid       vref.Vref
	IsRejected bool
	Value      capdata.Capdata
}

// Delivery is the tagged record dispatch() accepts. Only the fields
// relevant to Kind are populated; the zero value of an unused field is
// ignored.
type Delivery struct {
	Kind Kind

	// Message fields.
	Target vref.Vref
	Method string
	Args   capdata.Capdata
	Result vref.Vref // zero Vref means "no result requested"

	// Notify field.
	Notifications []NotifyEntry

	// DropExports / RetireExports / RetireImports field.
	Vrefs []vref.Vref
}

// NewMessage constructs a message delivery. result may be the zero Vref
// if the caller requested no result.
func NewMessage(target vref.Vref, method string, args capdata.Capdata, result vref.Vref) Delivery {
	return Delivery{Kind: Message, Target: target, Method: method, Args: args, Result: result}
}

// NewNotify constructs a notify delivery for the given batch.
func NewNotify(entries []NotifyEntry) Delivery {
	return Delivery{Kind: Notify, Notifications: entries}
}

// NewDropExports constructs a dropExports delivery.
func NewDropExports(vrefs []vref.Vref) Delivery {
	return Delivery{Kind: DropExports, Vrefs: vrefs}
}

// NewRetireExports constructs a retireExports delivery.
func NewRetireExports(vrefs []vref.Vref) Delivery {
	return Delivery{Kind: RetireExports, Vrefs: vrefs}
}

// NewRetireImports constructs a retireImports delivery.
func NewRetireImports(vrefs []vref.Vref) Delivery {
	return Delivery{Kind: RetireImports, Vrefs: vrefs}
}
