// Package capdata defines the wire-agnostic serialized-value shape that
// flows across the vat/kernel boundary. Liveslots does not define a
// serialization format itself (spec.md §1 non-goals); Capdata is the
// minimal pair every marshaller implementation must produce and consume.
package capdata

import "github.com/vatkit/liveslots/vref"

// Capdata is a serialized value paired with the list of vrefs it
// references by index. Invariant (spec.md §6): every occurrence of a
// capability or promise in Body refers to exactly one entry in Slots by
// index; enforcing that structural correctness is the marshaller's job,
// not this package's.
type Capdata struct {
	Body  []byte
	Slots []vref.Vref
}

// Resolution is one entry of a syscall.resolve batch: a promise vref, a
// flag for whether it settled to a rejection, and the serialized
// settlement value.
type Resolution struct {
	Target     vref.Vref
	IsRejected bool
	Value      Capdata
}
