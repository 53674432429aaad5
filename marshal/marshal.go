// Package marshal implements the Marshaller Bridge (spec.md §4.3): glue
// between a pluggable value<->capdata serializer and the Slot Registry.
package marshal

import (
	"context"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/values"
	"github.com/vatkit/liveslots/vref"
)

// ValToSlot resolves a value to its vref, allocating one if unseen.
type ValToSlot func(v values.Value) (vref.Vref, error)

// SlotToVal resolves a vref to its in-vat value, materializing one if
// unseen. iface is advisory typing information passed through from the
// marshaller, per spec.md §4.1's "iface?" parameter.
type SlotToVal func(s vref.Vref, iface string) (values.Value, error)

// Marshaller is the pluggable value<->capdata serializer liveslots defers
// to (spec.md §1 non-goals: liveslots does not define the wire format).
// It is parametrized by ValToSlot/SlotToVal exactly as spec.md §4.3
// describes, rather than holding a reference to the registry directly, so
// any wire format (CBOR, a custom capn-proto-like scheme, JSON for tests)
// can be plugged in without depending on this module's internals.
type Marshaller interface {
	// Serialize converts body (an arbitrary in-vat value graph containing
	// zero or more Values) into Capdata, calling toSlot for every Value it
	// encounters.
	Serialize(ctx context.Context, body interface{}, toSlot ValToSlot) (capdata.Capdata, error)
	// Unserialize converts Capdata back into an in-vat value graph,
	// calling toVal for every slot index it encounters.
	Unserialize(ctx context.Context, cd capdata.Capdata, toVal SlotToVal) (interface{}, error)
}

// Bridge wires a Marshaller to a Slot Registry: on serialize, every
// emitted slot is passed through RetainExportedRemotable so the kernel can
// rely on the export surviving (spec.md §4.3); on deserialize, unknown
// slots are materialized through the registry's ConvertSlotToVal.
type Bridge struct {
	m   Marshaller
	reg Registry
}

// Registry is the subset of *registry.Registry the bridge needs, kept as
// an interface so marshal does not import the registry package directly
// and so tests can substitute a fake.
type Registry interface {
	ConvertValToSlot(v values.Value) (vref.Vref, error)
	ConvertSlotToVal(s vref.Vref, iface string) (values.Value, error)
	RetainExportedRemotable(s vref.Vref)
}

// NewBridge constructs a Bridge over the given marshaller and registry.
func NewBridge(m Marshaller, reg Registry) *Bridge {
	return &Bridge{m: m, reg: reg}
}

// Serialize converts body to Capdata and pins every newly-exported
// Remotable slot it discovers.
func (b *Bridge) Serialize(ctx context.Context, body interface{}) (capdata.Capdata, error) {
	cd, err := b.m.Serialize(ctx, body, b.reg.ConvertValToSlot)
	if err != nil {
		return capdata.Capdata{}, err
	}
	for _, s := range cd.Slots {
		b.reg.RetainExportedRemotable(s)
	}
	return cd, nil
}

// Unserialize converts Capdata back to an in-vat value graph, materializing
// Presences/Promises/DeviceNodes for any previously-unseen slots.
func (b *Bridge) Unserialize(ctx context.Context, cd capdata.Capdata) (interface{}, error) {
	return b.m.Unserialize(ctx, cd, b.reg.ConvertSlotToVal)
}
