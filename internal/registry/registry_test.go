package registry

import (
	"errors"
	"testing"

	"github.com/vatkit/liveslots/values"
	"github.com/vatkit/liveslots/vref"
)

func newTestRegistry() *Registry {
	alloc := vref.NewIDAllocator()
	return New(alloc, nil,
		func(v vref.Vref) *values.Presence { return values.NewPresence(v, nil, nil) },
		func(v vref.Vref) *values.Promise { return values.NewPromise(v, nil) },
		func(v vref.Vref) *values.DeviceNode { return values.NewDeviceNode(v, nil) },
	)
}

func TestConvertValToSlotAllocatesAndCaches(t *testing.T) {
	r := newTestRegistry()
	rem := &values.Remotable{Methods: map[string]values.Method{}}

	s1, err := r.ConvertValToSlot(rem)
	if err != nil {
		t.Fatal(err)
	}
	if s1.Type() != vref.Object || s1.Allocator() != vref.Vat {
		t.Fatalf("unexpected coordinates: %+v", s1)
	}

	s2, err := r.ConvertValToSlot(rem)
	if err != nil {
		t.Fatal(err)
	}
	if s1 != s2 {
		t.Fatalf("export survived a second serialize with a different vref: %v vs %v", s1, s2)
	}
}

func TestConvertSlotToValCreatesPresenceForUnknownImport(t *testing.T) {
	r := newTestRegistry()
	s := vref.New(vref.Object, vref.Kernel, vref.Ordinary, 10)
	v, err := r.ConvertSlotToVal(s, "")
	if err != nil {
		t.Fatal(err)
	}
	p, ok := v.(*values.Presence)
	if !ok {
		t.Fatalf("expected *values.Presence, got %T", v)
	}
	if p.Vref != s {
		t.Fatalf("presence vref mismatch: %v vs %v", p.Vref, s)
	}

	// Same slot again must return the identical value, not a new Presence.
	v2, err := r.ConvertSlotToVal(s, "")
	if err != nil {
		t.Fatal(err)
	}
	if v2 != v {
		t.Fatal("expected identical presence on second lookup")
	}
}

func TestConvertSlotToValUnknownVatExportFails(t *testing.T) {
	r := newTestRegistry()
	s := vref.New(vref.Object, vref.Vat, vref.Ordinary, 99)
	_, err := r.ConvertSlotToVal(s, "")
	if !errors.Is(err, ErrUnknownExport) {
		t.Fatalf("expected ErrUnknownExport, got %v", err)
	}
}

func TestDisavowedValueFailsConvertValToSlot(t *testing.T) {
	r := newTestRegistry()
	s := vref.New(vref.Object, vref.Kernel, vref.Ordinary, 1)
	v, err := r.ConvertSlotToVal(s, "")
	if err != nil {
		t.Fatal(err)
	}
	r.Disavow(s)
	if _, err := r.ConvertValToSlot(v); !errors.Is(err, ErrDisavowedReference) {
		t.Fatalf("expected ErrDisavowedReference, got %v", err)
	}
}

func TestRetainExportedRemotablePinsUntilDropExport(t *testing.T) {
	r := newTestRegistry()
	rem := &values.Remotable{Methods: map[string]values.Method{}}
	s, _ := r.ConvertValToSlot(rem)
	r.RetainExportedRemotable(s)
	if !r.StillPinnedExport(s) {
		t.Fatal("expected export to be pinned")
	}
	r.DropExport(s)
	if r.StillPinnedExport(s) {
		t.Fatal("expected export unpinned after DropExport")
	}
}

func TestRootVrefIsStableAcrossReExport(t *testing.T) {
	r := newTestRegistry()
	root := &values.Remotable{Methods: map[string]values.Method{}}
	r.RegisterValue(vref.Root, root)
	s, err := r.ConvertValToSlot(root)
	if err != nil {
		t.Fatal(err)
	}
	if s != vref.Root {
		t.Fatalf("expected root vref %v, got %v", vref.Root, s)
	}
}

func TestRetireExportRemovesBothTables(t *testing.T) {
	r := newTestRegistry()
	rem := &values.Remotable{Methods: map[string]values.Method{}}
	s, _ := r.ConvertValToSlot(rem)
	r.RetireExport(s)
	if _, ok := r.GetValForSlot(s); ok {
		t.Fatal("expected slotToVal entry removed")
	}
	if _, ok := r.GetSlotForVal(rem); ok {
		t.Fatal("expected valToSlot entry removed")
	}
}

func TestDeadSetSortedAndClearable(t *testing.T) {
	r := newTestRegistry()
	r.deadSet[vref.New(vref.Object, vref.Kernel, vref.Ordinary, 10)] = struct{}{}
	r.deadSet[vref.New(vref.Object, vref.Kernel, vref.Ordinary, 2)] = struct{}{}
	dead := r.DeadSet()
	if len(dead) != 2 || dead[0].String() > dead[1].String() {
		t.Fatalf("expected lexicographically sorted dead set, got %v", dead)
	}
	r.ClearDeadSet(dead)
	if len(r.DeadSet()) != 0 {
		t.Fatal("expected dead set cleared")
	}
}
