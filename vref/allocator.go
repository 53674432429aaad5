package vref

import "sync/atomic"

// IDAllocator mints fresh vat-allocated vrefs. Counters are monotonically
// increasing and never reused within a vat's lifetime, mirroring the
// teacher's atomic object-id counter (internal/object.go's
// objcounter/nextObject pair), generalized to one counter per (type, kind)
// bucket since objects, promises, and virtual objects each need their own
// id space.
type IDAllocator struct {
	objects  uint64 // next ordinary vat-allocated object id; 0 is reserved for Root
	virtuals uint64
	promises uint64
	devices  uint64

	rootIssued bool
}

// NewIDAllocator returns an allocator whose first NextObject call returns
// id 1; Root itself is a fixed constant, not allocated.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{rootIssued: true}
}

// NextObject allocates a fresh vat-allocated ordinary object id.
func (a *IDAllocator) NextObject() Vref {
	id := atomic.AddUint64(&a.objects, 1)
	return New(Object, Vat, Ordinary, id)
}

// NextVirtualObject allocates a fresh vat-allocated virtual object id.
func (a *IDAllocator) NextVirtualObject() Vref {
	id := atomic.AddUint64(&a.virtuals, 1)
	return New(Object, Vat, Virtual, id)
}

// NextPromise allocates a fresh vat-allocated promise id.
func (a *IDAllocator) NextPromise() Vref {
	id := atomic.AddUint64(&a.promises, 1)
	return New(Promise, Vat, Ordinary, id)
}

// NextDevice allocates a fresh vat-allocated device id.
func (a *IDAllocator) NextDevice() Vref {
	id := atomic.AddUint64(&a.devices, 1)
	return New(Device, Vat, Ordinary, id)
}
