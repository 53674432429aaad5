package vat

import (
	"context"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/syscall"
	"github.com/vatkit/liveslots/values"
	"github.com/vatkit/liveslots/vref"
)

// sendRegistry is the narrow slice of *registry.Registry the sender needs.
type sendRegistry interface {
	ConvertValToSlot(v values.Value) (vref.Vref, error)
}

// vatSender implements values.Sender: every eventual send allocates a
// fresh local promise vref for the result, pins it as pending, forwards
// to the kernel via syscall.send, and then subscribes to the result vref
// so the vat learns of its kernel-side resolution (spec.md §4.2).
type vatSender struct {
	sys syscall.Syscall
	reg sendRegistry
}

func newVatSender(sys syscall.Syscall, reg sendRegistry) *vatSender {
	return &vatSender{sys: sys, reg: reg}
}

func (s *vatSender) Send(ctx context.Context, target vref.Vref, method string, args capdata.Capdata) (vref.Vref, error) {
	p := values.NewPromise(vref.Vref{}, s)
	slot, err := s.reg.ConvertValToSlot(p)
	if err != nil {
		return vref.Vref{}, err
	}
	p.Vref = slot
	if err := s.sys.Send(ctx, target, method, args, slot); err != nil {
		return vref.Vref{}, err
	}
	if err := s.sys.Subscribe(ctx, slot); err != nil {
		return vref.Vref{}, err
	}
	return slot, nil
}

// vatDeviceCaller implements values.DeviceCaller over syscall.callNow,
// validating the device-call restrictions from spec.md §4.2 before every
// call: no promise arguments, no nested device nodes.
type vatDeviceCaller struct {
	sys    syscall.Syscall
	kindOf func(vref.Vref) (values.Value, bool)
}

func newVatDeviceCaller(sys syscall.Syscall, kindOf func(vref.Vref) (values.Value, bool)) *vatDeviceCaller {
	return &vatDeviceCaller{sys: sys, kindOf: kindOf}
}

func (d *vatDeviceCaller) CallNow(ctx context.Context, device vref.Vref, method string, args capdata.Capdata) (capdata.Capdata, error) {
	if err := values.CheckDeviceArgs(args, d.kindOf); err != nil {
		return capdata.Capdata{}, err
	}
	return d.sys.CallNow(ctx, device, method, args)
}
