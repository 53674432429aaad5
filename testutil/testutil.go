// Package testutil provides shared fakes for exercising a vat end to end
// without a real kernel: a recording syscall.Syscall, so the seed
// scenarios in spec.md §8 can assert on exact ordered syscall batches, and
// a gctools.Tools whose quiescence check is immediate and whose
// GCAndFinalize uses a real collector only when one is supplied.
package testutil

import (
	"context"
	"sync"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/vref"
)

// Syscall records every call a vat makes through the kernel-facing
// interface, in order, so tests can assert on exact sequences (spec.md
// §8 seed scenarios 1-6).
type Syscall struct {
	mu sync.Mutex

	Sends          []SendCall
	Resolves       [][]capdata.Resolution
	Subscribes     []vref.Vref
	DropImportsLog [][]vref.Vref
	RetireImportsLog [][]vref.Vref
	RetireExportsLog [][]vref.Vref
	CallNows       []CallNowCall
	Exits          []ExitCall
	Vatstore       map[string][]byte

	// SendErr and ResolveErr, if non-nil, are returned by every Send and
	// Resolve call respectively (after the call has been recorded), so
	// tests can simulate a failing kernel connection.
	SendErr    error
	ResolveErr error
}

// SendCall records one syscall.send.
type SendCall struct {
	Target vref.Vref
	Method string
	Args   capdata.Capdata
	Result vref.Vref
}

// CallNowCall records one syscall.callNow.
type CallNowCall struct {
	Device vref.Vref
	Method string
	Args   capdata.Capdata
}

// ExitCall records one syscall.exit.
type ExitCall struct {
	IsFailure  bool
	Completion capdata.Capdata
}

// NewSyscall returns an empty recording fake.
func NewSyscall() *Syscall {
	return &Syscall{Vatstore: make(map[string][]byte)}
}

func (s *Syscall) Send(ctx context.Context, target vref.Vref, method string, args capdata.Capdata, result vref.Vref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sends = append(s.Sends, SendCall{Target: target, Method: method, Args: args, Result: result})
	return s.SendErr
}

func (s *Syscall) Resolve(ctx context.Context, resolutions []capdata.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resolves = append(s.Resolves, resolutions)
	return s.ResolveErr
}

func (s *Syscall) Subscribe(ctx context.Context, vpid vref.Vref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Subscribes = append(s.Subscribes, vpid)
	return nil
}

func (s *Syscall) DropImports(ctx context.Context, vrefs []vref.Vref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DropImportsLog = append(s.DropImportsLog, vrefs)
	return nil
}

func (s *Syscall) RetireImports(ctx context.Context, vrefs []vref.Vref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RetireImportsLog = append(s.RetireImportsLog, vrefs)
	return nil
}

func (s *Syscall) RetireExports(ctx context.Context, vrefs []vref.Vref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RetireExportsLog = append(s.RetireExportsLog, vrefs)
	return nil
}

func (s *Syscall) CallNow(ctx context.Context, device vref.Vref, method string, args capdata.Capdata) (capdata.Capdata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallNows = append(s.CallNows, CallNowCall{Device: device, Method: method, Args: args})
	return capdata.Capdata{}, nil
}

func (s *Syscall) Exit(ctx context.Context, isFailure bool, completion capdata.Capdata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Exits = append(s.Exits, ExitCall{IsFailure: isFailure, Completion: completion})
	return nil
}

func (s *Syscall) VatstoreGet(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Vatstore[key]
	return v, ok, nil
}

func (s *Syscall) VatstoreSet(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Vatstore[key] = value
	return nil
}

func (s *Syscall) VatstoreDelete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Vatstore, key)
	return nil
}

// Tools is a synchronous gctools.Tools fake: quiescence is immediate, and
// GCAndFinalize delegates to the Runtime field when it is set (typically a
// *gctools.Runtime, so finalizer timing in tests goes through the real
// runtime.GC()-backed mechanism). With Runtime nil, GCAndFinalize does
// nothing -- only the quiescence predicate is always faked.
type Tools struct {
	Runtime interface {
		GCAndFinalize(ctx context.Context)
	}
}

func (t *Tools) WaitUntilQuiescent(ctx context.Context) error { return nil }

func (t *Tools) GCAndFinalize(ctx context.Context) {
	if t.Runtime != nil {
		t.Runtime.GCAndFinalize(ctx)
	}
}
