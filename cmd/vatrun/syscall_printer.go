package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vatkit/liveslots/capdata"
	"github.com/vatkit/liveslots/vref"
)

func joinVrefs(vrefs []vref.Vref) string {
	parts := make([]string, len(vrefs))
	for i, v := range vrefs {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// printingSyscall is a syscall.Syscall that prints every call it receives
// to w instead of forwarding to a real kernel, so `vatrun run` can show an
// operator exactly what a vat would have asked the kernel to do. Its
// method set mirrors testutil.Syscall's one-for-one, since both exist for
// the same reason: to stand in for a real kernel connection while making
// every emitted syscall observable, one to assert on in tests, this one to
// print for a human.
type printingSyscall struct {
	mu sync.Mutex
	w  io.Writer

	vatstore map[string][]byte
}

func newPrintingSyscall(w io.Writer) *printingSyscall {
	return &printingSyscall{w: w, vatstore: make(map[string][]byte)}
}

func (s *printingSyscall) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}

func (s *printingSyscall) Send(ctx context.Context, target vref.Vref, method string, args capdata.Capdata, result vref.Vref) error {
	s.printf("syscall.send target=%s method=%q args=%q result=%s\n", target, method, args.Body, result)
	return nil
}

func (s *printingSyscall) Resolve(ctx context.Context, resolutions []capdata.Resolution) error {
	for _, r := range resolutions {
		s.printf("syscall.resolve target=%s isRejected=%t value=%q\n", r.Target, r.IsRejected, r.Value.Body)
	}
	return nil
}

func (s *printingSyscall) Subscribe(ctx context.Context, vpid vref.Vref) error {
	s.printf("syscall.subscribe vpid=%s\n", vpid)
	return nil
}

func (s *printingSyscall) DropImports(ctx context.Context, vrefs []vref.Vref) error {
	s.printf("syscall.dropImports %s\n", joinVrefs(vrefs))
	return nil
}

func (s *printingSyscall) RetireImports(ctx context.Context, vrefs []vref.Vref) error {
	s.printf("syscall.retireImports %s\n", joinVrefs(vrefs))
	return nil
}

func (s *printingSyscall) RetireExports(ctx context.Context, vrefs []vref.Vref) error {
	s.printf("syscall.retireExports %s\n", joinVrefs(vrefs))
	return nil
}

func (s *printingSyscall) CallNow(ctx context.Context, device vref.Vref, method string, args capdata.Capdata) (capdata.Capdata, error) {
	s.printf("syscall.callNow device=%s method=%q args=%q\n", device, method, args.Body)
	return capdata.Capdata{}, nil
}

func (s *printingSyscall) Exit(ctx context.Context, isFailure bool, completion capdata.Capdata) error {
	s.printf("syscall.exit isFailure=%t completion=%q\n", isFailure, completion.Body)
	return nil
}

func (s *printingSyscall) VatstoreGet(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vatstore[key]
	return v, ok, nil
}

func (s *printingSyscall) VatstoreSet(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vatstore[key] = value
	return nil
}

func (s *printingSyscall) VatstoreDelete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vatstore, key)
	return nil
}
