package dispatch

import "fmt"

// ErrKind names one of the abstract error categories from spec.md §7.
// These are classification tags, not error values to compare directly;
// use CrankError.Kind.
type ErrKind int

const (
	// ProtocolErrorKind: the kernel delivered a malformed or inconsistent
	// message. Benign cases are logged and ignored; protocol-breaking
	// cases terminate the vat.
	ProtocolErrorKind ErrKind = iota
	// UserErrorKind: user code threw synchronously or returned a rejected
	// promise in response to a delivery with a result vref.
	UserErrorKind
	// DisavowedReferenceKind: user code invoked a method on a disavowed
	// presence.
	DisavowedReferenceKind
	// BadMethodNameKind, PromiseInDeviceCallKind, DeviceOfDeviceKind,
	// UnknownExportKind: user-side misuse with no syscall side effects.
	BadMethodNameKind
	PromiseInDeviceCallKind
	DeviceOfDeviceKind
	UnknownExportKind
	// InternalInvariantKind: liveslots detected a broken invariant.
	InternalInvariantKind
)

func (k ErrKind) String() string {
	switch k {
	case ProtocolErrorKind:
		return "ProtocolError"
	case UserErrorKind:
		return "UserError"
	case DisavowedReferenceKind:
		return "DisavowedReference"
	case BadMethodNameKind:
		return "BadMethodName"
	case PromiseInDeviceCallKind:
		return "PromiseInDeviceCall"
	case DeviceOfDeviceKind:
		return "DeviceOfDevice"
	case UnknownExportKind:
		return "UnknownExport"
	case InternalInvariantKind:
		return "InternalInvariant"
	default:
		return "unknown"
	}
}

// CrankError wraps an underlying error with the abstract classification
// spec.md §7 requires. Fatal marks errors that, per the propagation
// policy, should terminate the vat via syscall.exit rather than merely
// being logged or resolved.
type CrankError struct {
	Kind  ErrKind
	Err   error
	Fatal bool
}

func (e *CrankError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CrankError) Unwrap() error { return e.Err }

func newCrankError(kind ErrKind, fatal bool, err error) *CrankError {
	return &CrankError{Kind: kind, Err: err, Fatal: fatal}
}
