// Package errcode defines the stable error taxonomy shared by the measurement core.
package errcode

import "errors"

// Code is a stable error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK Code = "ok"

	// ResourceTimeout: a bounded lock or settings access timed out. Transient.
	ResourceTimeout Code = "resource_timeout"
	// SignalLost: an edge-capture guard elapsed without a single edge.
	SignalLost Code = "signal_lost"
	// StorageExhausted: no erased flash page is left. Fatal, device halts.
	StorageExhausted Code = "storage_exhausted"
	// UnderVoltage: battery below the configured minimum. Fatal, device halts.
	UnderVoltage Code = "under_voltage"
	// Validation: a settings change is out of range or unauthorized.
	Validation Code = "validation"
	// ConfigInconsistency: a multi-field update is internally inconsistent.
	ConfigInconsistency Code = "config_inconsistency"
	// NotInitialized: a hardware unit was used before initialization.
	NotInitialized Code = "not_initialized"
	// Busy: the resource is held by someone else (e.g. a page is already open).
	Busy Code = "busy"

	Error Code = "error" // generic fallback
)

// E wraps a Code with context and an optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

// New returns an *E for the given code, operation and message.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap returns an *E carrying err as its cause.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.X) match an *E carrying code X.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Of extracts a Code from an error chain, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// Fatal reports whether err must escalate to the fail-safe halt path.
func Fatal(err error) bool {
	switch Of(err) {
	case StorageExhausted, UnderVoltage:
		return true
	}
	return false
}
