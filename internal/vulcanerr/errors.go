// Package vulcanerr defines the typed error taxonomy shared by every Vulcan
// CI process: ValidationError, NotFound, Conflict, Transient, and Fatal.
package vulcanerr

import "fmt"

// CompileErrorKind enumerates the workflow compiler's typed validation failures.
type CompileErrorKind string

const (
	InvalidSyntax    CompileErrorKind = "InvalidSyntax"
	MissingRequired  CompileErrorKind = "MissingRequired"
	MutualExclusion  CompileErrorKind = "MutualExclusion"
	InvalidURL       CompileErrorKind = "InvalidUrl"
	FetchFailed      CompileErrorKind = "FetchFailed"
	CircularImport   CompileErrorKind = "CircularImport"
	NoMachine        CompileErrorKind = "NoMachine"
	TriggerMismatch  CompileErrorKind = "TriggerMismatch"
	ImportsDisabled  CompileErrorKind = "ImportsDisabled"
)

// CompileError is a ValidationError raised by the workflow compiler at the
// first offending node. Position is a human-readable location in the document
// (e.g. "line 3") and may be empty when not applicable.
type CompileError struct {
	Kind     CompileErrorKind
	Position string
	Message  string
}

func (e *CompileError) Error() string {
	if e.Position != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Position, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is allows errors.Is(err, &CompileError{Kind: ...}) to match on kind alone.
func (e *CompileError) Is(target error) bool {
	t, ok := target.(*CompileError)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return t.Kind == e.Kind
}

// NotFoundError is returned when a worker or fragment identifier is unknown.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError marks a request that is not an error but also not actionable
// — e.g. a report_result for a fragment no longer assigned to the reporter.
// Callers treat it as an idempotent no-op, per spec §7.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// TransientError wraps a failure expected to be retried by the caller
// (store I/O, network timeouts) rather than surfaced as a hard failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// FatalError marks misconfiguration discovered at process startup; the
// caller is expected to log and exit non-zero.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
