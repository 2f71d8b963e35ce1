// Package ddserr defines the DDS error taxonomy (spec.md §7) and the
// thin panic-on-setup-error helper the rest of the module uses during
// irrecoverable initialization, following the one-line helper shape of
// the teacher's common/go/xerror package.
package ddserr

import "errors"

// Sentinel errors matching the DDS return-code taxonomy of spec.md §7.
// Component errors should wrap one of these with fmt.Errorf("...: %w", ...)
// so that Classify can map them to a Code for the application-facing API.
var (
	// ErrBadParameter signals a GUID not found or an otherwise invalid
	// argument.
	ErrBadParameter = errors.New("bad parameter")

	// ErrPreconditionNotMet signals an entity in the wrong lifecycle
	// state, e.g. a participant that already exists or a writer already
	// in the DELETING state.
	ErrPreconditionNotMet = errors.New("precondition not met")

	// ErrOutOfResources signals allocation failure, a participant-count
	// cap reached, or inability to create a network endpoint.
	ErrOutOfResources = errors.New("out of resources")

	// ErrTimeout signals a blocking write exceeded its configured
	// max_blocking_time.
	ErrTimeout = errors.New("timeout")

	// ErrNotAllowedBySecurity signals that authentication or
	// access-control rejected the operation.
	ErrNotAllowedBySecurity = errors.New("not allowed by security")
)

// Code is the DDS return-code enumeration used to classify an error for
// callers that branch on error kind rather than on the chain's text.
type Code int

const (
	CodeOK Code = iota
	CodeBadParameter
	CodePreconditionNotMet
	CodeOutOfResources
	CodeTimeout
	CodeNotAllowedBySecurity
	CodeUnknown
)

// Classify maps an error wrapping one of the sentinels above to its
// Code. It returns CodeOK if err is nil and CodeUnknown if err does not
// wrap a known sentinel.
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrBadParameter):
		return CodeBadParameter
	case errors.Is(err, ErrPreconditionNotMet):
		return CodePreconditionNotMet
	case errors.Is(err, ErrOutOfResources):
		return CodeOutOfResources
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrNotAllowedBySecurity):
		return CodeNotAllowedBySecurity
	default:
		return CodeUnknown
	}
}

// Unwrap returns t if e is nil, and panics with e otherwise. It is meant
// for use during process setup (config load, listener bind) where an
// error is always a fatal misconfiguration, mirroring the teacher's
// xerror.Unwrap helper used at equivalent call sites.
func Unwrap[T any](t T, e error) T {
	if e != nil {
		panic(e)
	}
	return t
}
