// Package simerr defines the error kinds shared by the translation layer.
//
// Every failure raised by sampling, encoding, graph building, assembly or
// ingestion wraps exactly one of the sentinels below, so callers can classify
// it with errors.Is regardless of how much context was added on the way up.
package simerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports missing or invalid parameters, such as a
	// non-constant distribution without a standard deviation.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnsupportedModel reports a mode-choice or departure-time model id
	// outside the supported set.
	ErrUnsupportedModel = errors.New("unsupported model")

	// ErrDanglingReference reports a reference to a node, edge, zone or
	// vehicle that is absent from the current index map.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrAssertionFailed reports a structural mismatch between the input
	// document that was sent and the output document that came back.
	ErrAssertionFailed = errors.New("assertion failed")

	// ErrIO reports an unreadable or unwritable document.
	ErrIO = errors.New("io error")

	// ErrAlreadyGenerated is returned when synthesis targets a population
	// whose agents already exist.
	ErrAlreadyGenerated = errors.New("population already generated")

	// ErrJobInFlight is returned when a job targets something another job is
	// still working on.
	ErrJobInFlight = errors.New("job already in flight")

	// ErrNotFound is returned by stores for missing records.
	ErrNotFound = errors.New("not found")
)

// DanglingReferenceError carries the kind and id of the unresolved reference.
type DanglingReferenceError struct {
	Kind string // "node", "edge", "road type", "vehicle"
	ID   int64
	From string // what held the reference, e.g. "edge 12"
}

func (e *DanglingReferenceError) Error() string {
	if e.From == "" {
		return fmt.Sprintf("%s: %s %d", ErrDanglingReference, e.Kind, e.ID)
	}
	return fmt.Sprintf("%s: %s references unknown %s %d", ErrDanglingReference, e.From, e.Kind, e.ID)
}

func (e *DanglingReferenceError) Unwrap() error { return ErrDanglingReference }

// Dangling builds a DanglingReferenceError.
func Dangling(kind string, id int64, from string) error {
	return &DanglingReferenceError{Kind: kind, ID: id, From: from}
}

// Configf formats a configuration error.
func Configf(format string, args ...any) error {
	return wrapf(ErrConfiguration, format, args...)
}

// Unsupportedf formats an unsupported-model error.
func Unsupportedf(format string, args ...any) error {
	return wrapf(ErrUnsupportedModel, format, args...)
}

// Assertf formats an assertion failure.
func Assertf(format string, args ...any) error {
	return wrapf(ErrAssertionFailed, format, args...)
}

// IO wraps err as an I/O failure of op on path.
func IO(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}

// NotFound reports a missing record.
func NotFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

func wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Describe returns a one-line, user-facing description of err. Internal
// error kinds are rendered as plain phrases rather than exposed as values.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrJobInFlight):
		return "another job is already running for this target"
	case errors.Is(err, ErrAlreadyGenerated):
		return "agents have already been generated for this population"
	default:
		return err.Error()
	}
}
