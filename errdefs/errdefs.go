// Package errdefs defines the error kinds reported by the cleaning pipeline.
//
// Every failure surfaced by a stage is one of four kinds:
//   - FormatError: a malformed input line.
//   - ConfigError: an invalid configuration value.
//   - IOError: a failed open, read, write, rename or remove.
//   - InvariantViolation: an internal consistency failure, always a bug.
//
// All kinds wrap an underlying cause and can be matched with errors.As
// through any number of fmt.Errorf("...: %w") layers. The Is* helpers are
// shorthands for that.
package errdefs

import (
	"errors"
	"fmt"
)

// NoPartition is used in IOError and InvariantViolation when the failure is
// not tied to a partition.
const NoPartition = -1

// FormatError reports a malformed line in the source log.
type FormatError struct {
	Line   int   // 1-based line number
	Offset int64 // byte offset of the line start
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("format error at line %d (offset %d): %s", e.Line, e.Offset, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// NewConfigError is a convenience constructor.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IOError reports a file system failure. Partition is NoPartition for the
// source and output files.
type IOError struct {
	Op        string
	Path      string
	Partition int
	Err       error
}

func (e *IOError) Error() string {
	if e.Partition != NoPartition {
		return fmt.Sprintf("io error: %s %s (partition %d): %v", e.Op, e.Path, e.Partition, e.Err)
	}
	return fmt.Sprintf("io error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIOError wraps err unless it is nil or already carries a kind.
func NewIOError(op, path string, partition int, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != "" {
		return err
	}
	return &IOError{Op: op, Path: path, Partition: partition, Err: err}
}

// InvariantViolation reports an internal consistency failure. It is never
// retried.
type InvariantViolation struct {
	Partition int
	Offset    int64
	Expected  string
	Actual    string
	Detail    string
	Err       error
}

func (e *InvariantViolation) Error() string {
	msg := fmt.Sprintf("invariant violation: %s (partition %d, offset %d", e.Detail, e.Partition, e.Offset)
	if e.Expected != "" || e.Actual != "" {
		msg += fmt.Sprintf(", expected %q, actual %q", e.Expected, e.Actual)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvariantViolation) Unwrap() error { return e.Err }

// IsFormat reports whether err is or wraps a FormatError.
func IsFormat(err error) bool {
	var target *FormatError
	return errors.As(err, &target)
}

// IsConfig reports whether err is or wraps a ConfigError.
func IsConfig(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// IsIO reports whether err is or wraps an IOError.
func IsIO(err error) bool {
	var target *IOError
	return errors.As(err, &target)
}

// IsInvariant reports whether err is or wraps an InvariantViolation.
func IsInvariant(err error) bool {
	var target *InvariantViolation
	return errors.As(err, &target)
}

// Kind names the kind carried by err, or "" when it carries none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsInvariant(err):
		return "invariant"
	case IsFormat(err):
		return "format"
	case IsConfig(err):
		return "config"
	case IsIO(err):
		return "io"
	default:
		return ""
	}
}
