package core

import (
	"fmt"
	"strings"
	"time"
)

// DiscoveryError is returned when the models tree cannot be read.
type DiscoveryError struct {
	Path string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for %s: %v", e.Path, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ParseError is returned when a model's SQL cannot be parsed.
type ParseError struct {
	Path    string
	Message string
	// Offset is the byte offset of the error, or -1 when unknown.
	Offset int
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: parse error at offset %d: %s", e.Path, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s: parse error: %s", e.Path, e.Message)
}

// MultipleStatementsError is returned when a model file holds more than one
// top-level statement.
type MultipleStatementsError struct {
	Path  string
	Count int
}

func (e *MultipleStatementsError) Error() string {
	return fmt.Sprintf("%s: expected exactly one statement, found %d", e.Path, e.Count)
}

// DuplicateModelError is returned when two files resolve to the same
// qualified name.
type DuplicateModelError struct {
	QualifiedName string
	Paths         []string
}

func (e *DuplicateModelError) Error() string {
	return fmt.Sprintf("duplicate model %s defined in %s", e.QualifiedName, strings.Join(e.Paths, ", "))
}

// CycleError is returned when model dependencies form a cycle. Path lists
// the cycle members in edge order.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	return fmt.Sprintf("dependency cycle detected: %s -> %s", strings.Join(e.Path, " -> "), e.Path[0])
}

// ModelNotFoundError is returned when a selector matches no model.
type ModelNotFoundError struct {
	Name string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.Name)
}

// UnsupportedDialectError is returned when no adapter serves a dialect.
type UnsupportedDialectError struct {
	Dialect   string
	Available []string
}

func (e *UnsupportedDialectError) Error() string {
	return fmt.Sprintf("unsupported dialect %q (available: %s)", e.Dialect, strings.Join(e.Available, ", "))
}

// InvalidConnectionStringError is returned by connection string validation,
// before any I/O happens.
type InvalidConnectionStringError struct {
	Dialect string
	Reason  string
}

func (e *InvalidConnectionStringError) Error() string {
	return fmt.Sprintf("invalid %s connection string: %s", e.Dialect, e.Reason)
}

// ConnectionError is returned when a connection cannot be established.
type ConnectionError struct {
	Dialect string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Dialect, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError is returned when an operation exceeds its deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ErrorKind categorizes execution failures.
type ErrorKind string

// Execution error kinds.
const (
	KindSyntax          ErrorKind = "syntax"
	KindConstraint      ErrorKind = "constraint"
	KindConnectivity    ErrorKind = "connectivity"
	KindTimeout         ErrorKind = "timeout"
	KindPermission      ErrorKind = "permission"
	KindUndefinedObject ErrorKind = "undefined_object"
	KindUnknown         ErrorKind = "unknown"
)

// ExecutionError is returned when the database rejects a model's SQL.
type ExecutionError struct {
	Kind ErrorKind
	// Code is the database error code (SQLSTATE for postgres), if any.
	Code string
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// NotImplementedError is returned by adapters that are declared but not
// yet able to talk to their backend.
type NotImplementedError struct {
	Dialect string
	Op      string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("%s adapter: %s is not implemented", e.Dialect, e.Op)
}
