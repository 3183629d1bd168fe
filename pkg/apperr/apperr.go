// Package apperr provides the single typed error used across this
// module: a Kind sentinel, the component/operation that raised it, an
// optional wrapped cause, and a Retryable hook consulted by recovery
// policy.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of failure. Each Kind corresponds to one
// error condition named in the data-model and error-handling design.
type Kind string

const (
	OutOfMemory         Kind = "out_of_memory"
	InvalidArgument      Kind = "invalid_argument"
	SchemaFrozen         Kind = "schema_frozen"
	FieldClassMismatch   Kind = "field_class_mismatch"
	UndefinedKey         Kind = "undefined_key"
	UndefinedCounter     Kind = "undefined_counter"
	FieldsDifferKey      Kind = "fields_differ_key"
	FieldsDifferCounter  Kind = "fields_differ_counter"
	GetSetMismatch       Kind = "get_set_mismatch"
	BadIndex             Kind = "bad_index"
	UnsupportedIPv6      Kind = "unsupported_ipv6"
	Duplicate            Kind = "duplicate"
	NotFound             Kind = "not_found"
	StreamReadError      Kind = "stream_read_error"
	StreamWriteError     Kind = "stream_write_error"
	HeaderMalformed      Kind = "header_malformed"
	StarvedProducer      Kind = "starved_producer"
)

// Error is the sole error type produced by this module's own packages.
type Error struct {
	Kind      Kind
	Component string
	Op        string
	Cause     error

	// retryable marks the specific failure as transient (e.g. a
	// publish-rename hitting EXDEV/EBUSY); only NewRetryable sets it.
	retryable bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, apperr.New(someKind, ...)) compare by Kind,
// mirroring the common "sentinel by value" idiom without requiring
// callers to construct matching Component/Op.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Retryable reports whether the operation that produced e may succeed
// if retried unchanged. No Kind is retryable by default: only errors
// built with NewRetryable report true.
func (e *Error) Retryable() bool {
	if e.retryable {
		return true
	}
	return false
}

// New constructs an Error for component/op with the given kind and
// optional wrapped cause.
func New(kind Kind, component, op string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Cause: cause}
}

// NewRetryable is like New but marks the error as retryable; used by
// pkg/recstream's publish-rename path for transient filesystem errors.
func NewRetryable(kind Kind, component, op string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Cause: cause, retryable: true}
}

// Of reports the Kind of err if err is (or wraps) an *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
