package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so adapters can map them to their own protocol.
type ErrorKind string

const (
	KindValidation       ErrorKind = "VALIDATION_ERROR"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindForbidden        ErrorKind = "FORBIDDEN"
	KindConflict         ErrorKind = "CONFLICT"
	KindInvalidState     ErrorKind = "INVALID_STATE"
	KindRefundIneligible ErrorKind = "REFUND_INELIGIBLE"
	KindInvalidSignature ErrorKind = "INVALID_SIGNATURE"
	KindUpstreamProvider ErrorKind = "UPSTREAM_PROVIDER_ERROR"
)

// Error is a classified domain error
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

func InvalidState(format string, args ...any) *Error {
	return newError(KindInvalidState, format, args...)
}

func RefundIneligible(format string, args ...any) *Error {
	return newError(KindRefundIneligible, format, args...)
}

// InvalidSignature wraps the verification failure reported by the gateway
func InvalidSignature(err error) *Error {
	return &Error{Kind: KindInvalidSignature, Message: "invalid webhook signature", Err: err}
}

// UpstreamProviderError wraps a failed gateway call
func UpstreamProviderError(op string, err error) *Error {
	return &Error{Kind: KindUpstreamProvider, Message: op + " failed at payment provider", Err: err}
}
