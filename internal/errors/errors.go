package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess        Code = 0
	CodeInternal       Code = 1
	CodeUsage          Code = 2
	CodeAuth           Code = 10
	CodeRateLimited    Code = 11
	CodeUnavailable    Code = 12
	CodeUnsupported    Code = 13
	CodeValidation     Code = 14
	CodeRemoteRejected Code = 15
	CodeSafetyGate     Code = 16
	CodeExpired        Code = 17
	CodeNotFound       Code = 18
)

// Kind returns the taxonomy name rendered in error envelopes.
func (c Code) Kind() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeUsage:
		return "usage"
	case CodeAuth:
		return "authentication_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "network_error"
	case CodeUnsupported:
		return "unsupported_operation"
	case CodeValidation:
		return "validation_error"
	case CodeRemoteRejected:
		return "remote_rejection"
	case CodeSafetyGate:
		return "safety_gate_violation"
	case CodeExpired:
		return "expired"
	case CodeNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if cliErr, ok := As(err); ok {
		return cliErr.Code == code
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}
