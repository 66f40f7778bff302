/*
Package errors provides structured error handling for msgbus.

It defines a standard AppError type that includes:
  - Error Code (standardized strings like TRANSPORT_NOT_CONFIGURED, VALIDATION_ERROR)
  - Message (human-readable description)
  - Underlying Error (chaining)

The error taxonomy is "kinds, not types": every msgbus error
kind is a Code constant, and New builds an *AppError for any code.
Named constructors exist only for the generic kinds (NotFound,
InvalidArgument, Internal, Conflict, Forbidden).
*/
package errors

import (
	"errors"
	"fmt"
)

// Error codes used across msgbus.
const (
	CodeTransportNotConfigured   = "TRANSPORT_NOT_CONFIGURED"
	CodeSerializerNotConfigured  = "SERIALIZER_NOT_CONFIGURED"
	CodeNotImplemented           = "NOT_IMPLEMENTED"
	CodeUnknownMessageClass      = "UNKNOWN_MESSAGE_CLASS"
	CodeReceivedNotSubscribed    = "RECEIVED_MESSAGE_NOT_SUBSCRIBED"
	CodeValidation               = "VALIDATION_ERROR"
	CodeEncode                   = "ENCODE_ERROR"
	CodeDecode                   = "DECODE_ERROR"
	CodeCircuitOpen              = "CIRCUIT_OPEN"
	CodeDLQWrite                 = "DLQ_WRITE_ERROR"
	CodeNotFound                 = "NOT_FOUND"
	CodeInvalidArgument          = "INVALID_ARGUMENT"
	CodeInternal                 = "INTERNAL"
	CodeConflict                 = "CONFLICT"
	CodeForbidden                = "FORBIDDEN"
)

// AppError is a structured error carrying a stable machine-readable code,
// a human message, and an optional wrapped cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

// New creates an AppError with the given code, message and optional cause.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, target) to match on Code when target is an *AppError.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Wrap wraps an existing error as an internal AppError, preserving the cause.
func Wrap(err error, message string) *AppError {
	return New(CodeInternal, message, err)
}

// NotFound builds a not-found AppError.
func NotFound(message string, cause error) *AppError {
	return New(CodeNotFound, message, cause)
}

// InvalidArgument builds an invalid-argument AppError.
func InvalidArgument(message string, cause error) *AppError {
	return New(CodeInvalidArgument, message, cause)
}

// Internal builds an internal AppError.
func Internal(message string, cause error) *AppError {
	return New(CodeInternal, message, cause)
}

// Conflict builds a conflict AppError.
func Conflict(message string, cause error) *AppError {
	return New(CodeConflict, message, cause)
}

// Forbidden builds a forbidden AppError.
func Forbidden(message string, cause error) *AppError {
	return New(CodeForbidden, message, cause)
}

// Is re-exports the standard library helper so callers only need this package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As re-exports the standard library helper so callers only need this package.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Code extracts the Code of err if it is (or wraps) an *AppError.
func Code(err error) (string, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code, true
	}
	return "", false
}
