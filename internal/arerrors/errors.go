// Package arerrors implements the core's wire-visible error taxonomy:
// NotFound, InvalidArgument, Internal, and ResourceExhausted. Every RPC handler returns one of
// these (or nil); the RPC server maps them onto JSON-RPC error codes without
// needing to know the originating component.
package arerrors

import "fmt"

// Code is the error taxonomy's discriminator.
type Code string

const (
	NotFound         Code = "not_found"
	InvalidArgument  Code = "invalid_argument"
	Internal         Code = "internal"
	ResourceExhausted Code = "resource_exhausted"
)

// JSON-RPC error codes used to report each Code on the wire. The taxonomy
// codes (-31001..-31004) lie outside the JSON-RPC 2.0 reserved range
// (-32768..-32000); the parse, method-not-found and invalid-params codes are
// the standard reserved ones.
const (
	RPCNotFound        = -31001
	RPCInvalidArgument = -31002
	RPCInternal        = -31003
	RPCParseError      = -32700
	RPCMethodNotFound  = -32601
	RPCInvalidParams   = -32602
	RPCResourceExhausted = -31004
)

// Error is a typed error carrying a wire-visible Code alongside a message
// and optional wrapped cause.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the taxonomy code carried by e.
func (e *Error) Code() Code { return e.code }

// NewNotFound builds a NotFound error, e.g. an unknown session id.
func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{code: NotFound, message: fmt.Sprintf(format, args...)}
}

// NewInvalidArgument builds an InvalidArgument error, e.g. a construction
// mode conflict or an empty frame batch.
func NewInvalidArgument(format string, args ...interface{}) *Error {
	return &Error{code: InvalidArgument, message: fmt.Sprintf(format, args...)}
}

// NewInternal builds an Internal error, wrapping an unexpected decoder or
// recorder fault.
func NewInternal(cause error, format string, args ...interface{}) *Error {
	return &Error{code: Internal, message: fmt.Sprintf(format, args...), cause: cause}
}

// NewResourceExhausted builds a ResourceExhausted error, e.g. insufficient
// free disk space to direct a new stream to file.
func NewResourceExhausted(format string, args ...interface{}) *Error {
	return &Error{code: ResourceExhausted, message: fmt.Sprintf(format, args...)}
}

// RPCCode maps err onto the JSON-RPC error code the wire layer should send.
// A nil *Error (or any error not produced by this package) maps to
// RPCInternal, matching the server-level exception interceptor described in
// the error handling design: every unhandled error still becomes a well
// formed RPC status rather than crashing the connection.
func RPCCode(err error) int {
	var e *Error
	if as, ok := err.(*Error); ok && as != nil {
		e = as
	} else {
		return RPCInternal
	}
	switch e.code {
	case NotFound:
		return RPCNotFound
	case InvalidArgument:
		return RPCInvalidArgument
	case ResourceExhausted:
		return RPCResourceExhausted
	default:
		return RPCInternal
	}
}

// Is reports whether err itself is an *Error with the given code, so callers
// can check `arerrors.Is(err, arerrors.NotFound)`. It does not unwrap err.
func Is(err error, code Code) bool {
	e, ok := err.(*Error)
	return ok && e.code == code
}
