// Package apperr implements the closed, extensible error-code set shared
// by the RPC transport (pkg/rpc) and the REST surface (pkg/api), and the
// single result type that distinguishes a domain error (mapped to a
// specific HTTP/RPC code) from an infrastructure error (mapped to 5xx
// and logged).
package apperr

import "fmt"

// Code is one member of the closed RPC/REST error-code set.
type Code string

const (
	InvalidRequest    Code = "INVALID_REQUEST"
	MethodNotFound    Code = "METHOD_NOT_FOUND"
	Timeout           Code = "TIMEOUT"
	TransportClosed   Code = "TRANSPORT_CLOSED"
	TransportSuperseded Code = "TRANSPORT_SUPERSEDED"
	Unauthorized      Code = "UNAUTHORIZED"
	Forbidden         Code = "FORBIDDEN"
	VMNotFound        Code = "VM_NOT_FOUND"
	VolumeNotFound    Code = "VOLUME_NOT_FOUND"
	NetworkNotFound   Code = "NETWORK_NOT_FOUND"
	NodeNotFound      Code = "NODE_NOT_FOUND"
	NodeOffline       Code = "NODE_OFFLINE"
	IPExhausted       Code = "IP_EXHAUSTED"
	PreconditionFailed Code = "PRECONDITION_FAILED"
	HypervisorError   Code = "HYPERVISOR_ERROR"
	StorageError      Code = "STORAGE_ERROR"
	NetworkError      Code = "NETWORK_ERROR"
	Internal          Code = "INTERNAL"
)

// Kind classifies an Error for propagation policy (spec.md §7).
type Kind int

const (
	// KindValidation: client-caused, rejected pre-commit, HTTP 4xx.
	KindValidation Kind = iota
	// KindPrecondition: row exists but state disallows the operation, HTTP 409.
	KindPrecondition
	// KindTransport: agent unreachable/timeout; intent+task already committed, HTTP 202.
	KindTransport
	// KindDriver: hypervisor/storage/network failure reported by the agent, HTTP 500/502.
	KindDriver
	// KindInfra: internal/invariant violation, HTTP 500, always logged.
	KindInfra
)

// Error is the single result type every orchestration and RPC call
// returns in place of a bare error, so callers can branch on Code
// without string matching.
type Error struct {
	Code      Code
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(code Code, kind Kind, format string, args ...any) *Error {
	return &Error{Code: code, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a lower-level cause.
func Wrap(code Code, kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Precondition is a convenience constructor for the common
// PRECONDITION_FAILED / HTTP 409 case.
func Precondition(format string, args ...any) *Error {
	return New(PreconditionFailed, KindPrecondition, format, args...)
}

// NotFound builds a KindValidation error carrying the given not-found code.
func NotFound(code Code, format string, args ...any) *Error {
	return New(code, KindValidation, format, args...)
}

// AsAppError unwraps err into an *Error, synthesizing an internal one if
// it is not already typed.
func AsAppError(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return Wrap(Internal, KindInfra, err, "unexpected error")
}
