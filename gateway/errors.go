package gateway

import (
	"errors"
	"fmt"
)

// ApplicationErrorCode is shared by every failed query, causes are told
// apart by message and diagnostic only.
const ApplicationErrorCode = 9876

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrNotFound         = errors.New("not found")
	ErrUnsupported      = errors.New("query is not supported by runtime version")
)

type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindSnapshotUnavailable
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindSnapshotUnavailable:
		return "snapshot_unavailable"
	case KindUnsupported:
		return "unsupported"
	}
	return "internal"
}

// Error is the envelope every failure is reported with.
type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Diagnostic string `json:"data"`

	// Kind is not a part of the wire envelope.
	Kind Kind `json:"-"`

	cause error
}

func (e *Error) Error() string {
	return e.Message + ": " + e.Diagnostic
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Normalize wraps any failure into the envelope with the operation message.
func Normalize(message string, err error) *Error {
	return &Error{
		Code:       ApplicationErrorCode,
		Message:    message,
		Diagnostic: diagnostic(err),
		Kind:       kindOf(err),
		cause:      err,
	}
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrSnapshotNotFound):
		return KindSnapshotUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	}
	return KindInternal
}

func diagnostic(err error) string {
	if err == nil {
		return "unknown failure"
	}
	if d := fmt.Sprintf("%+v", err); d != "" {
		return d
	}
	return fmt.Sprintf("%T", err)
}

// ErrMethodNotFound is returned by Call for names outside of the catalogue.
var ErrMethodNotFound = errors.New("method not found")

// ParamsError - request params do not match the method declaration
type ParamsError struct {
	Method string
	Reason string
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("invalid params for %s: %s", e.Method, e.Reason)
}

// JSON-RPC codes for failures that happen before a query runs.
const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// AsEnvelope renders any Call failure as an envelope, query failures are
// returned unchanged.
func AsEnvelope(err error) *Error {
	var gErr *Error
	var pErr *ParamsError
	switch {
	case errors.As(err, &gErr):
		return gErr
	case errors.As(err, &pErr):
		return &Error{Code: CodeInvalidParams, Message: "invalid params", Diagnostic: pErr.Error(), cause: err}
	case errors.Is(err, ErrMethodNotFound):
		return &Error{Code: CodeMethodNotFound, Message: "method not found", Diagnostic: err.Error(), cause: err}
	}
	return &Error{Code: CodeInternalError, Message: "internal error", Diagnostic: diagnostic(err), cause: err}
}
