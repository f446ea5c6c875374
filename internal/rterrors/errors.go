// Package rterrors implements the runtime's closed error taxonomy:
// Transport, Protocol, Timeout, Backpressure, Cancelled, Fatal. Each Error
// carries an Op, a Descriptor identifying the connection handle it
// concerns (if any), a Code, a message, and an optional wrapped cause.
package rterrors

import (
	"errors"
	"fmt"

	"github.com/wolfhead/meridian/internal/iodesc"
)

// Code is the high-level error category, a closed enum over the six
// taxonomy members.
type Code string

const (
	CodeTransport    Code = "transport"
	CodeProtocol     Code = "protocol"
	CodeTimeout      Code = "timeout"
	CodeBackpressure Code = "backpressure"
	CodeCancelled    Code = "cancelled"
	CodeFatal        Code = "fatal"
)

// Error is the runtime's structured error type.
type Error struct {
	Op         string
	Descriptor iodesc.Descriptor
	Code       Code
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if !e.Descriptor.Zero() {
		return fmt.Sprintf("meridian: %s: %s (op=%s descriptor=%d/%d)", e.Code, msg, e.Op, e.Descriptor.Slot, e.Descriptor.Generation)
	}
	return fmt.Sprintf("meridian: %s: %s (op=%s)", e.Code, msg, e.Op)
}

// Unwrap supports errors.Is/As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports equality by Code: callers compare by category, not by
// message.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// New builds an Error with op and code, no descriptor context.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewWithDescriptor builds an Error scoped to a specific I/O descriptor,
// the connection or client channel the failure concerns.
func NewWithDescriptor(op string, d iodesc.Descriptor, code Code, msg string) *Error {
	return &Error{Op: op, Descriptor: d, Code: code, Msg: msg}
}

// Wrap attaches op/code context to an existing error without discarding it.
// If inner is already an *Error, its category (and descriptor) is kept and
// code is ignored.
func Wrap(op string, code Code, inner error) *Error {
	if inner == nil {
		return nil
	}
	if re, ok := inner.(*Error); ok {
		return &Error{Op: op, Descriptor: re.Descriptor, Code: re.Code, Msg: re.Msg, Err: re.Err}
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Err: inner}
}

// IsCode reports whether err (or something it wraps) carries code.
func IsCode(err error, code Code) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// Convenience constructors for the six taxonomy members, each named after
// the condition the caller observed rather than a generic "new error".

func Transport(op string, d iodesc.Descriptor, msg string) *Error {
	return NewWithDescriptor(op, d, CodeTransport, msg)
}

func Protocol(op string, d iodesc.Descriptor, msg string) *Error {
	return NewWithDescriptor(op, d, CodeProtocol, msg)
}

func Timeout(op string, d iodesc.Descriptor) *Error {
	return NewWithDescriptor(op, d, CodeTimeout, "timed out")
}

func Backpressure(op string) *Error {
	return New(op, CodeBackpressure, "queue full")
}

func Cancelled(op string) *Error {
	return New(op, CodeCancelled, "cancelled")
}

func Fatal(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Code: CodeFatal, Msg: inner.Error(), Err: inner}
}
