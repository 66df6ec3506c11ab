// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package ramses

import (
	"errors"
	"fmt"
)

// ErrKind classifies a protocol error.
type ErrKind int

// Error kinds raised by the codec and the state machines.
const (
	ErrUnknown ErrKind = iota
	ErrMalformed
	ErrLength
	ErrChecksum
	ErrUnknownCode
	ErrTimeoutEcho
	ErrTimeoutReply
	ErrTimeoutWait
	ErrTimeoutConfirm
	ErrRetriesExhausted
	ErrBusy
	ErrCancelled
	ErrReadOnly
	ErrBindingFailed
	ErrTransportFault
)

var errKindNames = map[ErrKind]string{
	ErrUnknown:          "UNKNOWN",
	ErrMalformed:        "MALFORMED",
	ErrLength:           "LENGTH",
	ErrChecksum:         "CHECKSUM",
	ErrUnknownCode:      "UNKNOWN_CODE",
	ErrTimeoutEcho:      "TIMEOUT(ECHO)",
	ErrTimeoutReply:     "TIMEOUT(REPLY)",
	ErrTimeoutWait:      "TIMEOUT(WAIT)",
	ErrTimeoutConfirm:   "TIMEOUT(CONFIRM)",
	ErrRetriesExhausted: "RETRIES_EXHAUSTED",
	ErrBusy:             "BUSY",
	ErrCancelled:        "CANCELLED",
	ErrReadOnly:         "READ_ONLY",
	ErrBindingFailed:    "BINDING_FAILED",
	ErrTransportFault:   "TRANSPORT_FAULT",
}

// String returns the canonical tag for the kind.
func (k ErrKind) String() string {
	if s, ok := errKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrKind(%d)", int(k))
}

// Error is a tagged protocol error.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a tagged error with a formatted message.
func NewError(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError tags an underlying error.
func WrapError(kind ErrKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or ErrUnknown if it is not tagged.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}
