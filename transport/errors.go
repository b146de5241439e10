package transport

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an Error. Codes up to ErrorInternalServer can arrive
// in a remote error frame; the rest are raised locally.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	ErrorUnsupportedVersion
	ErrorUnauthorized
	ErrorInvalidMessage
	ErrorBadRequest
	ErrorInternalServer

	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorInvalidConfig
	ErrorNotConnected
	ErrorSerialization
	ErrorBufferFull
	ErrorClosed
	ErrorDuplicateHandler
	ErrorNoReplyChannel
	ErrorAlreadyReplied
	ErrorStaleReply

	numErrorCodes
)

// codeNames doubles as the wire vocabulary for remote codes.
var codeNames = [numErrorCodes]string{
	ErrorUnknown:            "unknown",
	ErrorUnsupportedVersion: "unsupported_version",
	ErrorUnauthorized:       "unauthorized",
	ErrorInvalidMessage:     "invalid_message",
	ErrorBadRequest:         "bad_request",
	ErrorInternalServer:     "internal_error",
	ErrorConnection:         "connection_error",
	ErrorDisconnected:       "disconnected",
	ErrorTimeout:            "timeout",
	ErrorInvalidConfig:      "invalid_config",
	ErrorNotConnected:       "not_connected",
	ErrorSerialization:      "serialization_error",
	ErrorBufferFull:         "buffer_full",
	ErrorClosed:             "closed",
	ErrorDuplicateHandler:   "duplicate_handler",
	ErrorNoReplyChannel:     "no_reply_channel",
	ErrorAlreadyReplied:     "already_replied",
	ErrorStaleReply:         "stale_reply",
}

func (e ErrorCode) String() string {
	if e < 0 || e >= numErrorCodes {
		return fmt.Sprintf("unknown_code_%d", int(e))
	}
	return codeNames[e]
}

// Remote reports whether the code can be sent by the remote party.
func (e ErrorCode) Remote() bool {
	return e > ErrorUnknown && e <= ErrorInternalServer
}

// ParseErrorCode maps a remote error code to an ErrorCode. Local codes and
// unrecognized strings map to ErrorUnknown.
func ParseErrorCode(code string) ErrorCode {
	for c := ErrorUnsupportedVersion; c <= ErrorInternalServer; c++ {
		if codeNames[c] == code {
			return c
		}
	}
	return ErrorUnknown
}

// Sentinels for errors.Is. Matching is by code, so any Error with the same
// code satisfies errors.Is regardless of message.
var (
	ErrNotConnected     = NewError(ErrorNotConnected, "not connected")
	ErrBufferFull       = NewError(ErrorBufferFull, "send buffer full")
	ErrClosed           = NewError(ErrorClosed, "session closed")
	ErrDuplicateHandler = NewError(ErrorDuplicateHandler, "handler already registered")
	ErrNoReplyChannel   = NewError(ErrorNoReplyChannel, "message carries no reply channel")
	ErrAlreadyReplied   = NewError(ErrorAlreadyReplied, "reply already sent")
	ErrStaleReply       = NewError(ErrorStaleReply, "request connection is gone")
)

// Error is a coded transport error.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Wrapped }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Wrapped: err}
}

// FromProtocolError converts a remote error frame payload.
func FromProtocolError(e *ProtocolError) *Error {
	if e == nil {
		return nil
	}
	return &Error{Code: ParseErrorCode(e.Code), Message: e.Msg}
}

// IsProtocolError reports whether err was raised by the remote party.
func IsProtocolError(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Code.Remote()
}

// IsConnectionError reports whether err came from the network rather than
// from either party's logic.
func IsConnectionError(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	switch te.Code {
	case ErrorConnection, ErrorDisconnected, ErrorTimeout:
		return true
	}
	return false
}
