// Package apperr provides a small numeric error-code type used at every
// fallible boundary of the server (bind, listen, model load, parse
// failures, ...), mirroring the code+parent-chain shape of the teacher's
// errors package without pulling in its full trace/i18n machinery.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a small numeric identifier for a class of failure, similar in
// spirit to an HTTP status code but scoped to this server's internals.
type Code uint16

const (
	Unknown Code = iota
	ErrBind
	ErrListen
	ErrAcceptorFD
	ErrModelLoad
	ErrStaticRoot
	ErrConfigLoad
	ErrConfigValidate
	ErrParse
	ErrMultipart
	ErrInferenceQueueClosed
	ErrInferenceDecode
)

var messages = map[Code]string{
	Unknown:                 "unknown error",
	ErrBind:                 "failed to bind listen address",
	ErrListen:               "failed to start listener",
	ErrAcceptorFD:           "acceptor file descriptor exhaustion",
	ErrModelLoad:            "failed to load inference model",
	ErrStaticRoot:           "static root directory is invalid",
	ErrConfigLoad:           "failed to load configuration",
	ErrConfigValidate:       "configuration failed validation",
	ErrParse:                "failed to parse HTTP request",
	ErrMultipart:            "failed to parse multipart body",
	ErrInferenceQueueClosed: "inference queue is closed",
	ErrInferenceDecode:      "failed to decode image",
}

// Error is a code-tagged error that optionally wraps a parent cause.
type Error struct {
	code   Code
	msg    string
	parent error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.parent != nil {
		if e.msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.parent)
		}
		return fmt.Sprintf("%s: %v", e.code, e.parent)
	}
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", e.code, e.msg)
	}
	return e.code.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.parent
}

// Code returns the numeric code carried by e, or Unknown if e is nil.
// Use CodeOf to extract a code from an arbitrary wrapped error.
func (e *Error) Code() Code {
	if e == nil {
		return Unknown
	}
	return e.code
}

// New builds an *Error for code with an optional formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to an existing error, preserving it as the parent
// for errors.Is/As and %v formatting.
func Wrap(code Code, parent error) *Error {
	return &Error{code: code, parent: parent}
}

// WrapMsg attaches code and a message to an existing error.
func WrapMsg(code Code, parent error, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...), parent: parent}
}

// CodeOf extracts the Code carried by err, walking the Unwrap chain.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return Unknown
}

func (c Code) String() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "unknown error"
}
