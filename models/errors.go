package models

import (
	"errors"
	"fmt"
)

// ============================================================
// ERROR KINDS
// ============================================================

type ErrorKind string

const (
	KindCameraAccess  ErrorKind = "camera_access"
	KindModelLoad     ErrorKind = "model_load"
	KindDetectionTick ErrorKind = "detection_tick"
	KindNoValidFace   ErrorKind = "no_valid_face"
	KindSnapshot      ErrorKind = "snapshot"
	KindSession       ErrorKind = "session"
)

// Error carries a kind so callers can tell fatal session errors from
// recoverable ones. Message is shown to the user unchanged.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

var (
	ErrCameraAccess    = &Error{Kind: KindCameraAccess, Message: "camera unavailable"}
	ErrModelLoad       = &Error{Kind: KindModelLoad, Message: "models failed to load"}
	ErrDetectionTick   = &Error{Kind: KindDetectionTick, Message: "detection failed"}
	ErrNoValidFace     = &Error{Kind: KindNoValidFace, Message: "no valid face detected"}
	ErrSnapshot        = &Error{Kind: KindSnapshot, Message: "snapshot failed"}
	ErrSessionActive   = &Error{Kind: KindSession, Message: "session already active"}
	ErrSessionInactive = &Error{Kind: KindSession, Message: "session not active"}
)

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = fmt.Sprintf("%s:%s", e.Kind, e.Op)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any Error of the same kind (and message for session errors,
// which share a kind).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.Kind == KindSession {
		return t.Message == e.Message
	}
	return true
}

// NewError builds an Error whose Message is the cause text verbatim.
func NewError(kind ErrorKind, op string, cause error) *Error {
	msg := string(kind)
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind == kind
	}
	return false
}

// UserMessage returns the text that belongs in the status line.
func UserMessage(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
