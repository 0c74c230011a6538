// Package ipc carries session commands between the CLI and the session owner
// as one JSON line each way over a unix socket.
package ipc

import (
	"errors"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
)

// Commands understood by the session owner.
const (
	CommandStatus    = "status"
	CommandAnswer    = "answer"
	CommandStop      = "stop"
	CommandNext      = "next"
	CommandRetrySave = "retry-save"
)

// Known reports whether command is part of the session protocol.
func Known(command string) bool {
	switch command {
	case CommandStatus, CommandAnswer, CommandStop, CommandNext, CommandRetrySave:
		return true
	default:
		return false
	}
}

// Kind classifies a rejected command.
type Kind string

const (
	KindDeviceUnavailable Kind = "device_unavailable"
	KindInvalidTransition Kind = "invalid_transition"
	KindSaveFailed        Kind = "save_failed"
	KindUnknownCommand    Kind = "unknown_command"
	KindBadRequest        Kind = "bad_request"
	KindInternal          Kind = "internal"
)

// KindOf maps a session error onto its wire kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, interview.ErrDeviceUnavailable), errors.Is(err, interview.ErrAlreadyRecording):
		return KindDeviceUnavailable
	case errors.Is(err, fsm.ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, interview.ErrSaveFailed):
		return KindSaveFailed
	default:
		return KindInternal
	}
}

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool             `json:"ok"`
	State   string           `json:"state,omitempty"`
	Message string           `json:"message,omitempty"`
	Kind    Kind             `json:"kind,omitempty"`
	Error   string           `json:"error,omitempty"`
	Session *interview.State `json:"session,omitempty"`
}

// Reject builds a failed response classified by err.
func Reject(err error) Response {
	return Response{Kind: KindOf(err), Error: err.Error()}
}

// Err returns nil for an accepted command, otherwise a *RemoteError.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	return &RemoteError{Kind: r.Kind, Message: r.Error}
}

// RemoteError is a command the session owner rejected. It matches the
// session sentinel for its kind under errors.Is.
type RemoteError struct {
	Kind    Kind
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return string(e.Kind)
	}
	return "command rejected"
}

func (e *RemoteError) Unwrap() error {
	switch e.Kind {
	case KindDeviceUnavailable:
		return interview.ErrDeviceUnavailable
	case KindInvalidTransition:
		return fsm.ErrInvalidTransition
	case KindSaveFailed:
		return interview.ErrSaveFailed
	default:
		return nil
	}
}
