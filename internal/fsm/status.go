package fsm

import "fmt"

// Status is the lifecycle of one answer record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRecording  Status = "recording"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Advance validates a record status change.
// Terminal records may only re-enter recording, which starts a fresh attempt.
func Advance(current Status, next Status) (Status, error) {
	switch current {
	case StatusPending:
		if next == StatusRecording {
			return next, nil
		}
	case StatusRecording:
		if next == StatusProcessing {
			return next, nil
		}
	case StatusProcessing:
		if next == StatusComplete || next == StatusFailed {
			return next, nil
		}
	case StatusComplete, StatusFailed:
		if next == StatusRecording {
			return next, nil
		}
	default:
		return current, fmt.Errorf("unknown status %q", current)
	}
	return current, fmt.Errorf("%w: record %s -> %s", ErrInvalidTransition, current, next)
}

// Terminal reports whether the status ends an attempt.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Known reports whether s is one of the declared statuses.
func (s Status) Known() bool {
	switch s {
	case StatusPending, StatusRecording, StatusProcessing, StatusComplete, StatusFailed:
		return true
	default:
		return false
	}
}
