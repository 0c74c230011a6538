// Package fsm holds the pure transition tables for session phases and answer records.
package fsm

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition reports an action that is not valid for the current phase or status.
var ErrInvalidTransition = errors.New("invalid transition")

// Phase is the session-level state.
type Phase string

// Event is an action or settlement applied to a Phase.
type Event string

const (
	PhaseIdle             Phase = "idle"
	PhaseAwaitingAnswer   Phase = "awaiting_answer"
	PhaseRecording        Phase = "recording"
	PhaseProcessingAnswer Phase = "processing_answer"
	PhaseReadyToAdvance   Phase = "ready_to_advance"
	PhaseSummarizing      Phase = "summarizing"
	PhaseComplete         Phase = "complete"
)

const (
	EventStart       Event = "start"
	EventStartAnswer Event = "start_answer"
	EventStopAnswer  Event = "stop_answer"
	EventSettled     Event = "settled"
	EventNext        Event = "next"
	EventFinish      Event = "finish"
	EventSummarized  Event = "summarized"
)

// Transition returns the phase reached by applying event to current.
func Transition(current Phase, event Event) (Phase, error) {
	switch current {
	case PhaseIdle:
		switch event {
		case EventStart:
			return PhaseAwaitingAnswer, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseAwaitingAnswer:
		switch event {
		case EventStartAnswer:
			return PhaseRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseRecording:
		switch event {
		case EventStopAnswer:
			return PhaseProcessingAnswer, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseProcessingAnswer:
		switch event {
		case EventSettled:
			return PhaseReadyToAdvance, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseReadyToAdvance:
		switch event {
		case EventNext:
			return PhaseAwaitingAnswer, nil
		case EventFinish:
			return PhaseSummarizing, nil
		case EventStartAnswer:
			return PhaseRecording, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseSummarizing:
		switch event {
		case EventSummarized:
			return PhaseComplete, nil
		default:
			return current, invalidTransition(current, event)
		}
	case PhaseComplete:
		return current, invalidTransition(current, event)
	default:
		return current, fmt.Errorf("unknown phase %q", current)
	}
}

// Known reports whether p is one of the declared phases.
func (p Phase) Known() bool {
	switch p {
	case PhaseIdle, PhaseAwaitingAnswer, PhaseRecording, PhaseProcessingAnswer,
		PhaseReadyToAdvance, PhaseSummarizing, PhaseComplete:
		return true
	default:
		return false
	}
}

func invalidTransition(phase Phase, event Event) error {
	return fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, phase, event)
}
