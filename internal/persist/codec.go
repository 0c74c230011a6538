package persist

import (
	"encoding/json"
	"fmt"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
)

const snapshotVersion = 1

type snapshotEnvelope struct {
	Version int              `json:"version"`
	State   *interview.State `json:"state"`
}

// Encode serializes a session snapshot.
func Encode(state interview.State) ([]byte, error) {
	data, err := json.Marshal(snapshotEnvelope{Version: snapshotVersion, State: &state})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses and validates a snapshot. Any defect yields ErrCorruptSnapshot.
func Decode(data []byte) (interview.State, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return interview.State{}, fmt.Errorf("%w: %v", interview.ErrCorruptSnapshot, err)
	}
	if env.Version != snapshotVersion {
		return interview.State{}, fmt.Errorf("%w: unsupported version %d", interview.ErrCorruptSnapshot, env.Version)
	}
	if env.State == nil {
		return interview.State{}, fmt.Errorf("%w: missing state", interview.ErrCorruptSnapshot)
	}
	if err := Validate(*env.State); err != nil {
		return interview.State{}, fmt.Errorf("%w: %v", interview.ErrCorruptSnapshot, err)
	}
	return *env.State, nil
}

// Validate checks the structural invariants of a session.
func Validate(state interview.State) error {
	if state.SessionID == "" {
		return fmt.Errorf("missing session id")
	}
	if len(state.Questions) == 0 {
		return fmt.Errorf("no questions")
	}
	if len(state.Answers) != len(state.Questions) {
		return fmt.Errorf("%d answers for %d questions", len(state.Answers), len(state.Questions))
	}
	for i, q := range state.Questions {
		if q.Index != i {
			return fmt.Errorf("question %d has index %d", i, q.Index)
		}
	}
	for i, rec := range state.Answers {
		if rec.QuestionIndex != i {
			return fmt.Errorf("answer %d has question index %d", i, rec.QuestionIndex)
		}
		if !rec.Status.Known() {
			return fmt.Errorf("answer %d has unknown status %q", i, rec.Status)
		}
	}
	if !state.Phase.Known() {
		return fmt.Errorf("unknown phase %q", state.Phase)
	}
	if state.Phase == fsm.PhaseSummarizing || state.Phase == fsm.PhaseComplete {
		for i, rec := range state.Answers {
			if !rec.Status.Terminal() {
				return fmt.Errorf("%s session has %s answer %d", state.Phase, rec.Status, i)
			}
		}
	}
	if state.Phase == fsm.PhaseComplete {
		if state.CurrentIndex != len(state.Questions) {
			return fmt.Errorf("complete session has current index %d", state.CurrentIndex)
		}
		return nil
	}
	if state.CurrentIndex < 0 || state.CurrentIndex >= len(state.Questions) {
		return fmt.Errorf("current index %d out of range", state.CurrentIndex)
	}
	return nil
}
