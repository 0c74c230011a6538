package session

import (
	"context"
	"fmt"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/ipc"
)

// Handle serves one IPC command against the machine.
func (m *Machine) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	var (
		err     error
		message string
	)
	switch req.Command {
	case ipc.CommandStatus:
	case ipc.CommandAnswer:
		err = m.StartAnswer(ctx)
		message = "recording"
	case ipc.CommandStop:
		err = m.StopAnswer(ctx)
		message = "processing answer"
	case ipc.CommandNext:
		err = m.Advance(ctx)
		message = "advanced"
	case ipc.CommandRetrySave:
		err = m.RetrySave(ctx)
		message = "session saved"
	default:
		state := m.State()
		return ipc.Response{
			Kind:    ipc.KindUnknownCommand,
			Error:   fmt.Sprintf("unknown command %q", req.Command),
			State:   string(state.Phase),
			Session: &state,
		}
	}
	return m.response(err, message)
}

// response reports the current state. Failures carry their ipc.Kind so
// clients can tell a busy device from a rejected transition.
func (m *Machine) response(err error, message string) ipc.Response {
	state := m.State()
	if err != nil {
		resp := ipc.Reject(err)
		resp.State = string(state.Phase)
		resp.Session = &state
		return resp
	}
	resp := ipc.Response{
		OK:      true,
		State:   string(state.Phase),
		Session: &state,
	}
	if message == "" {
		message = statusLine(state.Phase, state.CurrentIndex, len(state.Questions))
	}
	resp.Message = message
	return resp
}

func statusLine(phase fsm.Phase, index int, total int) string {
	switch phase {
	case fsm.PhaseComplete, fsm.PhaseSummarizing:
		return fmt.Sprintf("%s (%d questions)", phase, total)
	case fsm.PhaseIdle:
		return string(phase)
	default:
		return fmt.Sprintf("%s (question %d of %d)", phase, index+1, total)
	}
}
