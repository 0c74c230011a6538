// Package indicator fans session changes out to cues, websocket clients and event sinks.
package indicator

import (
	"context"

	"github.com/rbright/rehearse/internal/interview"
)

// Notifier receives re-render signals from the session machine. Calls must not block.
type Notifier interface {
	PhaseChanged(ctx context.Context, state interview.State)
	ShowError(ctx context.Context, text string)
}

// PhaseFunc adapts a phase callback into a Notifier that ignores errors.
type PhaseFunc func(ctx context.Context, state interview.State)

// PhaseChanged calls f.
func (f PhaseFunc) PhaseChanged(ctx context.Context, state interview.State) { f(ctx, state) }

// ShowError does nothing.
func (PhaseFunc) ShowError(context.Context, string) {}

// Multi forwards to every non-nil notifier in order.
type Multi []Notifier

// PhaseChanged forwards state to each notifier.
func (m Multi) PhaseChanged(ctx context.Context, state interview.State) {
	for _, n := range m {
		if n != nil {
			n.PhaseChanged(ctx, state)
		}
	}
}

// ShowError forwards text to each notifier.
func (m Multi) ShowError(ctx context.Context, text string) {
	for _, n := range m {
		if n != nil {
			n.ShowError(ctx, text)
		}
	}
}

// Nop discards every signal.
type Nop struct{}

func (Nop) PhaseChanged(context.Context, interview.State) {}
func (Nop) ShowError(context.Context, string)             {}
