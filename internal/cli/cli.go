// Package cli defines the cobra command tree for the rehearse binary.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/rbright/rehearse/internal/version"
)

type Command string

const (
	CommandServe     Command = "serve"
	CommandAnswer    Command = "answer"
	CommandStop      Command = "stop"
	CommandNext      Command = "next"
	CommandStatus    Command = "status"
	CommandRetrySave Command = "retry-save"
	CommandHistory   Command = "history"
	CommandReset     Command = "reset"
	CommandDevices   Command = "devices"
	CommandDoctor    Command = "doctor"
	CommandVersion   Command = "version"
	CommandHelp      Command = "help"
)

const defaultHistoryLimit = 10

// Parsed is the fully resolved invocation handed to the action.
type Parsed struct {
	Command    Command
	ConfigPath string
	Limit      int
	Remote     bool
}

// Action executes a parsed command. Errors it returns are runtime failures,
// everything else cobra reports is a usage error.
type Action func(ctx context.Context, parsed Parsed) error

// NewRoot builds the command tree. Help output goes to stdout and cobra
// diagnostics to stderr; callers print returned errors themselves.
func NewRoot(stdout, stderr io.Writer, action Action) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "rehearse",
		Short: "Voice-driven interview practice sessions",
		Long: `rehearse runs a spoken interview practice session: it asks questions,
records answers, transcribes and scores them, and keeps a history of
completed sessions.`,
		Version:       version.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/rehearse/config.jsonc)")

	dispatch := func(command Command, fill func(*Parsed)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			parsed := Parsed{Command: command, ConfigPath: configPath}
			if fill != nil {
				fill(&parsed)
			}
			return action(cmd.Context(), parsed)
		}
	}
	leaf := func(command Command, short string, fill func(*Parsed)) *cobra.Command {
		return &cobra.Command{
			Use:   string(command),
			Short: short,
			Args:  cobra.NoArgs,
			RunE:  dispatch(command, fill),
		}
	}

	var (
		limit  int
		remote bool
	)
	history := leaf(CommandHistory, "List completed sessions with their score trend", func(p *Parsed) {
		p.Limit = limit
		p.Remote = remote
	})
	history.Flags().IntVar(&limit, "limit", defaultHistoryLimit, "maximum sessions to list (0 lists all)")
	history.Flags().BoolVar(&remote, "remote", false, "read history from the interview backend")

	root.AddCommand(
		leaf(CommandServe, "Own the session: restore or start it and serve control commands", nil),
		leaf(CommandAnswer, "Start recording an answer to the current question", nil),
		leaf(CommandStop, "Stop recording and process the answer", nil),
		leaf(CommandNext, "Advance to the next question, or finish the session", nil),
		leaf(CommandStatus, "Print the current session phase", nil),
		leaf(CommandRetrySave, "Retry archiving a completed session", nil),
		history,
		leaf(CommandReset, "Discard the saved session snapshot", nil),
		leaf(CommandDevices, "List available input devices", nil),
		leaf(CommandDoctor, "Run configuration and environment checks", nil),
		leaf(CommandVersion, "Print version information", nil),
	)
	return root
}

// Parse resolves args without running anything. Help requests yield CommandHelp.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp}
	root := NewRoot(io.Discard, io.Discard, func(_ context.Context, p Parsed) error {
		parsed = p
		return nil
	})
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}
