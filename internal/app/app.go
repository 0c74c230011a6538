// Package app maps parsed commands onto the session daemon, IPC forwarding,
// and local maintenance commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/rbright/rehearse/internal/cli"
	"github.com/rbright/rehearse/internal/config"
	"github.com/rbright/rehearse/internal/doctor"
	"github.com/rbright/rehearse/internal/ipc"
	"github.com/rbright/rehearse/internal/logging"
	"github.com/rbright/rehearse/internal/version"
)

const forwardTimeout = 220 * time.Millisecond

// errExit marks an action that already reported its failure.
var errExit = errors.New("command failed")

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	// Logger overrides the file logger when set.
	Logger *zerolog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute runs args and returns the process exit code: 0 on success,
// 1 on runtime failure, 2 on usage errors. Commands the session rejects
// exit 3 (device unavailable), 4 (invalid transition) or 5 (save failed).
func (r Runner) Execute(ctx context.Context, args []string) int {
	code := 0
	root := cli.NewRoot(r.Stdout, r.Stderr, func(ctx context.Context, parsed cli.Parsed) error {
		code = r.run(ctx, parsed)
		if code != 0 {
			return errExit
		}
		return nil
	})
	root.SetArgs(args)

	cmd, err := root.ExecuteContextC(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errExit):
		return code
	}

	if cmd == nil {
		cmd = root
	}
	fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
	fmt.Fprint(r.Stderr, cmd.UsageString())
	return 2
}

func (r Runner) run(ctx context.Context, parsed cli.Parsed) int {
	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(logging.Config{
		Level:   cfgLoaded.Config.Log.Level,
		Console: cfgLoaded.Config.Log.Console,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := logRuntime.Logger
	if r.Logger != nil {
		logger = *r.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn().Int("line", w.Line).Str("message", w.Message).Msg("config warning")
	}

	logger.Info().
		Str("command", string(parsed.Command)).
		Str("config", cfgLoaded.Path).
		Str("log", logRuntime.Path).
		Msg("command start")

	switch parsed.Command {
	case cli.CommandServe:
		return r.commandServe(ctx, cfgLoaded.Config, logger)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandAnswer:
		return r.forwardOrFail(ctx, ipc.CommandAnswer)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandNext:
		return r.forwardOrFail(ctx, ipc.CommandNext)
	case cli.CommandRetrySave:
		return r.forwardOrFail(ctx, ipc.CommandRetrySave)
	case cli.CommandHistory:
		return r.commandHistory(ctx, cfgLoaded.Config, parsed, logger)
	case cli.CommandReset:
		return r.commandReset(ctx, cfgLoaded.Config, logger)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

// Exit codes for commands the session owner rejected.
const (
	exitDeviceUnavailable = 3
	exitInvalidTransition = 4
	exitSaveFailed        = 5
)

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, command)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no active rehearse session; start one with: rehearse serve")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return rejectedExitCode(r.Stderr, resp, err)
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// rejectedExitCode prints a hint for a rejected command and picks its exit code.
func rejectedExitCode(stderr io.Writer, resp ipc.Response, err error) int {
	var remote *ipc.RemoteError
	if !errors.As(err, &remote) {
		return 1
	}
	switch remote.Kind {
	case ipc.KindDeviceUnavailable:
		fmt.Fprintln(stderr, "hint: check audio.input in the config or run: rehearse devices")
		return exitDeviceUnavailable
	case ipc.KindInvalidTransition:
		if resp.State != "" {
			fmt.Fprintf(stderr, "hint: the session is %s; run: rehearse status\n", resp.State)
		}
		return exitInvalidTransition
	case ipc.KindSaveFailed:
		fmt.Fprintln(stderr, "hint: the session is kept; run: rehearse retry-save")
		return exitSaveFailed
	default:
		return 1
	}
}

// tryForward reports handled=false when no session owner is listening.
func tryForward(ctx context.Context, socketPath string, command string) (ipc.Response, bool, error) {
	resp, err := ipc.Call(ctx, socketPath, command, forwardTimeout)
	var remote *ipc.RemoteError
	switch {
	case err == nil:
		return resp, true, nil
	case errors.As(err, &remote):
		return resp, true, err
	case ipc.Unreachable(err):
		return ipc.Response{}, false, nil
	default:
		return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
	}
}
