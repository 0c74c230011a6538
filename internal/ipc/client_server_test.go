package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rbright/rehearse/internal/fsm"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSendRoundTrip(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "rehearse.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			require.Equal(t, CommandStatus, req.Command)
			session := interview.NewState("default", "", []string{"q1"}, time.Unix(0, 0))
			session.Phase = fsm.PhaseRecording
			return Response{OK: true, State: string(session.Phase), Message: "ok", Session: &session}
		}))
	}()

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, resp.OK)
	require.Equal(t, "recording", resp.State)
	require.Equal(t, "ok", resp.Message)
	require.NotNil(t, resp.Session)
	require.Len(t, resp.Session.Answers, 1)
	require.Equal(t, fsm.StatusPending, resp.Session.Answers[0].Status)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestSendDecodeResponseError(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "rehearse.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		_, _ = reader.ReadBytes('\n')
		_, _ = conn.Write([]byte("not-json\n"))
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}

func TestSendReadResponseError(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "rehearse.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		_ = conn.Close()
	}()

	_, err = Send(context.Background(), socketPath, Request{Command: CommandStatus}, 200*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "read response")
}

func TestServeDecodeRequestErrorResponse(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "rehearse.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, _ Request) Response {
			return Response{OK: true}
		}))
	}()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not-json\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(line, &resp))
	require.False(t, resp.OK)
	require.Equal(t, KindBadRequest, resp.Kind)
	require.Contains(t, resp.Error, "decode request")

	cancel()
	require.NoError(t, <-serveDone)
}

func TestProbe(t *testing.T) {
	runtimeDir := t.TempDir()
	socketPath := filepath.Join(runtimeDir, "rehearse.sock")

	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, req Request) Response {
			if req.Command == CommandStatus {
				return Response{OK: true, State: "idle"}
			}
			return Response{OK: false, Error: "bad"}
		}))
	}()

	alive, probeErr := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, probeErr)
	require.True(t, alive)

	cancel()
	require.NoError(t, <-serveDone)

	alive, probeErr = Probe(context.Background(), socketPath, 100*time.Millisecond)
	require.NoError(t, probeErr)
	require.False(t, alive)
}

func startTestServer(t *testing.T, handler HandlerFunc) string {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "rehearse.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- (&Server{Handler: handler, Logger: zerolog.Nop()}).Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-serveDone)
	})
	return socketPath
}

func TestServerRejectsUnknownCommandBeforeHandler(t *testing.T) {
	t.Parallel()

	called := make(chan struct{}, 1)
	socketPath := startTestServer(t, func(context.Context, Request) Response {
		called <- struct{}{}
		return Response{OK: true}
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: "dance"}, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, KindUnknownCommand, resp.Kind)
	require.Contains(t, resp.Error, `unknown command "dance"`)
	require.Empty(t, called)
}

func TestServerRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	socketPath := startTestServer(t, func(context.Context, Request) Response {
		panic("boom")
	})

	resp, err := Send(context.Background(), socketPath, Request{Command: CommandNext}, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, KindInternal, resp.Kind)
	require.Contains(t, resp.Error, "boom")
}

func TestCallReturnsTypedRejection(t *testing.T) {
	t.Parallel()

	socketPath := startTestServer(t, func(_ context.Context, req Request) Response {
		switch req.Command {
		case CommandAnswer:
			return Reject(fmt.Errorf("%w: pulse: access denied", interview.ErrDeviceUnavailable))
		case CommandStop:
			return Reject(fmt.Errorf("%w: stop_answer from awaiting_answer", fsm.ErrInvalidTransition))
		case CommandRetrySave:
			return Reject(fmt.Errorf("%w: remote: 502", interview.ErrSaveFailed))
		default:
			return Response{OK: true, State: "awaiting_answer"}
		}
	})

	tests := []struct {
		command  string
		kind     Kind
		sentinel error
	}{
		{command: CommandAnswer, kind: KindDeviceUnavailable, sentinel: interview.ErrDeviceUnavailable},
		{command: CommandStop, kind: KindInvalidTransition, sentinel: fsm.ErrInvalidTransition},
		{command: CommandRetrySave, kind: KindSaveFailed, sentinel: interview.ErrSaveFailed},
	}
	for _, tc := range tests {
		resp, err := Call(context.Background(), socketPath, tc.command, 200*time.Millisecond)
		require.Error(t, err, tc.command)
		require.Equal(t, tc.kind, resp.Kind)
		require.ErrorIs(t, err, tc.sentinel)

		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		require.Equal(t, tc.kind, remote.Kind)
		require.Equal(t, resp.Error, remote.Error())
	}

	resp, err := Call(context.Background(), socketPath, CommandStatus, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "awaiting_answer", resp.State)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, Kind(""), KindOf(nil))
	require.Equal(t, KindDeviceUnavailable, KindOf(interview.ErrAlreadyRecording))
	require.Equal(t, KindInvalidTransition, KindOf(fmt.Errorf("wrapped: %w", fsm.ErrInvalidTransition)))
	require.Equal(t, KindInternal, KindOf(errors.New("disk full")))

	var remote *RemoteError
	require.False(t, errors.As(Response{OK: true}.Err(), &remote))
	require.Equal(t, "unknown_command", (&RemoteError{Kind: KindUnknownCommand}).Error())
	require.NoError(t, (&RemoteError{Kind: KindInternal}).Unwrap())
}

func TestUnreachable(t *testing.T) {
	t.Parallel()

	require.False(t, Unreachable(nil))
	require.True(t, Unreachable(os.ErrNotExist))
	require.True(t, Unreachable(syscall.ECONNREFUSED))
	require.True(t, Unreachable(errors.New("dial unix /tmp/rehearse.sock: no such file or directory")))
	require.False(t, Unreachable(errors.New("read response: i/o timeout")))
}
