package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestAcquireReplacesStaleSocket(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "rehearse.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{
		ProbeTimeout: 50 * time.Millisecond,
		Retries:      2,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(context.Context, Request) Response {
			return Response{OK: true, State: "idle"}
		}))
	}()

	alive, err := Probe(context.Background(), socketPath, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, alive)

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cancel()
	require.NoError(t, <-serveDone)
}

func TestAcquireReturnsAlreadyRunningWhenOwnerAnswers(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "rehearse.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- Serve(ctx, listener, HandlerFunc(func(context.Context, Request) Response {
			return Response{OK: true, State: "awaiting_answer"}
		}))
	}()

	_, err = Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 80 * time.Millisecond, Retries: 1})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-serveDone)
}

func TestAcquireKeepsSocketWhenOwnerHangs(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "rehearse.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				time.Sleep(250 * time.Millisecond)
			}(conn)
		}
	}()

	_, err = Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 30 * time.Millisecond})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "probe existing socket")

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
	require.NoError(t, listener.Close())
	<-acceptDone
}

func TestAcquireReportsUnusableDirectory(t *testing.T) {
	t.Parallel()

	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, nil, 0o600))

	_, err := Acquire(context.Background(), filepath.Join(parent, "rehearse.sock"), AcquireOptions{})
	require.ErrorContains(t, err, "ensure runtime socket dir")
}

func TestRuntimeSocketPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	path, err := RuntimeSocketPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "rehearse.sock"), path)

	t.Setenv("XDG_RUNTIME_DIR", " ")
	_, err = RuntimeSocketPath()
	require.ErrorContains(t, err, "XDG_RUNTIME_DIR")
}
