package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultReadTimeout = 2 * time.Second

// Handler processes one session command.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Server answers session commands on a listener. Malformed and unknown
// requests are rejected before they reach Handler.
type Server struct {
	Handler     Handler
	Logger      zerolog.Logger
	ReadTimeout time.Duration
}

// Serve runs a Server with default settings.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	return (&Server{Handler: handler, Logger: zerolog.Nop()}).Serve(ctx, listener)
}

// Serve accepts clients until ctx is cancelled or the listener closes.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			defer c.Close()
			s.serveConn(ctx, c)
		}(conn)
	}
}

func (s *Server) serveConn(ctx context.Context, c net.Conn) {
	timeout := s.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	_ = c.SetReadDeadline(time.Now().Add(timeout))

	line, err := bufio.NewReader(c).ReadBytes('\n')
	if err != nil {
		s.reply(c, Response{Kind: KindBadRequest, Error: fmt.Sprintf("read request: %v", err)})
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.reply(c, Response{Kind: KindBadRequest, Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	if !Known(req.Command) {
		s.reply(c, Response{Kind: KindUnknownCommand, Error: fmt.Sprintf("unknown command %q", req.Command)})
		return
	}

	start := time.Now()
	resp := s.handle(ctx, req)
	s.Logger.Debug().
		Str("command", req.Command).
		Bool("ok", resp.OK).
		Str("kind", string(resp.Kind)).
		Dur("elapsed", time.Since(start)).
		Msg("ipc command")
	s.reply(c, resp)
}

func (s *Server) handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error().Str("command", req.Command).Interface("panic", r).Msg("ipc handler panicked")
			resp = Response{Kind: KindInternal, Error: fmt.Sprintf("%s failed: %v", req.Command, r)}
		}
	}()
	return s.Handler.Handle(ctx, req)
}

func (s *Server) reply(c net.Conn, resp Response) {
	if err := json.NewEncoder(c).Encode(resp); err != nil {
		s.Logger.Debug().Err(err).Msg("ipc reply failed")
	}
}
