package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/sourcegraph/conc"
)

const ioTimeout = 5 * time.Second

// Handler answers a single command.
type Handler func(ctx context.Context, cmd Command) Response

type Server struct {
	path     string
	handler  Handler
	log      *slog.Logger
	listener *net.UnixListener
}

func NewServer(path string, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{path: path, handler: handler, log: logger}
}

func (s *Server) Path() string { return s.path }

// Listen checks for an existing socket and creates the listener. A socket
// that still accepts connections means another instance is running.
func (s *Server) Listen() error {
	if _, err := os.Stat(s.path); err == nil {
		conn, err := net.DialTimeout("unix", s.path, time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", s.path)
		}
		s.log.Info("Removing stale socket file", "path", s.path)
		if err := os.Remove(s.path); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", s.path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", s.path, err)
	}

	addr, err := net.ResolveUnixAddr("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", s.path, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set permissions on socket %s: %w", s.path, err)
	}

	s.listener = listener
	s.log.Info("Listening for commands", "path", s.path)
	return nil
}

// Serve accepts connections until ctx is cancelled, then waits for open
// connections to finish and removes the socket file.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("socket listener not initialized")
	}

	var wg conc.WaitGroup
	defer func() {
		wg.Wait()
		s.remove()
	}()

	stop := context.AfterFunc(ctx, func() { s.listener.Close() })
	defer stop()

	for {
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.log.Debug("Socket command listener stopped")
				return ctx.Err()
			}
			s.log.Warn("Failed to accept connection", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		wg.Go(func() { s.handleConnection(ctx, conn) })
	}
}

// handleConnection reads one command and writes one response.
func (s *Server) handleConnection(ctx context.Context, conn *net.UnixConn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(ioTimeout))
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			s.log.Warn("Failed to decode command", "error", err)
		}
		_ = encoder.Encode(Response{Success: false, Message: "Failed to decode command: " + err.Error()})
		return
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Now().Add(ioTimeout))
	s.log.Debug("Received command", "name", cmd.Name)

	if err := encoder.Encode(s.handler(ctx, cmd)); err != nil {
		s.log.Warn("Failed to send response", "error", err)
	}
}

func (s *Server) remove() {
	if _, err := os.Stat(s.path); err == nil {
		if err := os.Remove(s.path); err != nil {
			s.log.Warn("Failed to remove socket file", "path", s.path, "error", err)
		}
	}
}
