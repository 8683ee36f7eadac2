// Package sockserv implements the TCP socket server fronting an engine.
//
// The server is pure plumbing: it accepts client connections on the
// configured host and port and relays bytes to and from the engine's local
// socket. It never parses the wire protocol; with protocol inspection
// enabled it logs the leading tag byte and size of each relayed chunk, which
// is enough to follow a conversation without understanding it.
package sockserv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dbnest/dbnest/engine"
)

// dialTimeout bounds the backend dial per client connection. The engine is
// local, so anything slower than this means it is gone.
const dialTimeout = 5 * time.Second

// inspectBufSize is the chunk size used by the inspecting relay loop.
const inspectBufSize = 32 * 1024

// Compile-time interface satisfaction checks.
var (
	_ engine.SocketServer  = (*Server)(nil)
	_ engine.ServerFactory = (*Factory)(nil)
)

// Factory constructs Servers. It implements engine.ServerFactory.
type Factory struct {
	// Logger is optional and defaults to slog.Default().
	Logger *slog.Logger
}

// New implements engine.ServerFactory.
func (f *Factory) New(cfg engine.ServerConfig) (engine.SocketServer, error) {
	if cfg.Engine == nil {
		return nil, errors.New("socket server engine must not be nil")
	}
	if cfg.Host == "" {
		return nil, errors.New("socket server host must not be empty")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("socket server port must be positive, got %d", cfg.Port)
	}
	log := f.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, log: log}, nil
}

// Server relays TCP client connections to an engine's local socket.
type Server struct {
	cfg engine.ServerConfig
	log *slog.Logger

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	started bool
	onError func(error)

	wg sync.WaitGroup
}

// OnError implements engine.SocketServer. Must be called before Start.
func (s *Server) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Start implements engine.SocketServer. A bind failure (e.g. the port is
// already in use) is returned to the caller; there is no retry.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("socket server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind socket server on %s: %w", addr, err)
	}

	s.ln = ln
	s.conns = make(map[net.Conn]struct{})
	s.started = true

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.log.Debug("socket server listening", "addr", addr)
	return nil
}

// Stop implements engine.SocketServer. It closes the listener and all
// active connections, then waits for the relay goroutines to drain, bounded
// by the context. Idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	ln := s.ln
	s.ln = nil
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	var errs []error
	if err := ln.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close listener: %w", err))
	}
	for conn := range conns {
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("drain socket server connections: %w", ctx.Err()))
	}

	return errors.Join(errs...)
}

// acceptLoop accepts client connections until the listener closes.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Accept errors are non-fatal: report and keep serving.
			s.reportError(fmt.Errorf("accept connection: %w", err))
			continue
		}

		if !s.track(conn) {
			// Stop won the race; refuse the straggler.
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn relays a single client connection to the engine.
func (s *Server) handleConn(client net.Conn) {
	defer s.wg.Done()
	defer s.untrack(client)
	defer client.Close() //nolint:errcheck // best-effort close on the way out

	network, addr := s.cfg.Engine.Addr()
	backend, err := net.DialTimeout(network, addr, dialTimeout)
	if err != nil {
		s.reportError(fmt.Errorf("dial engine %s: %w", addr, err))
		return
	}
	defer backend.Close() //nolint:errcheck // best-effort close on the way out

	// Two copy directions; when either side ends, closing both conns
	// unblocks the other copier.
	g := new(errgroup.Group)
	g.Go(func() error {
		err := s.relay(backend, client, "client->engine")
		_ = backend.Close()
		_ = client.Close()
		return err
	})
	g.Go(func() error {
		err := s.relay(client, backend, "engine->client")
		_ = backend.Close()
		_ = client.Close()
		return err
	})

	if err := g.Wait(); err != nil {
		s.reportError(fmt.Errorf("relay %s: %w", client.RemoteAddr(), err))
	}
}

// relay copies bytes from src to dst. A connection closed mid-copy is the
// normal end of a session, not an error worth reporting.
func (s *Server) relay(dst io.Writer, src io.Reader, direction string) error {
	if !s.cfg.InspectProtocol {
		_, err := io.Copy(dst, src)
		return ignoreClosed(err)
	}

	buf := make([]byte, inspectBufSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			s.log.Debug("protocol traffic",
				"direction", direction, "tag", fmt.Sprintf("%q", buf[0]), "bytes", n)
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return ignoreClosed(writeErr)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return ignoreClosed(readErr)
		}
	}
}

// track registers an active connection. Returns false when the server has
// already stopped.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
}

// reportError delivers a non-fatal serving error to the registered callback
// and logs it. Serving errors never escalate to process exit.
func (s *Server) reportError(err error) {
	s.log.Warn("socket server error", "error", err)
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// ignoreClosed maps use-of-closed-connection errors to nil. Stop closes
// both ends of every relay, so these are expected during teardown.
func ignoreClosed(err error) error {
	if err == nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
