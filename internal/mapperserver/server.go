// SPDX-License-Identifier: MPL-2.0

package mapperserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cxxmod/modmapper/internal/protocol"
)

// Server answers mapper requests on a listener. A Server instance is
// single-use: once stopped or failed, create a new instance.
type Server struct {
	*lifecycle

	cfg     Config
	handler protocol.Handler

	mu       sync.Mutex
	listener net.Listener
	addr     string
	conns    map[net.Conn]struct{}

	logger *log.Logger
}

// New creates a server answering with h, typically a *resolver.Resolver
// shared by all connections. Zero timeouts take their defaults.
func New(cfg Config, h protocol.Handler) *Server {
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "mapper-server"})
	}
	return &Server{
		lifecycle: newLifecycle(),
		cfg:       cfg,
		handler:   h,
		conns:     make(map[net.Conn]struct{}),
		logger:    logger,
	}
}

// Start listens on the configured address and blocks until either:
//   - The server is ready to accept connections (returns nil)
//   - The listener cannot be created (returns error)
//   - The context is cancelled or the startup timeout is exceeded (returns error)
//   - Stop is called first (returns ErrStoppedDuringStart)
//
// After Start() returns nil, use Err() to monitor for runtime errors.
func (s *Server) Start(ctx context.Context) error {
	if err := s.starting(ctx); err != nil {
		return err
	}
	if err := s.cfg.Validate(); err != nil {
		s.fail(err)
		return err
	}

	startupCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	if s.cfg.Network == NetworkUnix {
		removeStaleSocket(s.cfg.Address)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(startupCtx, string(s.cfg.Network), s.cfg.Address)
	if err != nil {
		s.fail(fmt.Errorf("failed to listen on %s %s: %w", s.cfg.Network, s.cfg.Address, err))
		return s.err()
	}

	s.mu.Lock()
	if s.current() != StateStarting {
		// Stop ran while the listener was being created
		s.mu.Unlock()
		_ = ln.Close()
		return ErrStoppedDuringStart
	}
	s.listener = ln
	s.addr = ln.Addr().String()
	s.goroutine(func() { s.acceptLoop(ln) })
	s.mu.Unlock()

	if err := s.awaitRunning(startupCtx); err != nil {
		_ = ln.Close() // unblock the accept loop
		return err
	}
	s.logger.Info("mapper server started", "network", s.cfg.Network, "address", s.Address())
	return nil
}

// removeStaleSocket deletes a socket file left behind by a previous server.
// Anything that is not a socket is left for Listen to report.
func removeStaleSocket(path string) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&fs.ModeSocket == 0 {
		return
	}
	_ = os.Remove(path) // Listen reports the conflict if this fails
}

func (s *Server) acceptLoop(ln net.Listener) {
	s.running()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.current().shuttingDown() {
				return
			}
			s.fail(fmt.Errorf("accept: %w", err))
			return
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.goroutine(func() {
			defer s.untrack(conn)
			if err := s.ServeConn(s.ctx, conn); err != nil {
				s.logger.Warn("connection ended with error", "remote", conn.RemoteAddr(), "error", err)
			}
		})
	}
}

// track registers a live connection, refusing it once shutdown has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current() != StateRunning {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close() // may already be closed by Stop
}

// ServeConn runs one protocol session over rw until the peer closes it or
// ctx is done. Each batch of requests is answered with one batch of
// responses, in order. A clean end of stream returns nil.
func (s *Server) ServeConn(ctx context.Context, rw io.ReadWriter) error {
	session := protocol.NewSession(s.handler)
	dec := protocol.NewDecoder(rw)
	enc := protocol.NewEncoder(rw)

	for {
		if ctx != nil && ctx.Err() != nil {
			return nil
		}

		reqs, err := dec.ReadRequests()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ctx != nil && ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read requests: %w", err)
		}

		resps := session.Serve(reqs)
		s.logger.Debug("batch served", "requests", len(reqs), "state", session.State())
		if err := enc.WriteResponses(resps); err != nil {
			return fmt.Errorf("write responses: %w", err)
		}
	}
}

// Stop closes the listener and every live connection, then waits for
// connection goroutines up to the shutdown timeout. Safe to call multiple
// times; subsequent calls are no-ops.
func (s *Server) Stop() error {
	if !s.stopping() {
		s.wg.Wait()
		return nil
	}

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close() // Best-effort; also removes a unix socket file
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		stopErr = fmt.Errorf("shutdown timeout after %s", s.cfg.ShutdownTimeout)
		s.logger.Error("shutdown timed out", "timeout", s.cfg.ShutdownTimeout)
	}

	s.stopped()
	s.logger.Info("mapper server stopped")
	return stopErr
}

// State returns the current server state.
func (s *Server) State() State { return s.current() }

// IsRunning returns whether the server is accepting connections.
func (s *Server) IsRunning() bool { return s.current() == StateRunning }

// Err returns a channel for receiving asynchronous errors.
func (s *Server) Err() <-chan error { return s.errCh }

// LastError returns the error that caused the Failed state, or nil.
func (s *Server) LastError() error { return s.err() }

// Address returns the bound address: the socket path or host:port.
// Returns empty string if the server never started.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Network returns the configured network.
func (s *Server) Network() Network { return s.cfg.Network }
