// Package server implements the connection multiplexer: an accept loop
// that spawns one worker per TCP client, and the per-client protocol each
// worker drives.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/aesdsocket/ringsink/internal/registry"
	"github.com/aesdsocket/ringsink/internal/sink"
)

// Config configures the acceptor.
type Config struct {
	// Port is the TCP port to listen on.
	Port int
	// Backlog is the listen backlog depth, applied to the socket via
	// setBacklog after Listen returns.
	Backlog int
	// AssemblerBlockSize is the starting/growth size for each
	// connection's packet assembler.
	AssemblerBlockSize int
	// AssemblerMaxSize caps assembler growth; zero means unbounded.
	AssemblerMaxSize int
}

// Server is the acceptor plus worker registry (C5).
type Server struct {
	cfg      Config
	sink     sink.Sink
	registry *registry.Registry
	log      *zap.SugaredLogger
	ready    chan net.Addr
}

// New creates a Server bound to the given sink and configuration.
func New(cfg Config, s sink.Sink, log *zap.SugaredLogger) *Server {
	return &Server{
		cfg:      cfg,
		sink:     s,
		registry: registry.New(),
		log:      log,
		ready:    make(chan net.Addr, 1),
	}
}

// Ready yields the listener's address exactly once Run has started
// listening. Tests use it to learn the ephemeral port chosen when
// Config.Port is 0.
func (s *Server) Ready() <-chan net.Addr {
	return s.ready
}

// reuseAddrControl enables SO_REUSEADDR on the listening socket via
// net.ListenConfig.Control — the idiomatic Go seam for platform socket
// options, since net.ListenConfig itself has no field for it.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var ctlErr error
	err := c.Control(func(fd uintptr) {
		ctlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return ctlErr
}

// setBacklog re-invokes listen() on an already-listening socket to apply
// the configured backlog. net.ListenConfig has no backlog field and its
// Control callback runs before bind()/listen(), so the only way to reach
// the real value is through the *net.TCPListener's raw fd after Listen
// returns; POSIX permits calling listen() again purely to update the
// backlog of a socket that is already listening.
func setBacklog(ln net.Listener, backlog int) error {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("server: listener is not a *net.TCPListener")
	}

	rc, err := tcpLn.SyscallConn()
	if err != nil {
		return err
	}

	var listenErr error
	err = rc.Control(func(fd uintptr) {
		listenErr = unix.Listen(int(fd), backlog)
	})
	if err != nil {
		return err
	}
	return listenErr
}

// Run listens on the configured port and accepts connections until ctx is
// canceled, spawning one worker goroutine per client. It returns only once
// every spawned worker has drained.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{Control: reuseAddrControl}
	addr := fmt.Sprintf(":%d", s.cfg.Port)

	ln, err := lc.Listen(ctx, "tcp4", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	if s.cfg.Backlog > 0 {
		if err := setBacklog(ln, s.cfg.Backlog); err != nil {
			ln.Close()
			return fmt.Errorf("server: set backlog on %s: %w", addr, err)
		}
	}
	s.log.Infow("listening", "addr", ln.Addr().String(), "backlog", s.cfg.Backlog)
	s.ready <- ln.Addr()

	// Unblock a pending Accept when shutdown is requested — net.Listener
	// has no select-on-context primitive, so closing it is the standard
	// way to interrupt Accept.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	acceptErr := s.acceptLoop(ctx, ln)

	s.log.Info("draining in-flight workers")
	s.registry.Drain()
	s.log.Info("all workers drained")

	if acceptErr != nil && !errors.Is(acceptErr, net.ErrClosed) {
		return acceptErr
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	bo := backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         time.Second,
	}
	bo.Reset()

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(bo.NextBackOff()):
				}
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		bo.Reset()

		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}

		remote := tcpConn.RemoteAddr().(*net.TCPAddr)
		s.log.Infow("accepted connection", "remote", remote.IP.String())

		id, done := s.registry.Add()
		w := newWorker(tcpConn, s.sink, s.cfg, s.log, remote.IP.String())
		go func() {
			defer close(done)
			defer s.registry.Remove(id)
			w.run()
		}()

		s.registry.Reap()
	}
}

