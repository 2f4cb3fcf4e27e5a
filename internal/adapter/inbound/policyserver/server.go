// Package policyserver implements the TCP Connection Server for the
// Postfix smtpd_access_policy protocol.
package policyserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sentinelgate/policyd/internal/adapter/inbound/policyproto"
	"github.com/sentinelgate/policyd/internal/ctxkey"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = 1 * time.Second
)

// Decider runs one framed inquiry and returns the verdict line to write
// back on the wire. Satisfied by *service.DecisionPipeline.
type Decider interface {
	Decide(ctx context.Context, raw []byte) ([]byte, error)
}

// Server is the Connection Server: a TCP accept loop with one goroutine
// per connection. Each connection's byte buffer is treated as one framed
// inquiry whenever it ends in a blank line; decode or I/O errors close
// only that connection.
type Server struct {
	addr          string
	decider       Decider
	logger        *slog.Logger
	shutdownGrace time.Duration

	ready chan struct{}

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer builds a Server bound to addr (e.g. "0.0.0.0:5002") once
// Serve is called.
func NewServer(addr string, decider Decider, logger *slog.Logger) *Server {
	return &Server{
		addr:          addr,
		decider:       decider,
		logger:        logger,
		shutdownGrace: 5 * time.Second,
		ready:         make(chan struct{}),
		conns:         make(map[net.Conn]struct{}),
	}
}

// Ready is closed once the listener is bound, for tests and health checks
// that need to know the server has started accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listener's address, or the configured address if
// the listener has not started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Serve binds the listener and runs the accept loop until ctx is
// cancelled. On cancellation it stops accepting new connections, waits up
// to the configured grace period for in-flight connections to finish, and
// returns. Bind failures are fatal and returned immediately.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("policy server listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return s.drain()
			default:
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff *= 2
			}
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.logger.Warn("accept error, retrying", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go s.handle(ctx, conn)
	}
}

// drain waits up to shutdownGrace for in-flight connection handlers to
// finish after the accept loop has stopped, then force-closes whatever is
// still open so their blocked reads unwind.
func (s *Server) drain() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownGrace):
		s.logger.Warn("shutdown grace period elapsed, closing remaining connections")
		s.closeAllConns()
		<-done
	}
	return nil
}

func (s *Server) closeAllConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

func (s *Server) addConn(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) removeConn(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

// handle reads framed inquiries from one connection until the peer
// disconnects, an I/O error occurs, or ctx is cancelled. An uncaught
// failure here never affects other connections.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	s.addConn(conn)
	defer s.removeConn(conn)
	defer conn.Close()

	connLogger := s.logger.With("remote", conn.RemoteAddr())
	ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, connLogger)

	reader := bufio.NewReader(conn)
	var frame []byte

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		frame = append(frame, line...)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				connLogger.Debug("connection read error", "error", err)
			}
			return
		}

		if !policyproto.FrameComplete(frame) {
			continue
		}

		resp, err := s.decider.Decide(ctx, frame)
		frame = frame[:0]
		if err != nil {
			connLogger.Error("decision pipeline error", "error", err)
			return
		}

		if _, err := conn.Write(resp); err != nil {
			connLogger.Debug("connection write error", "error", err)
			return
		}
	}
}
