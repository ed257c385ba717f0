// Package linenet serves the line protocol over TCP: it accepts
// connections and hands each one, wrapped in a newline-framed Conn, to a
// SessionHandler on its own goroutine.
package linenet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/observability"
)

// RefusalLine is written to a connection turned away at the connection cap
// before it is closed.
const RefusalLine = "ERROR"

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// SessionHandler processes a connected client until it leaves or ctx is
// cancelled.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn) error
}

// Acceptor owns the client listener. Every admitted connection runs its
// session on its own goroutine under a context that Stop cancels.
// Connections beyond cfg.MaxConnections receive RefusalLine and are closed.
type Acceptor struct {
	cfg     config.ListenerConfig
	handler SessionHandler
	logger  *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	sessions sync.WaitGroup
	active   atomic.Int64

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

// NewAcceptor creates an acceptor for cfg.
//
// Precondition: handler and logger must be non-nil.
func NewAcceptor(cfg config.ListenerConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ListenAndServe binds cfg.Addr() and admits connections until Stop is
// called, then returns nil. Calling it after Stop returns nil at once.
//
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ln.Close()
	}
	a.listener = ln
	a.mu.Unlock()

	a.logger.Info("line acceptor listening",
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_connections", a.cfg.MaxConnections),
	)
	return a.serve(ln)
}

func (a *Acceptor) serve(ln net.Listener) error {
	var backoff time.Duration
	for {
		raw, err := ln.Accept()
		if err != nil {
			if a.ctx.Err() != nil {
				return nil
			}
			observability.AcceptError()
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accepting connections: %w", err)
			}
			backoff = nextBackoff(backoff)
			a.logger.Warn("accepting connection", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-time.After(backoff):
			case <-a.ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		if !a.admit() {
			a.refuse(raw)
			continue
		}
		a.mu.Lock()
		if a.stopped {
			a.mu.Unlock()
			a.active.Add(-1)
			_ = raw.Close()
			return nil
		}
		a.sessions.Add(1)
		a.mu.Unlock()
		go a.serveConn(raw)
	}
}

// nextBackoff doubles the accept retry delay up to maxAcceptBackoff.
func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptBackoff
	}
	return min(2*d, maxAcceptBackoff)
}

// admit reserves a connection slot, or reports false at the cap.
func (a *Acceptor) admit() bool {
	limit := int64(a.cfg.MaxConnections)
	for {
		n := a.active.Load()
		if limit > 0 && n >= limit {
			return false
		}
		if a.active.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (a *Acceptor) refuse(raw net.Conn) {
	observability.ConnectionRefused()
	a.logger.Warn("connection refused at capacity",
		zap.String("remote_addr", raw.RemoteAddr().String()),
		zap.Int("max_connections", a.cfg.MaxConnections),
	)
	conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
	_ = conn.WriteLine(RefusalLine)
	_ = conn.Close()
}

func (a *Acceptor) serveConn(raw net.Conn) {
	defer a.sessions.Done()
	defer a.active.Add(-1)

	// replies are single short lines
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	observability.ConnectionAccepted()

	start := time.Now()
	addr := raw.RemoteAddr().String()
	conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout)
	defer conn.Close()

	a.logger.Info("client connected",
		zap.String("remote_addr", addr),
		zap.Int64("active", a.active.Load()),
	)

	err := a.handler.HandleSession(a.ctx, conn)
	if err != nil {
		a.logger.Debug("session ended",
			zap.String("remote_addr", addr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	a.logger.Info("session ended cleanly",
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop cancels every session, closes the listener and waits for the session
// goroutines to exit. It is safe to call more than once.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.cancel()
	if a.listener != nil {
		_ = a.listener.Close()
	}
	a.mu.Unlock()

	a.sessions.Wait()
	a.logger.Info("line acceptor stopped")
}

// Addr returns the actual listening address, or "" if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning reports whether the acceptor is admitting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listener != nil && !a.stopped
}

// Active returns the number of connections holding a session slot.
func (a *Acceptor) Active() int {
	return int(a.active.Load())
}
