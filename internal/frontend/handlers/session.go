// Package handlers runs the per-connection session loop of the line
// protocol.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/frontend/linenet"
	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/game/messages"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/game/settings"
	"github.com/cory-johannsen/arena/internal/observability"
	"github.com/cory-johannsen/arena/internal/protocol"
)

// ErrIdleTimeout ends a session that sent nothing useful for longer than the
// connection timeout.
var ErrIdleTimeout = errors.New("idle timeout")

// Limits are the per-session flood limits.
type Limits struct {
	CommandsPerSecond float64
	CommandBurst      int
}

// LimitsFromConfig extracts the flood limits from the listener config.
func LimitsFromConfig(cfg config.ListenerConfig) Limits {
	return Limits{CommandsPerSecond: cfg.CommandsPerSecond, CommandBurst: cfg.CommandBurst}
}

// SessionHandler implements linenet.SessionHandler: it registers the client,
// feeds each line to the dispatcher and tears the client down when the
// session ends.
type SessionHandler struct {
	dispatcher *protocol.Dispatcher
	game       protocol.Game
	clients    *session.Manager
	settings   *settings.Settings
	log        *messages.Log
	limits     Limits
	logger     *zap.Logger
	now        func() time.Time
}

// NewSessionHandler creates a SessionHandler.
//
// Precondition: every argument is non-nil.
func NewSessionHandler(
	dispatcher *protocol.Dispatcher,
	game protocol.Game,
	clients *session.Manager,
	st *settings.Settings,
	log *messages.Log,
	limits Limits,
	logger *zap.Logger,
) *SessionHandler {
	return &SessionHandler{
		dispatcher: dispatcher,
		game:       game,
		clients:    clients,
		settings:   st,
		log:        log,
		limits:     limits,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleSession runs the read loop for one connection.
//
// Postcondition: the client is unregistered, its entity is queued for
// removal and the end of the session has been logged exactly once.
func (h *SessionHandler) HandleSession(ctx context.Context, conn *linenet.Conn) error {
	addr := conn.RemoteAddr().String()
	c := h.clients.Connect(addr)
	c.Touch(h.now())
	if h.limits.CommandsPerSecond > 0 {
		c.SetLimiter(rate.NewLimiter(rate.Limit(h.limits.CommandsPerSecond), h.limits.CommandBurst))
	}
	observability.SessionOpened()

	reason, err := h.loop(ctx, conn, c)

	h.finish(c, addr, reason, err)
	return err
}

// loop returns the end reason and, for abnormal ends, the cause.
func (h *SessionHandler) loop(ctx context.Context, conn *linenet.Conn, c *session.Client) (string, error) {
	for {
		if ctx.Err() != nil {
			return observability.EndReasonShutdown, nil
		}
		if idle := c.IdleFor(h.now()); idle > h.settings.Snapshot().ConnectionTimeout {
			return observability.EndReasonTimeout, ErrIdleTimeout
		}

		line, err := conn.ReadLine()
		if linenet.IsTimeout(err) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return observability.EndReasonDisconnect, nil
		}
		if err != nil {
			return observability.EndReasonError, fmt.Errorf("reading input: %w", err)
		}

		reply, quit := h.dispatcher.Dispatch(ctx, c, line)
		if quit {
			return observability.EndReasonQuit, nil
		}
		if reply == "" {
			continue
		}
		if err := conn.WriteLine(reply); err != nil {
			return observability.EndReasonError, fmt.Errorf("writing reply: %w", err)
		}
	}
}

func (h *SessionHandler) finish(c *session.Client, addr, reason string, cause error) {
	switch reason {
	case observability.EndReasonTimeout:
		h.log.Add("Connection timeout: "+addr, messages.Warning)
	case observability.EndReasonDisconnect:
		h.log.Add("Client disconnected: "+addr, messages.ClientDisconnect)
	case observability.EndReasonQuit:
		h.log.Add("Client exited: "+addr, messages.ClientExit)
	case observability.EndReasonError:
		h.log.Add(fmt.Sprintf("Connection error from %s: %v", addr, cause), messages.Error)
	case observability.EndReasonShutdown:
		h.logger.Info("session closed by shutdown", zap.String("remote_addr", addr))
	}

	if name := c.Name(); name != "" && c.EntityID() != 0 {
		if err := h.game.Submit(func(sim *arena.Simulation) { sim.RemoveEntity(name) }); err != nil {
			h.logger.Warn("queueing entity removal",
				zap.String("name", name),
				zap.Error(err),
			)
		}
	}
	if err := h.clients.Disconnect(c.UID); err != nil {
		h.logger.Warn("unregistering client", zap.String("uid", c.UID), zap.Error(err))
	}
	observability.SessionClosed(reason)
}
