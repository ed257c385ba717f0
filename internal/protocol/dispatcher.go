package protocol

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/game/messages"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/game/settings"
	"github.com/cory-johannsen/arena/internal/observability"
)

// ErrQuit is returned by the EXIT handler to end the session.
var ErrQuit = errors.New("client quit")

// Game is the simulation as seen from a session goroutine: reads go to the
// latest published snapshot, writes are handed to the tick goroutine.
type Game interface {
	// Snapshot returns the most recently published state.
	Snapshot() *arena.Snapshot
	// Submit queues fn to run on the tick goroutine without waiting.
	Submit(fn func(*arena.Simulation)) error
	// Do runs fn on the tick goroutine and waits until the tick that ran it
	// has published its snapshot.
	Do(ctx context.Context, fn func(*arena.Simulation) error) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Game     Game
	Clients  *session.Manager
	Settings *settings.Settings
	Log      *messages.Log
	Logger   *zap.Logger
	// AllowRemoteSettings enables the SET command.
	AllowRemoteSettings bool
}

// Dispatcher parses lines and runs their units against the shared state.
// It is safe for concurrent use by many sessions.
type Dispatcher struct {
	deps     Deps
	registry *Registry
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil registry means
// DefaultRegistry().
func NewDispatcher(deps Deps, registry *Registry) *Dispatcher {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Dispatcher{deps: deps, registry: registry, now: time.Now}
}

// Registry returns the command registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs every unit of line in order and returns the reply line body
// (units joined by '#', no terminator). When a unit is EXIT, processing stops
// at once, nothing is replied and quit is true. Each unit that succeeds
// marks the client active.
func (d *Dispatcher) Dispatch(ctx context.Context, c *session.Client, line string) (reply string, quit bool) {
	units := ParseLine(line)
	replies := make([]string, 0, len(units))
	penalty := d.deps.Settings.Snapshot().PenaltyTime

	for _, u := range units {
		cmd, ok := d.registry.Resolve(u.Code)
		if !ok {
			observability.CommandHandled(codeUnknown, false)
			replies = append(replies, ErrorToken)
			continue
		}
		if !cmd.Unmetered && !c.Allow(d.now(), penalty) {
			observability.CommandHandled(cmd.Code, false)
			replies = append(replies, ErrorToken)
			continue
		}
		if !cmd.acceptsArgs(len(u.Args)) {
			observability.CommandHandled(cmd.Code, false)
			replies = append(replies, ErrorToken)
			continue
		}

		out, err := cmd.Handler(ctx, d, c, u.Args)
		if errors.Is(err, ErrQuit) {
			observability.CommandHandled(cmd.Code, true)
			return "", true
		}
		if err != nil {
			d.deps.Logger.Debug("command failed",
				zap.String("uid", c.UID),
				zap.String("code", cmd.Code),
				zap.Error(err),
			)
			observability.CommandHandled(cmd.Code, false)
			replies = append(replies, ErrorToken)
			continue
		}
		observability.CommandHandled(cmd.Code, true)
		c.Touch(d.now())
		replies = append(replies, out)
	}
	return JoinUnits(replies), false
}
