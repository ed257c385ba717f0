// Package gameserver owns the simulation goroutine: it ticks the arena at a
// fixed rate, applies queued requests between ticks and publishes an
// immutable snapshot after every tick.
package gameserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/observability"
)

// DefaultInboxSize is the inbox capacity used when none is given.
const DefaultInboxSize = 1024

var (
	// ErrInboxFull is returned when a request cannot be queued without
	// blocking the caller.
	ErrInboxFull = errors.New("simulation inbox full")
	// ErrStopped is returned once the loop has exited.
	ErrStopped = errors.New("simulation loop stopped")
)

type request struct {
	fn   func(*arena.Simulation) error
	done chan error
}

type reply struct {
	done chan error
	err  error
}

// Loop is the single writer of a Simulation.
//
// Invariant: sim is only touched by the goroutine running Step (Run, or a
// test calling Step directly).
type Loop struct {
	sim      *arena.Simulation
	interval time.Duration
	logger   *zap.Logger

	inbox    chan request
	snapshot atomic.Pointer[arena.Snapshot]

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewLoop wraps sim. tickRate is ticks per second; inboxSize <= 0 means
// DefaultInboxSize.
//
// Precondition: sim is non-nil and tickRate > 0.
// Postcondition: Snapshot returns the state of sim before its first tick.
func NewLoop(sim *arena.Simulation, tickRate, inboxSize int, logger *zap.Logger) *Loop {
	if tickRate <= 0 {
		panic("gameserver.NewLoop: tickRate must be > 0")
	}
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		sim:      sim,
		interval: time.Second / time.Duration(tickRate),
		logger:   logger,
		inbox:    make(chan request, inboxSize),
		stopped:  make(chan struct{}),
	}
	l.snapshot.Store(sim.Snapshot())
	return l
}

// Snapshot returns the most recently published state. It never blocks.
func (l *Loop) Snapshot() *arena.Snapshot {
	return l.snapshot.Load()
}

// Submit queues fn for the next tick without waiting for it.
func (l *Loop) Submit(fn func(*arena.Simulation)) error {
	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}
	req := request{fn: func(sim *arena.Simulation) error {
		fn(sim)
		return nil
	}}
	select {
	case l.inbox <- req:
		return nil
	default:
		observability.InboxDropped()
		return ErrInboxFull
	}
}

// Do runs fn on the simulation goroutine and returns its error once the
// tick that ran it has published its snapshot.
func (l *Loop) Do(ctx context.Context, fn func(*arena.Simulation) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case l.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	}
}

// Run ticks the simulation until ctx is cancelled.
//
// Postcondition: pending Do callers have been released with ErrStopped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	l.logger.Info("simulation loop started", zap.Duration("interval", l.interval))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("simulation loop stopped", zap.Uint64("tick", l.sim.TickCount()))
			return nil
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step applies the queued requests, advances the simulation one tick and
// publishes the new snapshot.
func (l *Loop) Step() arena.TickResult {
	start := time.Now()

	var replies []reply
	for n := len(l.inbox); n > 0; n-- {
		req := <-l.inbox
		err := req.fn(l.sim)
		if req.done != nil {
			replies = append(replies, reply{done: req.done, err: err})
		}
	}

	res := l.sim.Tick()
	snap := l.sim.Snapshot()
	l.snapshot.Store(snap)

	credited := 0
	for _, hit := range res.Hits {
		if hit.Credited {
			credited++
		}
	}
	observability.AddHits(credited)
	observability.ObserveTick(time.Since(start), len(snap.Entities), len(snap.Bullets))

	if res.Winner != "" {
		l.logger.Info("round finished",
			zap.String("winner", res.Winner),
			zap.Uint64("tick", res.Tick),
			zap.Int("round", snap.Round),
		)
	}

	for _, r := range replies {
		r.done <- r.err
	}
	return res
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() {
		close(l.stopped)
		for {
			select {
			case req := <-l.inbox:
				if req.done != nil {
					req.done <- ErrStopped
				}
			default:
				return
			}
		}
	})
}
