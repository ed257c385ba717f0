// Package ai drives AI-flagged entities: periodic retargeting, seek-and-move
// and periodic firing.
package ai

import (
	"math"
	"time"

	"github.com/cory-johannsen/arena/internal/game/entity"
	"github.com/cory-johannsen/arena/internal/game/rng"
)

// Params tunes AI behaviour.
type Params struct {
	// Retarget intervals are drawn uniformly from [MinRetarget, MaxRetarget).
	MinRetarget time.Duration
	MaxRetarget time.Duration
	// Speed is the distance moved per tick.
	Speed float64
	// Epsilon is the distance at which a target counts as reached.
	Epsilon float64
}

// DefaultParams returns the standard AI tuning.
func DefaultParams() Params {
	return Params{
		MinRetarget: time.Second,
		MaxRetarget: 3 * time.Second,
		Speed:       1,
		Epsilon:     1,
	}
}

// FireFunc fires a bullet for e and reports whether one was spawned.
type FireFunc func(e *entity.Entity) bool

// Controller updates AI entities once per tick.
type Controller struct {
	params Params
	src    rng.Source
}

// NewController creates a Controller drawing randomness from src.
func NewController(src rng.Source, p Params) *Controller {
	return &Controller{params: p, src: src}
}

// Update runs one AI pass over every AI entity in reg at simulation time now
// and returns how many shots were fired.
func (c *Controller) Update(reg *entity.Registry, now, fireInterval time.Duration, fire FireFunc) int {
	shots := 0
	for _, e := range reg.All() {
		if !e.IsAI {
			continue
		}
		c.retarget(reg, e, now)
		c.seek(reg, e)
		if !e.HasFired || now-e.LastActionTime > fireInterval {
			if fire(e) {
				shots++
			}
			e.MarkFired(now)
		}
	}
	return shots
}

func (c *Controller) retarget(reg *entity.Registry, e *entity.Entity, now time.Duration) {
	if e.RetargetInterval == 0 {
		e.RetargetInterval = c.interval()
	}
	if now-e.RetargetAt <= e.RetargetInterval {
		return
	}
	target := reg.RandomInterior()
	for target == e.Position {
		target = reg.RandomInterior()
	}
	e.Target = target
	reg.Aim(e.Name, rng.Angle(c.src))
	e.RetargetAt = now
	e.RetargetInterval = c.interval()
}

func (c *Controller) seek(reg *entity.Registry, e *entity.Entity) {
	d := e.Target.Sub(e.Position)
	dist := d.Len()
	if dist <= c.params.Epsilon {
		return
	}
	e.SelfOrientation = math.Atan2(d.Y, d.X)
	step := d.Normalize().Scale(math.Min(c.params.Speed, dist))
	reg.Move(e.ID, e.Position.Add(step))
}

func (c *Controller) interval() time.Duration {
	lo := float64(c.params.MinRetarget)
	hi := float64(c.params.MaxRetarget)
	return time.Duration(rng.Range(c.src, lo, math.Max(lo, hi)))
}

