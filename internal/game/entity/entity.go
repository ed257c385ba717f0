// Package entity owns the player- and AI-controlled actors in the arena.
package entity

import (
	"time"

	"github.com/cory-johannsen/arena/internal/game/physics"
)

// ID identifies an entity for its lifetime. IDs are never reused.
type ID uint64

// Color is a display colour.
type Color struct {
	R, G, B uint8
}

// Entity is one simulated actor. Body and Collider are non-owning handles
// into the physics world.
type Entity struct {
	ID    ID
	Name  string
	Score int
	IsAI  bool

	Body     physics.BodyHandle
	Collider physics.ColliderHandle

	// Position is refreshed from the body after every step.
	Position        physics.Vec2
	SelfOrientation float64
	GunOrientation  float64

	// Target is where an AI entity is heading.
	Target           physics.Vec2
	RetargetAt       time.Duration
	RetargetInterval time.Duration

	// LastActionTime is the simulation time of the last shot; meaningful
	// only when HasFired is set.
	LastActionTime time.Duration
	HasFired       bool

	Color Color
}

// CanFire reports whether at least cooldown has elapsed since the entity's
// last shot.
func (e *Entity) CanFire(now, cooldown time.Duration) bool {
	return !e.HasFired || now-e.LastActionTime >= cooldown
}

// MarkFired records a shot at now.
func (e *Entity) MarkFired(now time.Duration) {
	e.LastActionTime = now
	e.HasFired = true
}
