package entity

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cory-johannsen/arena/internal/game/physics"
	"github.com/cory-johannsen/arena/internal/game/rng"
)

// Sentinel errors returned by Spawn and Rename.
var (
	ErrDuplicateName = errors.New("entity name already in use")
	ErrEmptyName     = errors.New("entity name must not be empty")
	ErrNotFound      = errors.New("entity not found")
)

// Params sizes entities and the area they may occupy.
type Params struct {
	Width  float64
	Height float64
	// Margin keeps spawn points away from the walls.
	Margin float64
	// HalfExtent is the half-size of every entity's square collider.
	HalfExtent float64
}

// DefaultParams returns the standard entity geometry for a width×height
// arena.
func DefaultParams(width, height float64) Params {
	return Params{Width: width, Height: height, Margin: 50, HalfExtent: 10}
}

// Registry owns every live entity. Names are unique among live entities.
// Not safe for concurrent use.
type Registry struct {
	world  *physics.World
	src    rng.Source
	params Params

	entities []*Entity
	byName   map[string]*Entity
	byBody   map[physics.BodyHandle]*Entity
	nextID   ID
}

// NewRegistry returns an empty registry creating bodies in w.
func NewRegistry(w *physics.World, src rng.Source, p Params) *Registry {
	return &Registry{
		world:  w,
		src:    src,
		params: p,
		byName: make(map[string]*Entity),
		byBody: make(map[physics.BodyHandle]*Entity),
		nextID: 1,
	}
}

// SetBounds updates the arena size used for spawning and clamping and moves
// every entity back inside the new walls.
func (r *Registry) SetBounds(width, height float64) {
	r.params.Width, r.params.Height = width, height
	for _, e := range r.entities {
		pos := r.clamp(e.Position)
		if pos == e.Position {
			continue
		}
		r.world.SetPosition(e.Body, pos)
		e.Position = pos
	}
}

// RandomInterior returns a uniformly random point at least Margin from every
// wall.
func (r *Registry) RandomInterior() physics.Vec2 {
	m := r.params.Margin
	return physics.V(
		rng.Range(r.src, m, math.Max(m, r.params.Width-m)),
		rng.Range(r.src, m, math.Max(m, r.params.Height-m)),
	)
}

// Spawn creates an entity at a random interior point with a kinematic body
// and a square collider. A duplicate name leaves the registry unchanged.
//
// Postcondition: on success exactly one live entity is named name, with
// score 0 and a live body.
func (r *Registry) Spawn(name string, isAI bool, now time.Duration) (ID, error) {
	if name == "" {
		return 0, ErrEmptyName
	}
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	pos := r.RandomInterior()
	body := r.world.InsertBody(physics.BodyDesc{Kind: physics.Kinematic, Position: pos})
	he := r.params.HalfExtent
	col := r.world.InsertCollider(physics.ColliderDesc{Shape: physics.Cuboid(he, he)}, body)

	e := &Entity{
		ID:         r.nextID,
		Name:       name,
		IsAI:       isAI,
		Body:       body,
		Collider:   col,
		Position:   pos,
		Target:     pos,
		RetargetAt: now,
	}
	r.nextID++
	r.entities = append(r.entities, e)
	r.byName[name] = e
	r.byBody[body] = e
	return e.ID, nil
}

// Remove deletes the named entity together with its body. It reports
// whether anything was removed.
func (r *Registry) Remove(name string) bool {
	e, ok := r.byName[name]
	if !ok {
		return false
	}
	if r.world.Contains(e.Body) {
		r.world.RemoveBody(e.Body)
	}
	delete(r.byName, name)
	delete(r.byBody, e.Body)
	for i, x := range r.entities {
		if x == e {
			r.entities = append(r.entities[:i], r.entities[i+1:]...)
			break
		}
	}
	return true
}

// Rename changes an entity's name, keeping everything else.
func (r *Registry) Rename(id ID, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	e, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	if e.Name == name {
		return nil
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	delete(r.byName, e.Name)
	e.Name = name
	r.byName[name] = e
	return nil
}

// RepositionAll teleports every entity to a new random interior point.
// Scores and names are untouched.
func (r *Registry) RepositionAll() {
	for _, e := range r.entities {
		pos := r.RandomInterior()
		r.world.SetPosition(e.Body, pos)
		e.Position = pos
		e.Target = pos
	}
}

// ResetScores sets every score to zero.
func (r *Registry) ResetScores() {
	for _, e := range r.entities {
		e.Score = 0
	}
}

// Move teleports an entity to pos, clamped inside the walls. The move takes
// part in the next contact pass.
func (r *Registry) Move(id ID, pos physics.Vec2) {
	e, ok := r.Get(id)
	if !ok {
		return
	}
	pos = r.clamp(pos)
	r.world.SetPosition(e.Body, pos)
	e.Position = pos
}

// Steer schedules an entity to travel to pos during the next step, clamped
// inside the walls.
func (r *Registry) Steer(id ID, pos physics.Vec2) {
	e, ok := r.Get(id)
	if !ok {
		return
	}
	r.world.SetNextKinematicPosition(e.Body, r.clamp(pos))
}

func (r *Registry) clamp(pos physics.Vec2) physics.Vec2 {
	lo := r.params.HalfExtent + physics.WallHalfThickness
	return physics.V(
		math.Min(math.Max(pos.X, lo), math.Max(lo, r.params.Width-lo)),
		math.Min(math.Max(pos.Y, lo), math.Max(lo, r.params.Height-lo)),
	)
}

// SyncPositions refreshes every cached position from its body.
func (r *Registry) SyncPositions() {
	for _, e := range r.entities {
		e.Position = r.world.Position(e.Body)
	}
}

// SetColor sets the display colour of the named entity.
func (r *Registry) SetColor(name string, c Color) bool {
	e, ok := r.byName[name]
	if !ok {
		return false
	}
	e.Color = c
	return true
}

// Aim sets the gun orientation of the named entity.
func (r *Registry) Aim(name string, theta float64) bool {
	e, ok := r.byName[name]
	if !ok {
		return false
	}
	e.GunOrientation = theta
	r.world.SetRotation(e.Body, theta)
	return true
}

// Get returns the entity with the given id.
func (r *Registry) Get(id ID) (*Entity, bool) {
	for _, e := range r.entities {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// ByName returns the entity with the given name.
func (r *Registry) ByName(name string) (*Entity, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// ByBody returns the entity owning body h.
func (r *Registry) ByBody(h physics.BodyHandle) (*Entity, bool) {
	e, ok := r.byBody[h]
	return e, ok
}

// All returns the live entities in insertion order. The slice is a copy;
// the entities are not.
func (r *Registry) All() []*Entity {
	out := make([]*Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// Len returns the number of live entities.
func (r *Registry) Len() int { return len(r.entities) }
