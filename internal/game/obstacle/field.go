// Package obstacle manages the static, regenerable obstacles scattered in
// the arena.
package obstacle

import (
	"github.com/cory-johannsen/arena/internal/game/physics"
	"github.com/cory-johannsen/arena/internal/game/rng"
)

// Obstacle is a static box. The body and collider are owned by the world.
type Obstacle struct {
	Position   physics.Vec2
	HalfExtent float64
	Body       physics.BodyHandle
	Collider   physics.ColliderHandle
}

// Params controls generation. The arena interior, shrunk by Margin on every
// side, is divided into CellSize squares; each cell independently holds an
// obstacle at its centre with probability Probability.
type Params struct {
	Width       float64
	Height      float64
	Probability float64
	CellSize    float64
	HalfExtent  float64
	Margin      float64
}

// DefaultParams returns generation parameters for a width×height arena.
func DefaultParams(width, height, probability float64) Params {
	return Params{
		Width:       width,
		Height:      height,
		Probability: probability,
		CellSize:    100,
		HalfExtent:  15,
		Margin:      100,
	}
}

// Field is the current obstacle set.
type Field struct {
	obstacles []Obstacle
}

// NewField returns an empty field.
func NewField() *Field {
	return &Field{}
}

// Generate replaces every obstacle with a freshly rolled set.
//
// Postcondition: no body from the previous set remains in w.
func (f *Field) Generate(w *physics.World, src rng.Source, p Params) {
	f.Clear(w)
	if p.CellSize <= 0 {
		return
	}
	for y := p.Margin + p.CellSize/2; y <= p.Height-p.Margin-p.CellSize/2; y += p.CellSize {
		for x := p.Margin + p.CellSize/2; x <= p.Width-p.Margin-p.CellSize/2; x += p.CellSize {
			if !rng.Chance(src, p.Probability) {
				continue
			}
			pos := physics.V(x, y)
			body := w.InsertBody(physics.BodyDesc{Kind: physics.Static, Position: pos})
			col := w.InsertCollider(physics.ColliderDesc{
				Shape: physics.Cuboid(p.HalfExtent, p.HalfExtent),
			}, body)
			f.obstacles = append(f.obstacles, Obstacle{
				Position:   pos,
				HalfExtent: p.HalfExtent,
				Body:       body,
				Collider:   col,
			})
		}
	}
}

// Clear removes every obstacle body from w.
func (f *Field) Clear(w *physics.World) {
	for _, o := range f.obstacles {
		if w.Contains(o.Body) {
			w.RemoveBody(o.Body)
		}
	}
	f.obstacles = nil
}

// Trim removes every obstacle whose box is not fully inside a width×height
// arena and returns how many were removed.
func (f *Field) Trim(w *physics.World, width, height float64) int {
	kept := f.obstacles[:0]
	removed := 0
	for _, o := range f.obstacles {
		h := o.HalfExtent
		if o.Position.X-h >= 0 && o.Position.X+h <= width && o.Position.Y-h >= 0 && o.Position.Y+h <= height {
			kept = append(kept, o)
			continue
		}
		if w.Contains(o.Body) {
			w.RemoveBody(o.Body)
		}
		removed++
	}
	f.obstacles = kept
	return removed
}

// All returns a copy of the current obstacles.
func (f *Field) All() []Obstacle {
	out := make([]Obstacle, len(f.obstacles))
	copy(out, f.obstacles)
	return out
}

// Len returns the number of obstacles.
func (f *Field) Len() int { return len(f.obstacles) }

// Owns reports whether h is an obstacle body.
func (f *Field) Owns(h physics.BodyHandle) bool {
	for _, o := range f.obstacles {
		if o.Body == h {
			return true
		}
	}
	return false
}
