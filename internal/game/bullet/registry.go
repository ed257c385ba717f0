// Package bullet owns the transient projectiles fired by entities.
package bullet

import (
	"time"

	"github.com/cory-johannsen/arena/internal/game/entity"
	"github.com/cory-johannsen/arena/internal/game/physics"
)

// ID identifies a bullet. IDs are never reused.
type ID uint64

// Bullet is one projectile. Owner is a back-reference only: the shooter may
// be gone while its bullets fly on.
type Bullet struct {
	ID        ID
	Owner     entity.ID
	SpawnTime time.Duration
	Body      physics.BodyHandle
	Collider  physics.ColliderHandle
	// Position is refreshed from the body after every step.
	Position physics.Vec2
}

// Age returns how long the bullet has existed at now.
func (b *Bullet) Age(now time.Duration) time.Duration {
	return now - b.SpawnTime
}

// Registry owns every live bullet. Not safe for concurrent use.
type Registry struct {
	world   *physics.World
	bullets []*Bullet
	byBody  map[physics.BodyHandle]*Bullet
	nextID  ID
}

// NewRegistry returns an empty registry creating bodies in w.
func NewRegistry(w *physics.World) *Registry {
	return &Registry{
		world:  w,
		byBody: make(map[physics.BodyHandle]*Bullet),
		nextID: 1,
	}
}

// Spawn fires a bullet from the shooter's position along its gun
// orientation. It reports false when the shooter has no live body.
func (r *Registry) Spawn(shooter *entity.Entity, speed, radius float64, now time.Duration) (ID, bool) {
	if shooter == nil || !r.world.Contains(shooter.Body) {
		return 0, false
	}
	pos := r.world.Position(shooter.Body)
	vel := physics.FromAngle(shooter.GunOrientation).Scale(speed)
	body := r.world.InsertBody(physics.BodyDesc{
		Kind:     physics.Dynamic,
		Position: pos,
		Velocity: vel,
		Rotation: shooter.GunOrientation,
	})
	col := r.world.InsertCollider(physics.ColliderDesc{Shape: physics.Ball(radius)}, body)
	b := &Bullet{
		ID:        r.nextID,
		Owner:     shooter.ID,
		SpawnTime: now,
		Body:      body,
		Collider:  col,
		Position:  pos,
	}
	r.nextID++
	r.bullets = append(r.bullets, b)
	r.byBody[body] = b
	return b.ID, true
}

// Remove deletes a bullet and its body. Removing an unknown or already
// removed id is a no-op; the result reports whether anything was removed.
func (r *Registry) Remove(id ID) bool {
	for i, b := range r.bullets {
		if b.ID != id {
			continue
		}
		if r.world.Contains(b.Body) {
			r.world.RemoveBody(b.Body)
		}
		delete(r.byBody, b.Body)
		r.bullets = append(r.bullets[:i], r.bullets[i+1:]...)
		return true
	}
	return false
}

// PruneExpired removes every bullet whose age at now is at least maxAge and
// returns their ids.
func (r *Registry) PruneExpired(now, maxAge time.Duration) []ID {
	return r.pruneWhere(func(b *Bullet) bool {
		return b.Age(now) >= maxAge
	})
}

// PruneOutOfBounds removes every bullet lying strictly outside
// [0,width]×[0,height] and returns their ids.
func (r *Registry) PruneOutOfBounds(width, height float64) []ID {
	return r.pruneWhere(func(b *Bullet) bool {
		p := r.world.Position(b.Body)
		return p.X < 0 || p.X > width || p.Y < 0 || p.Y > height
	})
}

func (r *Registry) pruneWhere(match func(*Bullet) bool) []ID {
	var removed []ID
	kept := r.bullets[:0]
	for _, b := range r.bullets {
		if !match(b) {
			kept = append(kept, b)
			continue
		}
		if r.world.Contains(b.Body) {
			r.world.RemoveBody(b.Body)
		}
		delete(r.byBody, b.Body)
		removed = append(removed, b.ID)
	}
	for i := len(kept); i < len(r.bullets); i++ {
		r.bullets[i] = nil
	}
	r.bullets = kept
	return removed
}

// Clear removes every bullet.
func (r *Registry) Clear() {
	r.pruneWhere(func(*Bullet) bool { return true })
}

// SyncPositions refreshes every cached position from its body.
func (r *Registry) SyncPositions() {
	for _, b := range r.bullets {
		b.Position = r.world.Position(b.Body)
	}
}

// Get returns the bullet with the given id.
func (r *Registry) Get(id ID) (*Bullet, bool) {
	for _, b := range r.bullets {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// ByBody returns the bullet owning body h.
func (r *Registry) ByBody(h physics.BodyHandle) (*Bullet, bool) {
	b, ok := r.byBody[h]
	return b, ok
}

// All returns the live bullets in spawn order.
func (r *Registry) All() []*Bullet {
	out := make([]*Bullet, len(r.bullets))
	copy(out, r.bullets)
	return out
}

// Len returns the number of live bullets.
func (r *Registry) Len() int { return len(r.bullets) }
