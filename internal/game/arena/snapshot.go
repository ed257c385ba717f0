package arena

import (
	"math"

	"github.com/cory-johannsen/arena/internal/game/bullet"
	"github.com/cory-johannsen/arena/internal/game/entity"
	"github.com/cory-johannsen/arena/internal/game/physics"
)

// EntityView is the read-only view of an entity.
type EntityView struct {
	ID              entity.ID `json:"id"`
	Name            string    `json:"name"`
	Score           int       `json:"score"`
	IsAI            bool      `json:"is_ai"`
	X               float64   `json:"x"`
	Y               float64   `json:"y"`
	SelfOrientation float64   `json:"self_orientation"`
	GunOrientation  float64   `json:"gun_orientation"`
	Color           [3]uint8  `json:"color"`
}

// BulletView is the read-only view of a bullet.
type BulletView struct {
	ID    bullet.ID `json:"id"`
	Owner entity.ID `json:"owner"`
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Age   float64   `json:"age_seconds"`
}

// ObstacleView is the read-only view of an obstacle.
type ObstacleView struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	HalfExtent float64 `json:"half_extent"`
}

// Snapshot is an immutable copy of the public simulation state taken at the
// end of a tick. It is safe to share between goroutines.
type Snapshot struct {
	Tick      uint64         `json:"tick"`
	Time      float64        `json:"time_seconds"`
	Round     int            `json:"round"`
	Width     float64        `json:"width"`
	Height    float64        `json:"height"`
	Entities  []EntityView   `json:"entities"`
	Bullets   []BulletView   `json:"bullets"`
	Obstacles []ObstacleView `json:"obstacles"`
}

// Snapshot copies the current state.
func (s *Simulation) Snapshot() *Snapshot {
	now := s.Now()
	snap := &Snapshot{
		Tick:      s.tick,
		Time:      now.Seconds(),
		Round:     s.round,
		Width:     s.width,
		Height:    s.height,
		Entities:  make([]EntityView, 0, s.entities.Len()),
		Bullets:   make([]BulletView, 0, s.bullets.Len()),
		Obstacles: make([]ObstacleView, 0, s.obstacles.Len()),
	}
	for _, e := range s.entities.All() {
		snap.Entities = append(snap.Entities, EntityView{
			ID:              e.ID,
			Name:            e.Name,
			Score:           e.Score,
			IsAI:            e.IsAI,
			X:               e.Position.X,
			Y:               e.Position.Y,
			SelfOrientation: e.SelfOrientation,
			GunOrientation:  e.GunOrientation,
			Color:           [3]uint8{e.Color.R, e.Color.G, e.Color.B},
		})
	}
	for _, b := range s.bullets.All() {
		snap.Bullets = append(snap.Bullets, BulletView{
			ID:    b.ID,
			Owner: b.Owner,
			X:     b.Position.X,
			Y:     b.Position.Y,
			Age:   b.Age(now).Seconds(),
		})
	}
	for _, o := range s.obstacles.All() {
		snap.Obstacles = append(snap.Obstacles, ObstacleView{X: o.Position.X, Y: o.Position.Y, HalfExtent: o.HalfExtent})
	}
	return snap
}

// Entity returns the named entity.
func (s *Snapshot) Entity(name string) (EntityView, bool) {
	for _, e := range s.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return EntityView{}, false
}

// Names returns every entity name in spawn order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		names = append(names, e.Name)
	}
	return names
}

// Centre returns the middle of the arena.
func (s *Snapshot) Centre() physics.Vec2 {
	return physics.V(s.Width/2, s.Height/2)
}

// ClosestBot returns the AI entity nearest to from, skipping the entity
// named exclude. Ties go to the earliest spawned.
func (s *Snapshot) ClosestBot(from physics.Vec2, exclude string) (EntityView, bool) {
	var best EntityView
	bestDist := math.Inf(1)
	found := false
	for _, e := range s.Entities {
		if !e.IsAI || e.Name == exclude {
			continue
		}
		if d := physics.V(e.X, e.Y).Sub(from).Len(); d < bestDist {
			best, bestDist, found = e, d, true
		}
	}
	return best, found
}

// ClosestBullet returns the bullet nearest to from that was not fired by
// excludeOwner. Ties go to the earliest fired.
func (s *Snapshot) ClosestBullet(from physics.Vec2, excludeOwner entity.ID) (BulletView, bool) {
	var best BulletView
	bestDist := math.Inf(1)
	found := false
	for _, b := range s.Bullets {
		if excludeOwner != 0 && b.Owner == excludeOwner {
			continue
		}
		if d := physics.V(b.X, b.Y).Sub(from).Len(); d < bestDist {
			best, bestDist, found = b, d, true
		}
	}
	return best, found
}
