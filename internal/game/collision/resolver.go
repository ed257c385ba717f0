// Package collision turns physics contact events into bullet hits and score
// changes.
package collision

import (
	"github.com/cory-johannsen/arena/internal/game/bullet"
	"github.com/cory-johannsen/arena/internal/game/entity"
	"github.com/cory-johannsen/arena/internal/game/physics"
)

// Hit is one bullet striking an entity other than its owner. Credited is
// false when the owner no longer exists, in which case no score changed.
type Hit struct {
	Bullet     bullet.ID
	Shooter    entity.ID
	Victim     entity.ID
	VictimName string
	Credited   bool
}

// Resolver attributes bullet hits. Not safe for concurrent use.
type Resolver struct {
	world    *physics.World
	entities *entity.Registry
	bullets  *bullet.Registry
}

// NewResolver creates a Resolver over the given world and registries.
func NewResolver(w *physics.World, entities *entity.Registry, bullets *bullet.Registry) *Resolver {
	return &Resolver{world: w, entities: entities, bullets: bullets}
}

// Resolve processes contact-start events in order. A bullet touching a
// non-owner entity scores one point for its owner and is removed once every
// event has been examined; each bullet scores at most once. Contacts with
// the owner, walls, obstacles or other bullets change nothing.
func (r *Resolver) Resolve(events []physics.CollisionEvent) []Hit {
	var hits []Hit
	spent := make(map[bullet.ID]bool)
	var remove []bullet.ID

	for _, ev := range events {
		if ev.Kind != physics.CollisionStarted {
			continue
		}
		if !r.world.ContainsCollider(ev.A) || !r.world.ContainsCollider(ev.B) {
			continue
		}
		pa, pb := r.world.Parent(ev.A), r.world.Parent(ev.B)
		b, ok := r.bullets.ByBody(pa)
		other := pb
		if !ok {
			b, ok = r.bullets.ByBody(pb)
			other = pa
		}
		if !ok || spent[b.ID] {
			continue
		}
		victim, ok := r.entities.ByBody(other)
		if !ok || victim.ID == b.Owner {
			continue
		}

		hit := Hit{Bullet: b.ID, Shooter: b.Owner, Victim: victim.ID, VictimName: victim.Name}
		if owner, alive := r.entities.Get(b.Owner); alive {
			owner.Score++
			hit.Credited = true
		}
		spent[b.ID] = true
		remove = append(remove, b.ID)
		hits = append(hits, hit)
	}

	for _, id := range remove {
		r.bullets.Remove(id)
	}
	return hits
}
