// Package physics is a small rigid-body world: bodies and colliders addressed
// by generation-checked handles, fixed-step integration, contact response for
// dynamic bodies against static geometry, and collision start/stop events.
package physics

import (
	"fmt"
	"sort"

	"github.com/solarlune/resolv"
)

// BodyKind selects how a body moves.
type BodyKind int

const (
	// Static bodies never move.
	Static BodyKind = iota
	// Kinematic bodies are moved only by position targets, never by
	// contacts or by their own velocity.
	Kinematic
	// Dynamic bodies integrate velocity and gravity and are pushed out of
	// static geometry.
	Dynamic
)

// WallHalfThickness is the half-thickness of each boundary wall.
const WallHalfThickness = 10.0

const (
	spaceCell   = 32
	spaceMargin = 256.0
	// broad-phase boxes are padded so shallow overlaps still share a cell
	broadPad = 2.0
)

// Params configures a World.
type Params struct {
	// Gravity is applied to dynamic bodies every step. Zero by default.
	Gravity Vec2
	// Dt is the fixed step length in seconds.
	Dt float64
	// Width and Height size the broad-phase grid. Bodies outside still
	// simulate; they simply stop colliding once they leave the grid margin.
	Width, Height float64
}

// BodyDesc describes a body to insert.
type BodyDesc struct {
	Kind     BodyKind
	Position Vec2
	Velocity Vec2
	Rotation float64
}

// ColliderDesc describes a collider to attach to a body.
type ColliderDesc struct {
	Shape Shape
	// Restitution is the fraction of normal velocity kept on contact.
	Restitution float64
	// Sensor colliders report events but never push anything.
	Sensor bool
}

// EventKind distinguishes contact start from contact stop.
type EventKind int

const (
	// CollisionStarted fires on the first step two colliders overlap.
	CollisionStarted EventKind = iota
	// CollisionStopped fires on the first step they no longer overlap.
	CollisionStopped
)

// CollisionEvent reports a change in contact between two colliders.
// A has the lower slot index of the pair.
type CollisionEvent struct {
	Kind EventKind
	A, B ColliderHandle
}

type body struct {
	desc      BodyDesc
	next      *Vec2
	colliders []ColliderHandle
}

type collider struct {
	desc   ColliderDesc
	parent BodyHandle
	obj    *resolv.Object
}

type pairKey struct {
	a, b ColliderHandle
}

func makePair(x, y ColliderHandle) pairKey {
	if y.index < x.index {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// World owns every body and collider. It is not safe for concurrent use;
// callers serialize access (the tick loop is the only writer).
type World struct {
	params    Params
	bodies    slotMap[body]
	colliders slotMap[collider]
	space     *resolv.Space
	contacts  map[pairKey]struct{}
	events    []CollisionEvent
	walls     []BodyHandle
}

// NewWorld returns an empty world.
//
// Precondition: p.Dt > 0.
func NewWorld(p Params) *World {
	if p.Dt <= 0 {
		panic("physics: Params.Dt must be positive")
	}
	w := &World{
		params:   p,
		contacts: make(map[pairKey]struct{}),
	}
	w.space = newSpace(p.Width, p.Height)
	return w
}

func newSpace(width, height float64) *resolv.Space {
	sw := int(width+2*spaceMargin) + spaceCell
	sh := int(height+2*spaceMargin) + spaceCell
	return resolv.NewSpace(sw, sh, spaceCell, spaceCell)
}

// Dt returns the fixed step length in seconds.
func (w *World) Dt() float64 { return w.params.Dt }

// InsertBody adds a body and returns its handle.
func (w *World) InsertBody(desc BodyDesc) BodyHandle {
	idx, gen := w.bodies.insert(body{desc: desc})
	return BodyHandle{index: idx, gen: gen}
}

// InsertCollider attaches a collider to parent.
//
// Precondition: parent is live.
func (w *World) InsertCollider(desc ColliderDesc, parent BodyHandle) ColliderHandle {
	b := w.mustBody(parent)
	half := desc.Shape.halfSize()
	obj := resolv.NewObject(0, 0, 2*(half.X+broadPad), 2*(half.Y+broadPad))
	idx, gen := w.colliders.insert(collider{desc: desc, parent: parent, obj: obj})
	h := ColliderHandle{index: idx, gen: gen}
	obj.Data = h
	w.place(obj, b.desc.Position, half)
	w.space.Add(obj)
	b.colliders = append(b.colliders, h)
	return h
}

// RemoveBody removes the body and every collider attached to it. Contacts
// involving those colliders are forgotten without a stop event.
//
// Precondition: h is live.
func (w *World) RemoveBody(h BodyHandle) {
	b := w.mustBody(h)
	for _, ch := range b.colliders {
		c, ok := w.colliders.get(ch.index, ch.gen)
		if !ok {
			continue
		}
		w.space.Remove(c.obj)
		w.colliders.remove(ch.index, ch.gen)
		for k := range w.contacts {
			if k.a == ch || k.b == ch {
				delete(w.contacts, k)
			}
		}
	}
	w.bodies.remove(h.index, h.gen)
}

// Contains reports whether h refers to a live body.
func (w *World) Contains(h BodyHandle) bool {
	_, ok := w.bodies.get(h.index, h.gen)
	return ok
}

// ContainsCollider reports whether h refers to a live collider.
func (w *World) ContainsCollider(h ColliderHandle) bool {
	_, ok := w.colliders.get(h.index, h.gen)
	return ok
}

// BodyCount returns the number of live bodies.
func (w *World) BodyCount() int { return w.bodies.len() }

// ColliderCount returns the number of live colliders.
func (w *World) ColliderCount() int { return w.colliders.len() }

// Parent returns the body a collider is attached to.
//
// Precondition: h is live.
func (w *World) Parent(h ColliderHandle) BodyHandle {
	return w.mustCollider(h).parent
}

// Colliders returns the colliders attached to h.
func (w *World) Colliders(h BodyHandle) []ColliderHandle {
	b := w.mustBody(h)
	out := make([]ColliderHandle, len(b.colliders))
	copy(out, b.colliders)
	return out
}

// Kind returns the body kind.
func (w *World) Kind(h BodyHandle) BodyKind { return w.mustBody(h).desc.Kind }

// Position returns the body position.
func (w *World) Position(h BodyHandle) Vec2 { return w.mustBody(h).desc.Position }

// Velocity returns the body velocity.
func (w *World) Velocity(h BodyHandle) Vec2 { return w.mustBody(h).desc.Velocity }

// Rotation returns the body rotation in radians.
func (w *World) Rotation(h BodyHandle) float64 { return w.mustBody(h).desc.Rotation }

// SetRotation sets the body rotation in radians.
func (w *World) SetRotation(h BodyHandle, theta float64) { w.mustBody(h).desc.Rotation = theta }

// SetVelocity sets the body velocity.
func (w *World) SetVelocity(h BodyHandle, v Vec2) { w.mustBody(h).desc.Velocity = v }

// SetPosition teleports the body. Its colliders follow on the next Step or
// SyncContacts. A kinematic body comes to rest.
func (w *World) SetPosition(h BodyHandle, p Vec2) {
	b := w.mustBody(h)
	b.desc.Position = p
	b.next = nil
	if b.desc.Kind == Kinematic {
		b.desc.Velocity = Vec2{}
	}
}

// SetNextKinematicPosition schedules a kinematic body to arrive at p during
// the next Step. The body's velocity for that step is derived from the move.
//
// Precondition: h is a live kinematic body.
func (w *World) SetNextKinematicPosition(h BodyHandle, p Vec2) {
	b := w.mustBody(h)
	if b.desc.Kind != Kinematic {
		panic(fmt.Sprintf("physics: SetNextKinematicPosition on non-kinematic body %v", h))
	}
	b.next = &p
}

// SetupBoundaries replaces the boundary walls with four static cuboids lying
// along the edges of a width×height arena whose corner is the origin.
func (w *World) SetupBoundaries(width, height float64) {
	for _, h := range w.walls {
		if w.Contains(h) {
			w.RemoveBody(h)
		}
	}
	w.walls = w.walls[:0]
	if width != w.params.Width || height != w.params.Height {
		w.params.Width, w.params.Height = width, height
		w.rebuildSpace()
	}
	t := WallHalfThickness
	walls := []struct {
		pos  Vec2
		half Vec2
	}{
		{Vec2{width / 2, 0}, Vec2{width/2 + t, t}},
		{Vec2{width / 2, height}, Vec2{width/2 + t, t}},
		{Vec2{0, height / 2}, Vec2{t, height/2 + t}},
		{Vec2{width, height / 2}, Vec2{t, height/2 + t}},
	}
	for _, wall := range walls {
		h := w.InsertBody(BodyDesc{Kind: Static, Position: wall.pos})
		w.InsertCollider(ColliderDesc{Shape: Cuboid(wall.half.X, wall.half.Y)}, h)
		w.walls = append(w.walls, h)
	}
}

// Walls returns the current boundary wall bodies.
func (w *World) Walls() []BodyHandle {
	out := make([]BodyHandle, len(w.walls))
	copy(out, w.walls)
	return out
}

// IsWall reports whether h is one of the boundary walls.
func (w *World) IsWall(h BodyHandle) bool {
	for _, wh := range w.walls {
		if wh == h {
			return true
		}
	}
	return false
}

func (w *World) rebuildSpace() {
	w.space = newSpace(w.params.Width, w.params.Height)
	w.colliders.each(func(_, _ uint32, c *collider) {
		w.space.Add(c.obj)
	})
}

// Step advances the world by one fixed tick: integrates motion, detects
// contacts, pushes dynamic bodies out of static geometry and queues the
// resulting collision events.
func (w *World) Step() {
	dt := w.params.Dt
	w.bodies.each(func(_, _ uint32, b *body) {
		switch b.desc.Kind {
		case Dynamic:
			b.desc.Velocity = b.desc.Velocity.Add(w.params.Gravity.Scale(dt))
			b.desc.Position = b.desc.Position.Add(b.desc.Velocity.Scale(dt))
		case Kinematic:
			// Velocity reports the last step's motion only; a kinematic
			// body without a target stays put.
			if b.next != nil {
				b.desc.Velocity = b.next.Sub(b.desc.Position).Scale(1 / dt)
				b.desc.Position = *b.next
				b.next = nil
			} else {
				b.desc.Velocity = Vec2{}
			}
		}
	})
	w.detect()
}

// SyncContacts re-runs contact detection against current positions without
// integrating, so bodies inserted or moved since the last Step take part in
// this tick's events.
func (w *World) SyncContacts() {
	w.detect()
}

// DrainEvents returns the queued collision events in detection order and
// clears the queue.
func (w *World) DrainEvents() []CollisionEvent {
	out := w.events
	w.events = nil
	return out
}

func (w *World) place(obj *resolv.Object, pos, half Vec2) {
	obj.X = pos.X - half.X - broadPad + spaceMargin
	obj.Y = pos.Y - half.Y - broadPad + spaceMargin
	obj.Update()
}

func (w *World) syncObjects() {
	w.colliders.each(func(_, _ uint32, c *collider) {
		b, ok := w.bodies.get(c.parent.index, c.parent.gen)
		if !ok {
			return
		}
		w.place(c.obj, b.desc.Position, c.desc.Shape.halfSize())
	})
}

// detect finds every overlapping collider pair, applies contact response
// and diffs the pair set against the previous one.
func (w *World) detect() {
	w.syncObjects()

	current := make(map[pairKey]struct{}, len(w.contacts))
	var order []pairKey

	w.colliders.each(func(idx, gen uint32, c *collider) {
		self := ColliderHandle{index: idx, gen: gen}
		sb := w.mustBody(c.parent)
		if sb.desc.Kind == Static {
			return
		}
		col := c.obj.Check(0, 0)
		if col == nil {
			return
		}
		candidates := make([]ColliderHandle, 0, len(col.Objects))
		for _, o := range col.Objects {
			if oh, ok := o.Data.(ColliderHandle); ok {
				candidates = append(candidates, oh)
			}
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].index < candidates[j].index
		})
		for _, oh := range candidates {
			other, ok := w.colliders.get(oh.index, oh.gen)
			if !ok || other.parent == c.parent {
				continue
			}
			key := makePair(self, oh)
			if _, seen := current[key]; seen {
				continue
			}
			ob := w.mustBody(other.parent)
			m, hit := intersect(c.desc.Shape, sb.desc.Position, other.desc.Shape, ob.desc.Position)
			if !hit {
				continue
			}
			current[key] = struct{}{}
			order = append(order, key)
			if sb.desc.Kind == Dynamic && ob.desc.Kind == Static && !c.desc.Sensor && !other.desc.Sensor {
				w.respond(sb, c, other, m)
			}
		}
	})

	for _, k := range order {
		if _, had := w.contacts[k]; !had {
			w.events = append(w.events, CollisionEvent{Kind: CollisionStarted, A: k.a, B: k.b})
		}
	}
	var stopped []pairKey
	for k := range w.contacts {
		if _, still := current[k]; !still {
			stopped = append(stopped, k)
		}
	}
	sort.Slice(stopped, func(i, j int) bool {
		if stopped[i].a.index != stopped[j].a.index {
			return stopped[i].a.index < stopped[j].a.index
		}
		return stopped[i].b.index < stopped[j].b.index
	})
	for _, k := range stopped {
		w.events = append(w.events, CollisionEvent{Kind: CollisionStopped, A: k.a, B: k.b})
	}
	w.contacts = current
}

// respond pushes a dynamic body out along the contact normal and reflects
// the approaching component of its velocity scaled by restitution.
func (w *World) respond(b *body, self, other *collider, m manifold) {
	b.desc.Position = b.desc.Position.Add(m.Normal.Scale(m.Depth))
	vn := b.desc.Velocity.Dot(m.Normal)
	if vn < 0 {
		e := self.desc.Restitution
		if other.desc.Restitution > e {
			e = other.desc.Restitution
		}
		b.desc.Velocity = b.desc.Velocity.Sub(m.Normal.Scale((1 + e) * vn))
	}
	w.place(self.obj, b.desc.Position, self.desc.Shape.halfSize())
}

func (w *World) mustBody(h BodyHandle) *body {
	b, ok := w.bodies.get(h.index, h.gen)
	if !ok {
		panic(fmt.Sprintf("physics: invalid body handle %v", h))
	}
	return b
}

func (w *World) mustCollider(h ColliderHandle) *collider {
	c, ok := w.colliders.get(h.index, h.gen)
	if !ok {
		panic(fmt.Sprintf("physics: invalid collider handle %v", h))
	}
	return c
}
