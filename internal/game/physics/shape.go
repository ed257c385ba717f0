package physics

import "math"

// ShapeKind selects the collider geometry.
type ShapeKind int

const (
	// ShapeBall is a circle of Radius.
	ShapeBall ShapeKind = iota
	// ShapeCuboid is an axis-aligned box of HalfExtents.
	ShapeCuboid
)

// Shape is collider geometry centred on the parent body position.
// Cuboids ignore body rotation.
type Shape struct {
	Kind        ShapeKind
	Radius      float64
	HalfExtents Vec2
}

// Ball returns a circle shape.
func Ball(radius float64) Shape {
	return Shape{Kind: ShapeBall, Radius: radius}
}

// Cuboid returns an axis-aligned box shape.
func Cuboid(hx, hy float64) Shape {
	return Shape{Kind: ShapeCuboid, HalfExtents: Vec2{hx, hy}}
}

// halfSize returns the half-extents of the shape's bounding box.
func (s Shape) halfSize() Vec2 {
	if s.Kind == ShapeBall {
		return Vec2{s.Radius, s.Radius}
	}
	return s.HalfExtents
}

// manifold describes the overlap of shape A with shape B. Normal is the unit
// direction A must move to separate; Depth is how far.
type manifold struct {
	Normal Vec2
	Depth  float64
}

// intersect tests shape a at pa against shape b at pb. Touching without
// overlap does not count as contact.
func intersect(a Shape, pa Vec2, b Shape, pb Vec2) (manifold, bool) {
	switch {
	case a.Kind == ShapeBall && b.Kind == ShapeBall:
		return ballBall(a.Radius, pa, b.Radius, pb)
	case a.Kind == ShapeBall && b.Kind == ShapeCuboid:
		return ballBox(a.Radius, pa, b.HalfExtents, pb)
	case a.Kind == ShapeCuboid && b.Kind == ShapeBall:
		m, ok := ballBox(b.Radius, pb, a.HalfExtents, pa)
		m.Normal = m.Normal.Scale(-1)
		return m, ok
	default:
		return boxBox(a.HalfExtents, pa, b.HalfExtents, pb)
	}
}

func ballBall(ra float64, pa Vec2, rb float64, pb Vec2) (manifold, bool) {
	d := pa.Sub(pb)
	dist := d.Len()
	sum := ra + rb
	if dist >= sum {
		return manifold{}, false
	}
	n := d.Normalize()
	if n == (Vec2{}) {
		n = Vec2{0, -1}
	}
	return manifold{Normal: n, Depth: sum - dist}, true
}

func ballBox(r float64, pc Vec2, he Vec2, pb Vec2) (manifold, bool) {
	local := pc.Sub(pb)
	closest := Vec2{
		X: math.Max(-he.X, math.Min(he.X, local.X)),
		Y: math.Max(-he.Y, math.Min(he.Y, local.Y)),
	}
	if closest != local {
		d := local.Sub(closest)
		dist := d.Len()
		if dist >= r {
			return manifold{}, false
		}
		return manifold{Normal: d.Normalize(), Depth: r - dist}, true
	}
	// centre inside the box: leave through the nearest face
	dx := he.X - math.Abs(local.X)
	dy := he.Y - math.Abs(local.Y)
	if dx < dy {
		return manifold{Normal: Vec2{sign(local.X), 0}, Depth: dx + r}, true
	}
	return manifold{Normal: Vec2{0, sign(local.Y)}, Depth: dy + r}, true
}

func boxBox(ha Vec2, pa Vec2, hb Vec2, pb Vec2) (manifold, bool) {
	d := pa.Sub(pb)
	ox := ha.X + hb.X - math.Abs(d.X)
	oy := ha.Y + hb.Y - math.Abs(d.Y)
	if ox <= 0 || oy <= 0 {
		return manifold{}, false
	}
	if ox < oy {
		return manifold{Normal: Vec2{sign(d.X), 0}, Depth: ox}, true
	}
	return manifold{Normal: Vec2{0, sign(d.Y)}, Depth: oy}, true
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
