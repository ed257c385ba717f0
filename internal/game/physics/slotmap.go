package physics

// BodyHandle identifies a rigid body owned by a World. The zero value never
// refers to a live body.
type BodyHandle struct {
	index uint32
	gen   uint32
}

// ColliderHandle identifies a collider owned by a World. The zero value never
// refers to a live collider.
type ColliderHandle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero handle.
func (h BodyHandle) IsZero() bool { return h.gen == 0 }

// IsZero reports whether h is the zero handle.
func (h ColliderHandle) IsZero() bool { return h.gen == 0 }

// Index returns the slot index of h; stable for the lifetime of the object.
func (h ColliderHandle) Index() uint32 { return h.index }

type slot[T any] struct {
	value    T
	gen      uint32
	occupied bool
}

// slotMap is an arena of values addressed by (index, generation) pairs.
// Removing a value bumps its slot generation, so handles to the removed value
// never resolve again even after the slot is reused.
//
// Invariant: every occupied slot has gen >= 1.
type slotMap[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

func (m *slotMap[T]) insert(v T) (uint32, uint32) {
	var idx uint32
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		m.slots = append(m.slots, slot[T]{})
		idx = uint32(len(m.slots) - 1)
	}
	s := &m.slots[idx]
	s.gen++
	s.value = v
	s.occupied = true
	m.live++
	return idx, s.gen
}

func (m *slotMap[T]) get(idx, gen uint32) (*T, bool) {
	if int(idx) >= len(m.slots) {
		return nil, false
	}
	s := &m.slots[idx]
	if !s.occupied || s.gen != gen {
		return nil, false
	}
	return &s.value, true
}

func (m *slotMap[T]) remove(idx, gen uint32) bool {
	if _, ok := m.get(idx, gen); !ok {
		return false
	}
	s := &m.slots[idx]
	var zero T
	s.value = zero
	s.occupied = false
	m.free = append(m.free, idx)
	m.live--
	return true
}

// each visits occupied slots in index order.
func (m *slotMap[T]) each(fn func(idx, gen uint32, v *T)) {
	for i := range m.slots {
		s := &m.slots[i]
		if s.occupied {
			fn(uint32(i), s.gen, &s.value)
		}
	}
}

func (m *slotMap[T]) len() int { return m.live }
