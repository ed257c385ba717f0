package entity

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arena/internal/game/physics"
	"github.com/cory-johannsen/arena/internal/game/rng"
)

func newRegistry(seed int64) (*Registry, *physics.World) {
	w := physics.NewWorld(physics.Params{Dt: 1.0 / 30, Width: 1200, Height: 1000})
	return NewRegistry(w, rng.NewSeeded(seed), DefaultParams(1200, 1000)), w
}

func inBounds(p physics.Vec2, width, height float64) bool {
	return p.X >= 0 && p.X <= width && p.Y >= 0 && p.Y <= height
}

func TestSpawnCreatesEntityWithBody(t *testing.T) {
	r, w := newRegistry(1)
	id, err := r.Spawn("alice", false, 0)
	require.NoError(t, err)

	e, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "alice", e.Name)
	assert.Equal(t, 0, e.Score)
	assert.False(t, e.IsAI)
	assert.True(t, w.Contains(e.Body))
	assert.Equal(t, physics.Kinematic, w.Kind(e.Body))
	assert.Equal(t, e.Position, w.Position(e.Body))
	assert.True(t, inBounds(e.Position, 1200, 1000))
	assert.Equal(t, e.Position, e.Target, "target starts at the spawn point")

	byBody, ok := r.ByBody(e.Body)
	require.True(t, ok)
	assert.Same(t, e, byBody)
}

func TestSpawnDuplicateNameIsRejected(t *testing.T) {
	r, w := newRegistry(1)
	_, err := r.Spawn("bob", false, 0)
	require.NoError(t, err)

	_, err = r.Spawn("bob", true, 0)
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, w.BodyCount())
}

func TestSpawnEmptyName(t *testing.T) {
	r, _ := newRegistry(1)
	_, err := r.Spawn("", false, 0)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRemoveDeletesBody(t *testing.T) {
	r, w := newRegistry(1)
	id, _ := r.Spawn("carol", false, 0)
	e, _ := r.Get(id)

	assert.True(t, r.Remove("carol"))
	assert.False(t, w.Contains(e.Body))
	assert.Equal(t, 0, r.Len())
	_, ok := r.ByBody(e.Body)
	assert.False(t, ok)

	assert.False(t, r.Remove("carol"), "second removal is a no-op")
}

func TestAllKeepsInsertionOrder(t *testing.T) {
	r, _ := newRegistry(1)
	for _, n := range []string{"a", "b", "c", "d"} {
		_, err := r.Spawn(n, false, 0)
		require.NoError(t, err)
	}
	r.Remove("b")
	var names []string
	for _, e := range r.All() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a", "c", "d"}, names)
}

func TestIDsAreNotReused(t *testing.T) {
	r, _ := newRegistry(1)
	first, _ := r.Spawn("x", false, 0)
	r.Remove("x")
	second, _ := r.Spawn("x", false, 0)
	assert.NotEqual(t, first, second)
}

func TestRename(t *testing.T) {
	r, _ := newRegistry(1)
	id, _ := r.Spawn("old", false, 0)
	_, _ = r.Spawn("taken", false, 0)

	require.NoError(t, r.Rename(id, "new"))
	_, ok := r.ByName("old")
	assert.False(t, ok)
	e, ok := r.ByName("new")
	require.True(t, ok)
	assert.Equal(t, id, e.ID)

	assert.ErrorIs(t, r.Rename(id, "taken"), ErrDuplicateName)
	assert.NoError(t, r.Rename(id, "new"), "renaming to the current name is a no-op")
	assert.ErrorIs(t, r.Rename(999, "z"), ErrNotFound)
}

func TestResetScores(t *testing.T) {
	r, _ := newRegistry(1)
	id, _ := r.Spawn("s", false, 0)
	e, _ := r.Get(id)
	e.Score = 7
	r.ResetScores()
	assert.Equal(t, 0, e.Score)
}

func TestRepositionAllKeepsScoresAndNames(t *testing.T) {
	r, w := newRegistry(5)
	for i := 0; i < 5; i++ {
		id, _ := r.Spawn(fmt.Sprintf("e%d", i), i%2 == 0, 0)
		e, _ := r.Get(id)
		e.Score = i
	}
	before := map[string]physics.Vec2{}
	for _, e := range r.All() {
		before[e.Name] = e.Position
	}
	r.RepositionAll()
	for i, e := range r.All() {
		assert.Equal(t, i, e.Score)
		assert.Equal(t, fmt.Sprintf("e%d", i), e.Name)
		assert.NotEqual(t, before[e.Name], e.Position)
		assert.Equal(t, e.Position, w.Position(e.Body))
		assert.True(t, inBounds(e.Position, 1200, 1000))
	}
}

func TestMoveClampsInsideWalls(t *testing.T) {
	r, w := newRegistry(1)
	id, _ := r.Spawn("m", false, 0)
	r.Move(id, physics.V(-500, 5000))
	e, _ := r.Get(id)
	assert.Equal(t, physics.V(20, 980), e.Position)
	assert.Equal(t, e.Position, w.Position(e.Body))
}

func TestSetBoundsClampsEntities(t *testing.T) {
	r, w := newRegistry(1)
	out, _ := r.Spawn("out", false, 0)
	in, _ := r.Spawn("in", false, 0)
	r.Move(out, physics.V(1100, 900))
	r.Move(in, physics.V(100, 100))

	r.SetBounds(800, 600)
	e, _ := r.Get(out)
	assert.Equal(t, physics.V(780, 580), e.Position)
	assert.Equal(t, e.Position, w.Position(e.Body))
	e, _ = r.Get(in)
	assert.Equal(t, physics.V(100, 100), e.Position)
}

func TestSteerAppliesOnStep(t *testing.T) {
	r, w := newRegistry(1)
	id, _ := r.Spawn("s", false, 0)
	e, _ := r.Get(id)
	start := e.Position
	r.Steer(id, start.Add(physics.V(3, 0)))
	assert.Equal(t, start, w.Position(e.Body))

	w.Step()
	r.SyncPositions()
	assert.InDelta(t, start.X+3, e.Position.X, 1e-9)
}

func TestSetColorAndAim(t *testing.T) {
	r, w := newRegistry(1)
	id, _ := r.Spawn("c", false, 0)
	assert.True(t, r.SetColor("c", Color{R: 1, G: 2, B: 3}))
	assert.True(t, r.Aim("c", 1.5))
	assert.False(t, r.SetColor("nobody", Color{}))
	assert.False(t, r.Aim("nobody", 0))

	e, _ := r.Get(id)
	assert.Equal(t, Color{1, 2, 3}, e.Color)
	assert.Equal(t, 1.5, e.GunOrientation)
	assert.Equal(t, 1.5, w.Rotation(e.Body))
}

func TestCanFire(t *testing.T) {
	e := &Entity{}
	assert.True(t, e.CanFire(0, time.Second), "never fired")
	e.MarkFired(2 * time.Second)
	assert.False(t, e.CanFire(2500*time.Millisecond, time.Second))
	assert.True(t, e.CanFire(3*time.Second, time.Second))
}

// Property-based tests

func TestPropertySpawnUniqueNames(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r, w := newRegistry(rapid.Int64().Draw(t, "seed"))
		names := rapid.SliceOf(rapid.StringMatching(`[a-e]{1,2}`)).Draw(t, "names")
		seen := map[string]bool{}
		for _, n := range names {
			_, err := r.Spawn(n, false, 0)
			if seen[n] != (err != nil) {
				t.Fatalf("Spawn(%q) err=%v, seen=%v", n, err, seen[n])
			}
			seen[n] = true
		}
		if r.Len() != len(seen) || w.BodyCount() != len(seen) {
			t.Fatalf("len %d bodies %d, want %d", r.Len(), w.BodyCount(), len(seen))
		}
		for n := range seen {
			e, ok := r.ByName(n)
			if !ok || e.Score != 0 || !w.Contains(e.Body) || !inBounds(e.Position, 1200, 1000) {
				t.Fatalf("entity %q not well formed", n)
			}
		}
	})
}
