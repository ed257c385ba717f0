package bullet

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/arena/internal/game/entity"
	"github.com/cory-johannsen/arena/internal/game/physics"
	"github.com/cory-johannsen/arena/internal/game/rng"
)

type fixture struct {
	world    *physics.World
	entities *entity.Registry
	bullets  *Registry
	shooter  *entity.Entity
}

func newFixture(t require.TestingT) fixture {
	w := physics.NewWorld(physics.Params{Dt: 0.1, Width: 1200, Height: 1000})
	ents := entity.NewRegistry(w, rng.NewSeeded(1), entity.DefaultParams(1200, 1000))
	id, err := ents.Spawn("shooter", false, 0)
	require.NoError(t, err)
	e, _ := ents.Get(id)
	return fixture{world: w, entities: ents, bullets: NewRegistry(w), shooter: e}
}

func TestSpawnAtShooterAlongGun(t *testing.T) {
	f := newFixture(t)
	f.entities.Aim("shooter", math.Pi/2)

	id, ok := f.bullets.Spawn(f.shooter, 500, 3, 2*time.Second)
	require.True(t, ok)
	b, ok := f.bullets.Get(id)
	require.True(t, ok)

	assert.Equal(t, f.shooter.ID, b.Owner)
	assert.Equal(t, 2*time.Second, b.SpawnTime)
	assert.Equal(t, f.shooter.Position, f.world.Position(b.Body))
	v := f.world.Velocity(b.Body)
	assert.InDelta(t, 0.0, v.X, 1e-9)
	assert.InDelta(t, 500.0, v.Y, 1e-9)
	assert.Equal(t, physics.Dynamic, f.world.Kind(b.Body))

	byBody, ok := f.bullets.ByBody(b.Body)
	require.True(t, ok)
	assert.Same(t, b, byBody)
}

func TestSpawnWithoutLiveShooter(t *testing.T) {
	f := newFixture(t)
	_, ok := f.bullets.Spawn(nil, 500, 3, 0)
	assert.False(t, ok)

	f.entities.Remove("shooter")
	_, ok = f.bullets.Spawn(f.shooter, 500, 3, 0)
	assert.False(t, ok)
	assert.Equal(t, 0, f.bullets.Len())
}

func TestBulletOutlivesShooter(t *testing.T) {
	f := newFixture(t)
	id, _ := f.bullets.Spawn(f.shooter, 500, 3, 0)
	f.entities.Remove("shooter")
	_, ok := f.bullets.Get(id)
	assert.True(t, ok)
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id, _ := f.bullets.Spawn(f.shooter, 500, 3, 0)
	b, _ := f.bullets.Get(id)

	assert.True(t, f.bullets.Remove(id))
	assert.False(t, f.world.Contains(b.Body))
	assert.False(t, f.bullets.Remove(id))
	assert.Equal(t, 0, f.bullets.Len())
}

func TestPruneExpired(t *testing.T) {
	f := newFixture(t)
	old, _ := f.bullets.Spawn(f.shooter, 10, 3, 0)
	young, _ := f.bullets.Spawn(f.shooter, 10, 3, time.Second)

	removed := f.bullets.PruneExpired(2*time.Second, 2*time.Second)
	assert.Equal(t, []ID{old}, removed)
	_, ok := f.bullets.Get(young)
	assert.True(t, ok)

	assert.Empty(t, f.bullets.PruneExpired(2*time.Second, 2*time.Second))
}

func TestPruneOutOfBounds(t *testing.T) {
	f := newFixture(t)
	inside, _ := f.bullets.Spawn(f.shooter, 10, 3, 0)
	outside, _ := f.bullets.Spawn(f.shooter, 10, 3, 0)
	b, _ := f.bullets.Get(outside)
	f.world.SetPosition(b.Body, physics.V(1300, 500))

	removed := f.bullets.PruneOutOfBounds(1200, 1000)
	assert.Equal(t, []ID{outside}, removed)
	_, ok := f.bullets.Get(inside)
	assert.True(t, ok)
}

func TestPruneOutOfBoundsEdgeIsInside(t *testing.T) {
	f := newFixture(t)
	id, _ := f.bullets.Spawn(f.shooter, 10, 3, 0)
	b, _ := f.bullets.Get(id)
	f.world.SetPosition(b.Body, physics.V(1200, 0))
	assert.Empty(t, f.bullets.PruneOutOfBounds(1200, 1000))
}

func TestClear(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.bullets.Spawn(f.shooter, 10, 3, 0)
	}
	f.bullets.Clear()
	assert.Equal(t, 0, f.bullets.Len())
	assert.Equal(t, 1, f.world.BodyCount(), "only the shooter body remains")
}

func TestSyncPositionsFollowsBody(t *testing.T) {
	f := newFixture(t)
	f.entities.Aim("shooter", 0)
	id, _ := f.bullets.Spawn(f.shooter, 100, 3, 0)
	b, _ := f.bullets.Get(id)
	start := b.Position
	f.world.Step()
	f.bullets.SyncPositions()
	assert.InDelta(t, start.X+10, b.Position.X, 1e-9)
}

// Property-based tests

func TestPropertyPrunedBulletsMeetTheirCause(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		maxAge := 2 * time.Second
		n := rapid.IntRange(1, 20).Draw(t, "n")
		for i := 0; i < n; i++ {
			spawn := time.Duration(rapid.IntRange(0, 4000).Draw(t, "spawn")) * time.Millisecond
			id, _ := f.bullets.Spawn(f.shooter, 10, 3, spawn)
			b, _ := f.bullets.Get(id)
			f.world.SetPosition(b.Body, physics.V(
				rapid.Float64Range(-100, 1300).Draw(t, "x"),
				rapid.Float64Range(-100, 1100).Draw(t, "y"),
			))
		}
		now := 4 * time.Second
		snapshot := map[ID]*Bullet{}
		for _, b := range f.bullets.All() {
			snapshot[b.ID] = b
		}
		positions := map[ID]physics.Vec2{}
		for id, b := range snapshot {
			positions[id] = f.world.Position(b.Body)
		}

		for _, id := range f.bullets.PruneOutOfBounds(1200, 1000) {
			p := positions[id]
			if p.X >= 0 && p.X <= 1200 && p.Y >= 0 && p.Y <= 1000 {
				t.Fatalf("bullet %d at %v pruned while inside", id, p)
			}
		}
		for _, id := range f.bullets.PruneExpired(now, maxAge) {
			if snapshot[id].Age(now) < maxAge {
				t.Fatalf("bullet %d pruned at age %s", id, snapshot[id].Age(now))
			}
		}
		for _, b := range f.bullets.All() {
			if b.Age(now) >= maxAge {
				t.Fatalf("expired bullet %d survived", b.ID)
			}
		}
	})
}
