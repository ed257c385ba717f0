// Package arena is the composition root of the simulation: it owns the
// physics world and every registry and advances them one tick at a time.
package arena

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/ai"
	"github.com/cory-johannsen/arena/internal/game/bullet"
	"github.com/cory-johannsen/arena/internal/game/collision"
	"github.com/cory-johannsen/arena/internal/game/entity"
	"github.com/cory-johannsen/arena/internal/game/messages"
	"github.com/cory-johannsen/arena/internal/game/obstacle"
	"github.com/cory-johannsen/arena/internal/game/physics"
	"github.com/cory-johannsen/arena/internal/game/rng"
	"github.com/cory-johannsen/arena/internal/game/settings"
)

// Options configures a Simulation.
type Options struct {
	Settings *settings.Settings
	Source   rng.Source
	// TickRate is the number of ticks per simulated second.
	TickRate int
	Logger   *zap.Logger
	Messages *messages.Log
}

// TickResult summarises one tick.
type TickResult struct {
	Tick        uint64
	Hits        []collision.Hit
	Shots       int
	OutOfBounds int
	Expired     int
	// Winner is set when the tick ended a round.
	Winner string
}

// Simulation owns the world state. It is single-writer: every method must be
// called from the goroutine that owns it.
type Simulation struct {
	settings *settings.Settings
	src      rng.Source
	logger   *zap.Logger
	log      *messages.Log

	world     *physics.World
	obstacles *obstacle.Field
	entities  *entity.Registry
	bullets   *bullet.Registry
	ai        *ai.Controller
	resolver  *collision.Resolver

	dt     time.Duration
	tick   uint64
	round  int
	width  float64
	height float64
}

// New builds a simulation with boundary walls and a generated obstacle
// field.
//
// Precondition: opts.Settings and opts.Source are non-nil and
// opts.TickRate > 0.
func New(opts Options) *Simulation {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Messages == nil {
		opts.Messages = messages.NewLog(opts.Logger, 0)
	}
	v := opts.Settings.Snapshot()
	dt := time.Second / time.Duration(opts.TickRate)

	w := physics.NewWorld(physics.Params{Dt: dt.Seconds(), Width: v.Width, Height: v.Height})
	ents := entity.NewRegistry(w, opts.Source, entity.DefaultParams(v.Width, v.Height))
	bullets := bullet.NewRegistry(w)
	s := &Simulation{
		settings:  opts.Settings,
		src:       opts.Source,
		logger:    opts.Logger,
		log:       opts.Messages,
		world:     w,
		obstacles: obstacle.NewField(),
		entities:  ents,
		bullets:   bullets,
		ai:        ai.NewController(opts.Source, ai.DefaultParams()),
		resolver:  collision.NewResolver(w, ents, bullets),
		dt:        dt,
		round:     1,
		width:     v.Width,
		height:    v.Height,
	}
	w.SetupBoundaries(v.Width, v.Height)
	s.obstacles.Generate(w, opts.Source, obstacle.DefaultParams(v.Width, v.Height, v.ObstacleProbability))
	return s
}

// Now returns the simulation time: ticks elapsed times the tick length.
func (s *Simulation) Now() time.Duration {
	return time.Duration(s.tick) * s.dt
}

// Dt returns the tick length.
func (s *Simulation) Dt() time.Duration { return s.dt }

// TickCount returns the number of completed ticks.
func (s *Simulation) TickCount() uint64 { return s.tick }

// Tick advances the simulation: physics step, AI, contact sync, hit
// resolution, out-of-bounds pruning and expiry pruning, in that order.
func (s *Simulation) Tick() TickResult {
	v := s.settings.Snapshot()
	s.applyBounds(v)

	s.tick++
	now := s.Now()
	res := TickResult{Tick: s.tick}

	s.world.Step()
	s.entities.SyncPositions()

	res.Shots = s.ai.Update(s.entities, now, v.BotRateOfFire, func(e *entity.Entity) bool {
		_, ok := s.bullets.Spawn(e, v.BulletSpeed, v.BulletRadius, now)
		return ok
	})

	s.world.SyncContacts()
	res.Hits = s.resolver.Resolve(s.world.DrainEvents())
	for _, h := range res.Hits {
		s.logger.Debug("bullet hit",
			zap.Uint64("bullet", uint64(h.Bullet)),
			zap.Uint64("shooter", uint64(h.Shooter)),
			zap.String("victim", h.VictimName),
			zap.Bool("credited", h.Credited),
		)
	}

	s.bullets.SyncPositions()
	res.OutOfBounds = len(s.bullets.PruneOutOfBounds(s.width, s.height))
	res.Expired = len(s.bullets.PruneExpired(now, v.BulletMaxAge))

	if v.ScoreLimit > 0 {
		if winner, ok := s.leader(v.ScoreLimit); ok {
			res.Winner = winner.Name
			s.log.Add(fmt.Sprintf("Round %d won by %s with %d points", s.round, winner.Name, winner.Score), messages.Info)
			s.round++
			s.ResetSimulation()
		}
	}
	return res
}

// applyBounds rebuilds the walls when the arena size setting has changed,
// pulls entities inside them and drops obstacles left outside.
func (s *Simulation) applyBounds(v settings.Values) {
	if v.Width == s.width && v.Height == s.height {
		return
	}
	s.width, s.height = v.Width, v.Height
	s.world.SetupBoundaries(v.Width, v.Height)
	s.entities.SetBounds(v.Width, v.Height)
	trimmed := s.obstacles.Trim(s.world, v.Width, v.Height)
	s.logger.Info("arena resized",
		zap.Float64("width", v.Width),
		zap.Float64("height", v.Height),
		zap.Int("obstacles_removed", trimmed),
	)
}

// leader returns the highest scorer at or above limit; ties go to the
// earliest spawned.
func (s *Simulation) leader(limit int) (*entity.Entity, bool) {
	var best *entity.Entity
	for _, e := range s.entities.All() {
		if e.Score >= limit && (best == nil || e.Score > best.Score) {
			best = e
		}
	}
	return best, best != nil
}

// AddPlayer spawns a player-controlled entity.
func (s *Simulation) AddPlayer(name string) (entity.ID, error) {
	return s.entities.Spawn(name, false, s.Now())
}

// AddBot spawns an AI-controlled entity.
func (s *Simulation) AddBot(name string) (entity.ID, error) {
	id, err := s.entities.Spawn(name, true, s.Now())
	if err != nil {
		return 0, err
	}
	s.log.Add(fmt.Sprintf("Bot %s joined the arena", name), messages.Info)
	return id, nil
}

// RemoveEntity removes the named entity; a missing name is a no-op.
func (s *Simulation) RemoveEntity(name string) bool {
	return s.entities.Remove(name)
}

// RenameEntity renames an entity, keeping its score and position.
func (s *Simulation) RenameEntity(id entity.ID, name string) error {
	return s.entities.Rename(id, name)
}

// Shoot fires from the named entity when its player cooldown has elapsed.
// Firing early is a silent no-op reported as false.
func (s *Simulation) Shoot(name string) bool {
	e, ok := s.entities.ByName(name)
	if !ok {
		return false
	}
	v := s.settings.Snapshot()
	now := s.Now()
	if !e.CanFire(now, v.PlayerCooldown) {
		return false
	}
	if _, ok := s.bullets.Spawn(e, v.BulletSpeed, v.BulletRadius, now); !ok {
		return false
	}
	e.MarkFired(now)
	return true
}

// Aim sets the gun orientation of the named entity.
func (s *Simulation) Aim(name string, theta float64) bool {
	return s.entities.Aim(name, theta)
}

// MoveBy steers the named entity by (dx, dy) during the next step and turns
// it to face the move.
func (s *Simulation) MoveBy(name string, dx, dy float64) bool {
	e, ok := s.entities.ByName(name)
	if !ok {
		return false
	}
	d := physics.V(dx, dy)
	if d.Len() > 0 {
		e.SelfOrientation = d.Angle()
	}
	s.entities.Steer(e.ID, e.Position.Add(d))
	return true
}

// SetColor sets the display colour of the named entity.
func (s *Simulation) SetColor(name string, c entity.Color) bool {
	return s.entities.SetColor(name, c)
}

// ResetSimulation zeroes every score and destroys every bullet. Positions,
// names and obstacles are untouched.
func (s *Simulation) ResetSimulation() {
	s.entities.ResetScores()
	s.bullets.Clear()
	s.log.Add("Simulation reset", messages.Info)
}

// GenerateMap replaces the obstacle field and moves every entity to a new
// random position. Scores and bullets are untouched.
func (s *Simulation) GenerateMap() {
	v := s.settings.Snapshot()
	s.obstacles.Generate(s.world, s.src, obstacle.DefaultParams(s.width, s.height, v.ObstacleProbability))
	s.entities.RepositionAll()
	s.log.Add(fmt.Sprintf("Map generated with %d obstacles", s.obstacles.Len()), messages.Info)
}

// Entities exposes the entity registry to the owning goroutine.
func (s *Simulation) Entities() *entity.Registry { return s.entities }

// Bullets exposes the bullet registry to the owning goroutine.
func (s *Simulation) Bullets() *bullet.Registry { return s.bullets }

// Obstacles exposes the obstacle field to the owning goroutine.
func (s *Simulation) Obstacles() *obstacle.Field { return s.obstacles }

// World exposes the physics world to the owning goroutine.
func (s *Simulation) World() *physics.World { return s.world }
