package protocol

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/game/messages"
	"github.com/cory-johannsen/arena/internal/game/physics"
	"github.com/cory-johannsen/arena/internal/game/rng"
	"github.com/cory-johannsen/arena/internal/game/session"
	"github.com/cory-johannsen/arena/internal/game/settings"
)

// syncGame runs every request inline under a mutex.
type syncGame struct {
	mu        sync.Mutex
	sim       *arena.Simulation
	submitErr error
}

func (g *syncGame) Snapshot() *arena.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sim.Snapshot()
}

func (g *syncGame) Submit(fn func(*arena.Simulation)) error {
	if g.submitErr != nil {
		return g.submitErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.sim)
	return nil
}

func (g *syncGame) Do(_ context.Context, fn func(*arena.Simulation) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.sim)
}

func (g *syncGame) with(fn func(*arena.Simulation)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.sim)
}

type harness struct {
	game     *syncGame
	clients  *session.Manager
	settings *settings.Settings
	log      *messages.Log
	d        *Dispatcher
}

func newHarness(t *testing.T, allowSet bool) *harness {
	v := settings.FromConfig(config.Default())
	v.ObstacleProbability = 0
	st := settings.New(v)
	logger := zaptest.NewLogger(t)
	log := messages.NewLog(logger, 0)
	sim := arena.New(arena.Options{Settings: st, Source: rng.NewSeeded(1), TickRate: 30, Logger: logger, Messages: log})
	h := &harness{
		game:     &syncGame{sim: sim},
		clients:  session.NewManager(),
		settings: st,
		log:      log,
	}
	h.d = NewDispatcher(Deps{
		Game:                h.game,
		Clients:             h.clients,
		Settings:            st,
		Log:                 log,
		Logger:              logger,
		AllowRemoteSettings: allowSet,
	}, nil)
	return h
}

func (h *harness) send(c *session.Client, line string) string {
	reply, quit := h.d.Dispatch(context.Background(), c, line)
	if quit {
		return "<quit>"
	}
	return reply
}

func (h *harness) named(t *testing.T, name string) *session.Client {
	c := h.clients.Connect("127.0.0.1:1")
	require.Equal(t, "NAME=OK", h.send(c, "NAME="+name))
	return c
}

func TestDefaultRegistry_HasEveryCode(t *testing.T) {
	r := DefaultRegistry()
	for _, code := range []string{
		CodeName, CodeColor, CodeExit, CodeLive, CodeMessage, CodeBot, CodeProj, CodeNamed,
		CodeList, CodeOrient, CodeUserMsg, CodeEmpty, CodeAim, CodeFire, CodeMove, CodeSet,
	} {
		_, ok := r.Resolve(code)
		assert.True(t, ok, "missing %s", code)
	}
	cmds := r.Commands()
	assert.Len(t, cmds, 16)
	for i := 1; i < len(cmds); i++ {
		assert.Less(t, cmds[i-1].Code, cmds[i].Code)
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	noop := func(context.Context, *Dispatcher, *session.Client, []string) (string, error) { return "", nil }
	_, err := NewRegistry([]Command{{Code: "A", Handler: noop}, {Code: "A", Handler: noop}})
	assert.ErrorContains(t, err, "duplicate")
	_, err = NewRegistry([]Command{{Code: "A"}})
	assert.ErrorContains(t, err, "no handler")
	_, err = NewRegistry([]Command{{Handler: noop}})
	assert.ErrorContains(t, err, "no code")
}

func TestDispatch_NameSpawnsPlayer(t *testing.T) {
	h := newHarness(t, false)
	c := h.clients.Connect("127.0.0.1:1")

	assert.Equal(t, "NAME=OK", h.send(c, "NAME=Foo\n"))
	assert.Equal(t, "Foo", c.Name())
	assert.NotZero(t, c.EntityID())
	e, ok := h.game.Snapshot().Entity("Foo")
	require.True(t, ok)
	assert.Equal(t, c.EntityID(), e.ID)
	assert.False(t, e.IsAI)
	assert.Contains(t, h.log.All()[0].Text, "Foo joined")
}

func TestDispatch_RenameKeepsEntity(t *testing.T) {
	h := newHarness(t, false)
	c := h.named(t, "Foo")
	id := c.EntityID()

	assert.Equal(t, "NAME=OK", h.send(c, "NAME=Bar"))
	assert.Equal(t, id, c.EntityID())
	snap := h.game.Snapshot()
	assert.Equal(t, []string{"Bar"}, snap.Names())
	assert.Equal(t, "NAME=OK", h.send(c, "NAME=Bar"), "same name again is a no-op")
}

func TestDispatch_NameAfterEntityRemoved(t *testing.T) {
	h := newHarness(t, false)
	c := h.named(t, "alice")
	old := c.EntityID()
	h.game.with(func(sim *arena.Simulation) { sim.RemoveEntity("alice") })

	assert.Equal(t, ErrorToken, h.send(c, "ORIENT"))
	assert.Equal(t, "NAME=OK", h.send(c, "NAME=alice"))
	assert.NotEqual(t, old, c.EntityID())
	e, ok := h.game.Snapshot().Entity("alice")
	require.True(t, ok)
	assert.Equal(t, c.EntityID(), e.ID)
	assert.NotEqual(t, ErrorToken, h.send(c, "ORIENT"))

	h.game.with(func(sim *arena.Simulation) { sim.RemoveEntity("alice") })
	assert.Equal(t, "NAME=OK", h.send(c, "NAME=bob"))
	assert.Equal(t, "NLIST=bob", h.send(c, "NLIST"))
}

func TestDispatch_NameConflicts(t *testing.T) {
	h := newHarness(t, false)
	h.named(t, "Foo")
	other := h.clients.Connect("127.0.0.1:2")
	assert.Equal(t, ErrorToken, h.send(other, "NAME=Foo"))
	assert.Equal(t, "", other.Name())

	h.game.with(func(sim *arena.Simulation) {
		_, err := sim.AddBot("Alpha")
		require.NoError(t, err)
	})
	assert.Equal(t, ErrorToken, h.send(other, "NAME=Alpha"), "bot names are taken too")
	assert.Equal(t, "", other.Name(), "failed spawn releases the claimed name")
	_, ok := h.clients.ByName("Alpha")
	assert.False(t, ok)
	assert.Equal(t, ErrorToken, h.send(other, "NAME="))
}

func TestDispatch_UnknownAndArity(t *testing.T) {
	h := newHarness(t, false)
	c := h.clients.Connect("x")
	assert.Equal(t, "LIVE#ERROR#EMPTY", h.send(c, "LIVE#BOGUS#EMPTY"))
	assert.Equal(t, ErrorToken, h.send(c, "LIVE=1"))
	assert.Equal(t, ErrorToken, h.send(c, "NAME"))
	assert.Equal(t, ErrorToken, h.send(c, "NAME=a=b"))
	assert.Equal(t, "", h.send(c, ""), "a blank line has no units")
}

func TestDispatch_ExitStopsProcessing(t *testing.T) {
	h := newHarness(t, false)
	c := h.clients.Connect("x")
	assert.Equal(t, "<quit>", h.send(c, "LIVE#EXIT#NAME=Late"))
	assert.Equal(t, "", c.Name(), "units after EXIT are not processed")
}

func TestDispatch_Color(t *testing.T) {
	h := newHarness(t, false)
	c := h.named(t, "Painter")
	assert.Equal(t, "COL=OK", h.send(c, "COL=10=20=30"))
	e, _ := h.game.Snapshot().Entity("Painter")
	assert.Equal(t, [3]uint8{10, 20, 30}, e.Color)

	assert.Equal(t, ErrorToken, h.send(c, "COL=1=2"))
	assert.Equal(t, ErrorToken, h.send(c, "COL=256=0=0"))
	assert.Equal(t, ErrorToken, h.send(c, "COL=a=b=c"))

	early := h.clients.Connect("y")
	assert.Equal(t, "COL=OK", h.send(early, "COL=1=2=3"))
	assert.Equal(t, "NAME=OK", h.send(early, "NAME=Early"))
	e, _ = h.game.Snapshot().Entity("Early")
	assert.Equal(t, [3]uint8{1, 2, 3}, e.Color, "colour chosen before NAME is applied on spawn")
}

func TestDispatch_MessagesAndUserMessages(t *testing.T) {
	h := newHarness(t, false)
	anon := h.clients.Connect("x")
	assert.Equal(t, ErrorToken, h.send(anon, "MSG=hello"), "unnamed clients cannot chat")

	c := h.named(t, "Talker")
	assert.Equal(t, "MSG=OK#MSG=OK", h.send(c, "MSG=hello#MSG=world"))
	assert.Equal(t, ErrorToken, h.send(c, "MSG="+strings.Repeat("x", 41)))
	assert.Equal(t, "USRMSG=Talker=hello=world", h.send(anon, "USRMSG=Talker"))
	assert.Equal(t, "USRMSG=Nobody", h.send(anon, "USRMSG=Nobody"))
	assert.Equal(t, 2, h.log.Count(messages.Default))
}

func TestDispatch_Queries(t *testing.T) {
	h := newHarness(t, false)
	c := h.named(t, "Me")
	assert.Equal(t, "CBOT=NONE", h.send(c, "CBOT"))
	assert.Equal(t, "CPROJ=NONE", h.send(c, "CPROJ"))
	assert.Equal(t, "NBOT=NONE", h.send(c, "NBOT=Ghost"))

	h.game.with(func(sim *arena.Simulation) {
		near, _ := sim.AddBot("Near")
		far, _ := sim.AddBot("Far")
		sim.Entities().Move(c.EntityID(), physics.V(100, 100))
		sim.Entities().Move(near, physics.V(150, 100))
		sim.Entities().Move(far, physics.V(900, 900))
		e, _ := sim.Entities().Get(far)
		e.Score = 3
	})
	assert.Equal(t, "CBOT=Near=150.00=100.00", h.send(c, "CBOT"))
	assert.Equal(t, "NBOT=Far=900.00=900.00=3", h.send(c, "NBOT=Far"))
	assert.Equal(t, "NLIST=Me=Near=Far", h.send(c, "NLIST"))
	assert.Equal(t, "ORIENT=0.0000=0.0000", h.send(c, "ORIENT"))

	anon := h.clients.Connect("y")
	assert.Equal(t, ErrorToken, h.send(anon, "ORIENT"))
	assert.Equal(t, "CBOT=Far=900.00=900.00", h.send(anon, "CBOT"), "measured from the arena centre")
}

func TestDispatch_AimFireMove(t *testing.T) {
	h := newHarness(t, false)
	c := h.named(t, "Gunner")
	h.game.with(func(sim *arena.Simulation) {
		sim.Entities().Move(c.EntityID(), physics.V(500, 500))
	})

	assert.Equal(t, "AIM=OK", h.send(c, "AIM=1.5"))
	assert.Equal(t, "ORIENT=0.0000=1.5000", h.send(c, "ORIENT"))
	assert.Equal(t, "AIM=OK", h.send(c, "AIM=-1.5707963267948966"))
	e, _ := h.game.Snapshot().Entity("Gunner")
	assert.InDelta(t, 4.712, e.GunOrientation, 1e-3, "angles are normalised to [0, 2π)")
	assert.Equal(t, ErrorToken, h.send(c, "AIM=NaN"))

	assert.Equal(t, "FIRE=OK#FIRE=OK", h.send(c, "FIRE#FIRE"))
	assert.Len(t, h.game.Snapshot().Bullets, 1, "the second shot is inside the cooldown")
	assert.Equal(t, "CPROJ=NONE", h.send(c, "CPROJ"), "own bullets are not reported")
	other := h.named(t, "Watcher")
	assert.Equal(t, "CPROJ=500.00=500.00", h.send(other, "CPROJ"))

	assert.Equal(t, "MOVE=OK", h.send(c, "MOVE=100=0"))
	h.game.with(func(sim *arena.Simulation) { sim.Tick() })
	e, _ = h.game.Snapshot().Entity("Gunner")
	assert.InDelta(t, 505.0, e.X, 1e-9, "moves are capped at MaxMoveStep")
	assert.Equal(t, ErrorToken, h.send(c, "MOVE=x=1"))

	anon := h.clients.Connect("z")
	assert.Equal(t, "ERROR#ERROR#ERROR", h.send(anon, "AIM=1#FIRE#MOVE=1=1"))
}

func TestDispatch_SubmitFailureIsError(t *testing.T) {
	h := newHarness(t, false)
	c := h.named(t, "Busy")
	h.game.submitErr = errors.New("inbox full")
	assert.Equal(t, ErrorToken, h.send(c, "FIRE"))
}

func TestDispatch_Set(t *testing.T) {
	h := newHarness(t, false)
	c := h.clients.Connect("x")
	assert.Equal(t, ErrorToken, h.send(c, "SET=score_limit=5"))

	h = newHarness(t, true)
	c = h.clients.Connect("x")
	assert.Equal(t, "SET=OK", h.send(c, "SET=score_limit=5"))
	assert.Equal(t, 5, h.settings.Snapshot().ScoreLimit)
	assert.Equal(t, ErrorToken, h.send(c, "SET=score_limit=0"))
	assert.Equal(t, ErrorToken, h.send(c, "SET=nope=1"))
	assert.Equal(t, 1, h.log.Count(messages.Warning))
}

func TestDispatch_FloodPenalty(t *testing.T) {
	h := newHarness(t, false)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.d.now = func() time.Time { return now }
	c := h.clients.Connect("x")
	c.SetLimiter(rate.NewLimiter(rate.Limit(1), 2))

	assert.Equal(t, "LIVE#LIVE#ERROR", h.send(c, "LIVE#LIVE#LIVE"))
	now = now.Add(500 * time.Millisecond)
	assert.Equal(t, ErrorToken, h.send(c, "LIVE"), "still penalised")
	now = now.Add(time.Second)
	assert.Equal(t, "LIVE", h.send(c, "LIVE"))
}

func TestDispatch_ExitDuringPenalty(t *testing.T) {
	h := newHarness(t, false)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.d.now = func() time.Time { return now }
	c := h.clients.Connect("x")
	c.SetLimiter(rate.NewLimiter(rate.Limit(1), 1))

	assert.Equal(t, "LIVE#ERROR", h.send(c, "LIVE#LIVE"))
	assert.Equal(t, ErrorToken, h.send(c, "LIVE"))
	assert.Equal(t, "<quit>", h.send(c, "EXIT"))
}

func TestDispatch_OnlySuccessTouches(t *testing.T) {
	h := newHarness(t, false)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	h.d.now = func() time.Time { return now }
	c := h.clients.Connect("x")
	c.Touch(start)

	now = start.Add(5 * time.Second)
	h.send(c, "BOGUS")
	assert.Equal(t, 5*time.Second, c.IdleFor(now))

	h.send(c, "LIVE")
	assert.Equal(t, time.Duration(0), c.IdleFor(now))
}
