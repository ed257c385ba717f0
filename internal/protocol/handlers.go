package protocol

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/cory-johannsen/arena/internal/game/arena"
	"github.com/cory-johannsen/arena/internal/game/entity"
	"github.com/cory-johannsen/arena/internal/game/messages"
	"github.com/cory-johannsen/arena/internal/game/physics"
	"github.com/cory-johannsen/arena/internal/game/session"
)

// MaxMoveStep bounds the distance of a single MOVE.
const MaxMoveStep = 5.0

var errNoEntity = errors.New("client has no arena entity")

// BuiltinCommands returns every protocol command.
func BuiltinCommands() []Command {
	return []Command{
		{Code: CodeName, MinArgs: 1, MaxArgs: 1, Help: "NAME=<name> set display name and join the arena", Handler: handleName},
		{Code: CodeColor, MinArgs: 3, MaxArgs: 3, Help: "COL=<r>=<g>=<b> set display colour", Handler: handleColor},
		{Code: CodeExit, MinArgs: 0, MaxArgs: -1, Help: "EXIT close the connection", Unmetered: true, Handler: handleExit},
		{Code: CodeLive, MinArgs: 0, MaxArgs: 0, Help: "LIVE keep-alive", Handler: handleLive},
		{Code: CodeMessage, MinArgs: 1, MaxArgs: 1, Help: "MSG=<text> post a chat message", Handler: handleMessage},
		{Code: CodeBot, MinArgs: 0, MaxArgs: 0, Help: "CBOT nearest bot", Handler: handleClosestBot},
		{Code: CodeProj, MinArgs: 0, MaxArgs: 0, Help: "CPROJ nearest projectile not fired by you", Handler: handleClosestProjectile},
		{Code: CodeNamed, MinArgs: 1, MaxArgs: 1, Help: "NBOT=<name> position and score of a named entity", Handler: handleNamed},
		{Code: CodeList, MinArgs: 0, MaxArgs: 0, Help: "NLIST names of every entity", Handler: handleList},
		{Code: CodeOrient, MinArgs: 0, MaxArgs: 0, Help: "ORIENT your movement and gun orientation", Handler: handleOrient},
		{Code: CodeUserMsg, MinArgs: 1, MaxArgs: 1, Help: "USRMSG=<name> recent messages from a user", Handler: handleUserMessages},
		{Code: CodeEmpty, MinArgs: 0, MaxArgs: -1, Help: "EMPTY empty reply", Handler: handleEmpty},
		{Code: CodeAim, MinArgs: 1, MaxArgs: 1, Help: "AIM=<radians> turn your gun", Handler: handleAim},
		{Code: CodeFire, MinArgs: 0, MaxArgs: 0, Help: "FIRE shoot along your gun", Handler: handleFire},
		{Code: CodeMove, MinArgs: 2, MaxArgs: 2, Help: "MOVE=<dx>=<dy> move your entity", Handler: handleMove},
		{Code: CodeSet, MinArgs: 2, MaxArgs: 2, Help: "SET=<key>=<value> change a server setting", Handler: handleSet},
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatAngle(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func parseFinite(raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not finite", raw)
	}
	return f, nil
}

// handleName claims the name for the session and spawns (or renames) the
// session's player entity on the tick goroutine.
func handleName(ctx context.Context, d *Dispatcher, c *session.Client, args []string) (string, error) {
	name := args[0]
	if name == "" {
		return "", session.ErrEmptyName
	}
	prev, err := d.deps.Clients.ClaimName(c.UID, name)
	if err != nil {
		return "", err
	}
	existing := c.EntityID()
	if prev == name && existing != 0 {
		if e, ok := d.deps.Game.Snapshot().Entity(name); ok && e.ID == existing {
			return FormatUnit(CodeName, OK), nil
		}
	}

	col := c.Color()
	var spawned entity.ID
	err = d.deps.Game.Do(ctx, func(sim *arena.Simulation) error {
		if existing != 0 {
			if _, alive := sim.Entities().Get(existing); alive {
				return sim.RenameEntity(existing, name)
			}
		}
		// first NAME, or the entity was removed outside the session
		id, err := sim.AddPlayer(name)
		if err != nil {
			return err
		}
		sim.SetColor(name, col)
		spawned = id
		return nil
	})
	if err != nil {
		d.deps.Clients.RestoreName(c.UID, prev)
		return "", err
	}
	if spawned != 0 {
		c.SetEntityID(spawned)
	}
	switch {
	case prev == "":
		d.deps.Log.Add(fmt.Sprintf("%s joined from %s", name, c.Addr), messages.Info)
	case prev == name:
		if spawned == 0 {
			break
		}
		d.deps.Log.Add(fmt.Sprintf("%s rejoined from %s", name, c.Addr), messages.Info)
	default:
		d.deps.Log.Add(fmt.Sprintf("%s is now known as %s", prev, name), messages.Info)
	}
	return FormatUnit(CodeName, OK), nil
}

func handleColor(_ context.Context, d *Dispatcher, c *session.Client, args []string) (string, error) {
	var rgb [3]uint8
	for i, raw := range args {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", err
		}
		if n < 0 || n > 255 {
			return "", fmt.Errorf("colour component %d out of range", n)
		}
		rgb[i] = uint8(n)
	}
	col := entity.Color{R: rgb[0], G: rgb[1], B: rgb[2]}
	c.SetColor(col)
	if name := c.Name(); name != "" && c.EntityID() != 0 {
		if err := d.deps.Game.Submit(func(sim *arena.Simulation) { sim.SetColor(name, col) }); err != nil {
			return "", err
		}
	}
	return FormatUnit(CodeColor, OK), nil
}

func handleExit(context.Context, *Dispatcher, *session.Client, []string) (string, error) {
	return "", ErrQuit
}

func handleLive(context.Context, *Dispatcher, *session.Client, []string) (string, error) {
	return CodeLive, nil
}

func handleEmpty(context.Context, *Dispatcher, *session.Client, []string) (string, error) {
	return CodeEmpty, nil
}

func handleMessage(_ context.Context, d *Dispatcher, c *session.Client, args []string) (string, error) {
	v := d.deps.Settings.Snapshot()
	msg, err := d.deps.Clients.Post(c, args[0], v.MessageLength, v.MessageDuration)
	if err != nil {
		return "", err
	}
	d.deps.Log.Add(fmt.Sprintf("%s: %s", msg.From, msg.Text), messages.Default)
	return FormatUnit(CodeMessage, OK), nil
}

// origin is where proximity queries are measured from: the client's own
// entity, or the arena centre before it has one.
func origin(snap *arena.Snapshot, c *session.Client) physics.Vec2 {
	if e, ok := snap.Entity(c.Name()); ok && e.ID == c.EntityID() {
		return physics.V(e.X, e.Y)
	}
	return snap.Centre()
}

func handleClosestBot(_ context.Context, d *Dispatcher, c *session.Client, _ []string) (string, error) {
	snap := d.deps.Game.Snapshot()
	bot, ok := snap.ClosestBot(origin(snap, c), c.Name())
	if !ok {
		return FormatUnit(CodeBot, None), nil
	}
	return FormatUnit(CodeBot, bot.Name, formatFloat(bot.X), formatFloat(bot.Y)), nil
}

func handleClosestProjectile(_ context.Context, d *Dispatcher, c *session.Client, _ []string) (string, error) {
	snap := d.deps.Game.Snapshot()
	b, ok := snap.ClosestBullet(origin(snap, c), c.EntityID())
	if !ok {
		return FormatUnit(CodeProj, None), nil
	}
	return FormatUnit(CodeProj, formatFloat(b.X), formatFloat(b.Y)), nil
}

func handleNamed(_ context.Context, d *Dispatcher, _ *session.Client, args []string) (string, error) {
	e, ok := d.deps.Game.Snapshot().Entity(args[0])
	if !ok {
		return FormatUnit(CodeNamed, None), nil
	}
	return FormatUnit(CodeNamed, e.Name, formatFloat(e.X), formatFloat(e.Y), strconv.Itoa(e.Score)), nil
}

func handleList(_ context.Context, d *Dispatcher, _ *session.Client, _ []string) (string, error) {
	return FormatUnit(CodeList, d.deps.Game.Snapshot().Names()...), nil
}

func handleOrient(_ context.Context, d *Dispatcher, c *session.Client, _ []string) (string, error) {
	e, ok := d.deps.Game.Snapshot().Entity(c.Name())
	if !ok || e.ID != c.EntityID() {
		return "", errNoEntity
	}
	return FormatUnit(CodeOrient, formatAngle(e.SelfOrientation), formatAngle(e.GunOrientation)), nil
}

func handleUserMessages(_ context.Context, d *Dispatcher, _ *session.Client, args []string) (string, error) {
	v := d.deps.Settings.Snapshot()
	msgs := d.deps.Clients.MessagesFrom(args[0], v.MessageDuration)
	out := make([]string, 0, len(msgs)+1)
	out = append(out, args[0])
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return FormatUnit(CodeUserMsg, out...), nil
}

// ownEntity returns the client's name when it controls an entity.
func ownEntity(c *session.Client) (string, error) {
	name := c.Name()
	if name == "" || c.EntityID() == 0 {
		return "", errNoEntity
	}
	return name, nil
}

func handleAim(_ context.Context, d *Dispatcher, c *session.Client, args []string) (string, error) {
	name, err := ownEntity(c)
	if err != nil {
		return "", err
	}
	theta, err := parseFinite(args[0])
	if err != nil {
		return "", err
	}
	theta = math.Mod(theta, 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	if err := d.deps.Game.Submit(func(sim *arena.Simulation) { sim.Aim(name, theta) }); err != nil {
		return "", err
	}
	return FormatUnit(CodeAim, OK), nil
}

func handleFire(_ context.Context, d *Dispatcher, c *session.Client, _ []string) (string, error) {
	name, err := ownEntity(c)
	if err != nil {
		return "", err
	}
	if err := d.deps.Game.Submit(func(sim *arena.Simulation) { sim.Shoot(name) }); err != nil {
		return "", err
	}
	return FormatUnit(CodeFire, OK), nil
}

func handleMove(_ context.Context, d *Dispatcher, c *session.Client, args []string) (string, error) {
	name, err := ownEntity(c)
	if err != nil {
		return "", err
	}
	dx, err := parseFinite(args[0])
	if err != nil {
		return "", err
	}
	dy, err := parseFinite(args[1])
	if err != nil {
		return "", err
	}
	step := physics.V(dx, dy)
	if l := step.Len(); l > MaxMoveStep {
		step = step.Scale(MaxMoveStep / l)
	}
	if err := d.deps.Game.Submit(func(sim *arena.Simulation) { sim.MoveBy(name, step.X, step.Y) }); err != nil {
		return "", err
	}
	return FormatUnit(CodeMove, OK), nil
}

func handleSet(_ context.Context, d *Dispatcher, c *session.Client, args []string) (string, error) {
	if !d.deps.AllowRemoteSettings {
		return "", errors.New("remote settings disabled")
	}
	if err := d.deps.Settings.Set(args[0], args[1]); err != nil {
		return "", err
	}
	d.deps.Log.Add(fmt.Sprintf("%s set %s to %s", c.Addr, args[0], args[1]), messages.Warning)
	return FormatUnit(CodeSet, OK), nil
}
