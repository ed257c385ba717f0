package protocol

import (
	"context"
	"fmt"
	"sort"

	"github.com/cory-johannsen/arena/internal/game/session"
)

// HandlerFunc executes one command unit for client and returns the reply
// unit. A returned error makes the reply ERROR.
type HandlerFunc func(ctx context.Context, d *Dispatcher, c *session.Client, args []string) (string, error)

// Command defines one protocol code.
type Command struct {
	// Code is the wire code, upper case.
	Code string
	// MinArgs and MaxArgs bound the argument count; MaxArgs < 0 is unbounded.
	MinArgs int
	MaxArgs int
	// Help is a one-line description.
	Help string
	// Unmetered commands bypass the flood limiter and run during a penalty.
	Unmetered bool
	Handler   HandlerFunc
}

// acceptsArgs reports whether n arguments satisfy the command's arity.
func (c *Command) acceptsArgs(n int) bool {
	if n < c.MinArgs {
		return false
	}
	return c.MaxArgs < 0 || n <= c.MaxArgs
}

// Registry maps codes to commands.
type Registry struct {
	commands map[string]*Command
}

// NewRegistry creates a Registry from cmds.
//
// Precondition: codes are unique and every command has a handler.
// Postcondition: Returns a Registry or an error describing the first
// violation.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{commands: make(map[string]*Command, len(cmds))}
	for i := range cmds {
		cmd := &cmds[i]
		if cmd.Code == "" {
			return nil, fmt.Errorf("command %d has no code", i)
		}
		if cmd.Handler == nil {
			return nil, fmt.Errorf("command %q has no handler", cmd.Code)
		}
		if _, exists := r.commands[cmd.Code]; exists {
			return nil, fmt.Errorf("duplicate command code: %q", cmd.Code)
		}
		r.commands[cmd.Code] = cmd
	}
	return r, nil
}

// DefaultRegistry creates a Registry with every built-in command.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("building default registry: %v", err))
	}
	return r
}

// Resolve looks up a command by code.
func (r *Registry) Resolve(code string) (*Command, bool) {
	cmd, ok := r.commands[code]
	return cmd, ok
}

// Commands returns every command sorted by code.
func (r *Registry) Commands() []*Command {
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
