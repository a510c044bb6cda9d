// Package cli is the bench command interpreter: a table of named commands,
// a line tokenizer and a byte stream front end for the serial link.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned by Dispatch for a name that is not registered
var ErrUnknownCommand = errors.New("unknown command")

// Handler runs a command. args[0] is the upper case command name and the
// remaining entries are its arguments. Output goes to w.
type Handler func(ctx context.Context, w io.Writer, args []string) error

// Command is one registered command
type Command struct {
	Name    string
	Help    string
	Handler Handler
}

// Registry holds the command table in registration order
type Registry struct {
	mu       sync.RWMutex
	commands []*Command
	byName   map[string]*Command
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Command),
	}
}

// Register adds a command. Names are case-insensitive. Registering a name
// twice keeps the first handler.
func (r *Registry) Register(name, help string, handler Handler) *Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToUpper(name)
	if cmd, exists := r.byName[key]; exists {
		return cmd
	}

	cmd := &Command{
		Name:    key,
		Help:    help,
		Handler: handler,
	}
	r.commands = append(r.commands, cmd)
	r.byName[key] = cmd
	return cmd
}

// Lookup finds a command by name
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[strings.ToUpper(name)]
	return cmd, ok
}

// Commands returns the commands in registration order
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// Count returns the number of registered commands
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the command named by args[0]
func (r *Registry) Dispatch(ctx context.Context, w io.Writer, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := r.Lookup(args[0])
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	args[0] = cmd.Name
	return cmd.Handler(ctx, w, args)
}

// Help writes the command table, names padded to ten columns
func (r *Registry) Help(w io.Writer) {
	cmds := r.Commands()
	fmt.Fprintf(w, "%d commands\n", len(cmds))
	for _, cmd := range cmds {
		fmt.Fprintf(w, "%-10s%s\n", cmd.Name, cmd.Help)
	}
}
