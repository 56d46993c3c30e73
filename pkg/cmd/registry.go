package cmd

import (
	"slices"
	"strings"
	"sync"
)

// DefaultRegistry is the registry the Discord runtime dispatches from.
var DefaultRegistry = NewRegistry()

// Registry stores commands by name. It does not perform dispatch; each adapter
// looks up commands and invokes them with its own context.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds a command, replacing any command with the same name.
func (r *Registry) Register(c Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[c.Name()] = c
}

// Get returns the command with the given name, or nil.
func (r *Registry) Get(name string) Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.commands[name]
}

// GetAll returns all registered commands, sorted by name.
func (r *Registry) GetAll() []Command {
	r.mu.RLock()
	list := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		list = append(list, c)
	}
	r.mu.RUnlock()

	slices.SortFunc(list, func(a, b Command) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return list
}
