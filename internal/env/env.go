// Package env is a small environment store. Callbacks registered for a
// variable run before a change is committed and may veto it.
package env

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Well-known variables
const (
	VarBootmeths   = "bootmeths"
	VarBootTargets = "boot_targets"
)

// Callback validates and applies a new value. An empty value means the
// variable is being deleted.
type Callback func(name, value string) error

// Env holds variables and their change callbacks
type Env struct {
	mu        sync.Mutex
	vars      map[string]string
	callbacks map[string]Callback
	logger    zerolog.Logger
}

// New creates an empty environment
func New(logger zerolog.Logger) *Env {
	return &Env{
		vars:      make(map[string]string),
		callbacks: make(map[string]Callback),
		logger:    logger.With().Str("component", "env").Logger(),
	}
}

// OnChange registers cb for name, replacing any earlier callback
func (e *Env) OnChange(name string, cb Callback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbacks[name] = cb
}

// Get returns the value of name, or "" when unset
func (e *Env) Get(name string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vars[name]
}

// Set assigns value to name. Setting "" deletes the variable. When a
// callback rejects the value, the previous value is kept.
func (e *Env) Set(name, value string) error {
	e.mu.Lock()
	cb := e.callbacks[name]
	e.mu.Unlock()

	if cb != nil {
		if err := cb(name, value); err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if value == "" {
		delete(e.vars, name)
	} else {
		e.vars[name] = value
	}
	e.logger.Debug().Str("name", name).Str("value", value).Msg("set")
	return nil
}

// Import sets every variable of vars in name order
func (e *Env) Import(vars map[string]string) error {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.Set(name, vars[name]); err != nil {
			return err
		}
	}
	return nil
}

// All returns a copy of every variable
func (e *Env) All() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}
