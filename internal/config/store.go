package config

import "sync/atomic"

// Store publishes the current guard configuration to concurrent readers.
// Readers get an immutable copy; writers replace it wholesale.
type Store struct {
	p atomic.Pointer[GuardConfig]
}

// NewStore returns a store holding g.
func NewStore(g GuardConfig) *Store {
	s := &Store{}
	s.Set(g)
	return s
}

// Load returns the guard configuration in effect right now.
func (s *Store) Load() *GuardConfig {
	return s.p.Load()
}

// Set replaces the guard configuration. Mode is re-derived from Action.
func (s *Store) Set(g GuardConfig) {
	g.Mode = ParseAction(g.Action)
	s.p.Store(&g)
}
