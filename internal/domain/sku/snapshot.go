package sku

import "sync/atomic"

// Snapshot holds the currently active Registry behind an atomic pointer.
// Readers never observe a partially-updated registry: reload compiles a new
// Registry and swaps the pointer wholesale.
type Snapshot struct {
	current atomic.Pointer[Registry]
}

// NewSnapshot creates a snapshot holder seeded with the given registry
func NewSnapshot(initial *Registry) *Snapshot {
	s := &Snapshot{}
	if initial == nil {
		initial, _ = NewRegistry(RegistryConfig{})
	}
	s.current.Store(initial)
	return s
}

// Registry returns the active registry. The result is immutable.
func (s *Snapshot) Registry() *Registry {
	return s.current.Load()
}

// Swap atomically replaces the active registry
func (s *Snapshot) Swap(r *Registry) {
	if r == nil {
		return
	}
	s.current.Store(r)
}
