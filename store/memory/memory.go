// Package memory provides an in-memory implementation of the store
// interface for tests and ephemeral runs.
package memory

import (
	"sync"

	"github.com/geanlabs/lantern/consensus"
	"github.com/geanlabs/lantern/types"
)

// Store holds the checkpoint and state in process memory.
// Nothing survives a restart.
type Store struct {
	mu         sync.RWMutex
	checkpoint *types.Root
	state      *consensus.State
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// SaveCheckpoint records the checkpoint root.
func (s *Store) SaveCheckpoint(root types.Root) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoint = &root
	return nil
}

// Checkpoint returns the stored checkpoint root, if any.
func (s *Store) Checkpoint() (types.Root, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.checkpoint == nil {
		return types.Root{}, false, nil
	}
	return *s.checkpoint, true, nil
}

// SaveState records a copy of the verified state.
func (s *Store) SaveState(state *consensus.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := state.Copy()
	s.state = &copied
	return nil
}

// LoadState returns a copy of the stored state, if any.
func (s *Store) LoadState() (*consensus.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, false, nil
	}
	copied := s.state.Copy()
	return &copied, true, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
