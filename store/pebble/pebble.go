// Package pebble provides a disk-backed implementation of the store
// interface on top of a pebble key-value database.
package pebble

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/geanlabs/lantern/consensus"
	"github.com/geanlabs/lantern/store"
	"github.com/geanlabs/lantern/types"
)

var (
	checkpointKey = []byte("lantern/checkpoint")
	stateKey      = []byte("lantern/state")
)

// Store persists the checkpoint and state in a pebble database.
// Writes are synced; a crash never loses an acknowledged save.
type Store struct {
	db *pebble.DB
}

// New opens (or creates) a pebble database at path.
func New(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble database at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// SaveCheckpoint records the checkpoint root.
func (s *Store) SaveCheckpoint(root types.Root) error {
	if err := s.db.Set(checkpointKey, root[:], pebble.Sync); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Checkpoint returns the stored checkpoint root, if any.
func (s *Store) Checkpoint() (types.Root, bool, error) {
	value, closer, err := s.db.Get(checkpointKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Root{}, false, nil
	}
	if err != nil {
		return types.Root{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	defer closer.Close()

	if len(value) != len(types.Root{}) {
		return types.Root{}, false, fmt.Errorf("checkpoint record is %d bytes, want %d", len(value), len(types.Root{}))
	}
	var root types.Root
	copy(root[:], value)
	return root, true, nil
}

// SaveState records the verified state.
func (s *Store) SaveState(state *consensus.State) error {
	encoded, err := store.EncodeState(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.db.Set(stateKey, encoded, pebble.Sync); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// LoadState returns the stored state, if any.
func (s *Store) LoadState() (*consensus.State, bool, error) {
	value, closer, err := s.db.Get(stateKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read state: %w", err)
	}
	defer closer.Close()

	state, err := store.DecodeState(value)
	if err != nil {
		return nil, false, fmt.Errorf("decode state: %w", err)
	}
	return state, true, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
