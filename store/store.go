// Package store defines the interface for persisting the verified
// light-client view between runs.
package store

import (
	"github.com/geanlabs/lantern/consensus"
	"github.com/geanlabs/lantern/types"
)

// Store persists the finalized checkpoint and the full verified state.
// The checkpoint alone is enough to re-bootstrap from an RPC endpoint;
// the state record lets a restart skip bootstrapping entirely.
type Store interface {
	// SaveCheckpoint records the root of the latest finalized header.
	SaveCheckpoint(root types.Root) error

	// Checkpoint returns the stored checkpoint root. The boolean is
	// false when no checkpoint has been saved yet.
	Checkpoint() (types.Root, bool, error)

	// SaveState records the full verified state.
	SaveState(state *consensus.State) error

	// LoadState returns the stored state. The boolean is false when
	// no state has been saved yet.
	LoadState() (*consensus.State, bool, error)

	// Close releases any resources held by the store.
	Close() error
}
