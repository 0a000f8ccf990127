// Package rpc fetches light-client messages from a beacon node's REST API.
//
// The verification core never performs I/O; this package is the fetch
// boundary it sits behind. Implementations return decoded records and
// surface transport or decode failures as errors.
package rpc

import (
	"context"
	"errors"

	"github.com/geanlabs/lantern/types"
)

// ErrNotFound reports that the server has no record for the request,
// such as a bootstrap for an unknown root or a block at a skipped slot.
// Callers may use errors.Is to detect it.
var ErrNotFound = errors.New("rpc: not found")

// Client fetches light-client protocol messages.
type Client interface {
	// Bootstrap fetches the bootstrap anchored at a finalized block root.
	Bootstrap(ctx context.Context, root types.Root) (*types.Bootstrap, error)

	// UpdatesByRange fetches up to count committee-rotation updates
	// starting at the given sync-committee period.
	UpdatesByRange(ctx context.Context, start types.SyncCommitteePeriod, count uint64) ([]types.Update, error)

	// FinalityUpdate fetches the latest finality update.
	FinalityUpdate(ctx context.Context) (*types.FinalityUpdate, error)

	// OptimisticUpdate fetches the latest optimistic update.
	OptimisticUpdate(ctx context.Context) (*types.OptimisticUpdate, error)

	// Block fetches the block at the given slot.
	Block(ctx context.Context, slot types.Slot) (*types.BeaconBlock, error)
}
