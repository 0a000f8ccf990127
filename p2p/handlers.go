package p2p

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/geanlabs/lantern/relay"
	"github.com/geanlabs/lantern/types"
)

// FinalityUpdateHandler processes incoming finality updates.
type FinalityUpdateHandler func(ctx context.Context, update *types.FinalityUpdate, from peer.ID) error

// OptimisticUpdateHandler processes incoming optimistic updates.
type OptimisticUpdateHandler func(ctx context.Context, update *types.OptimisticUpdate, from peer.ID) error

// BatchHandler processes incoming relay batches.
type BatchHandler func(ctx context.Context, batch *types.UpdatesBatch, from peer.ID) error

// MessageHandlers holds handlers for the overlay's message types. A nil
// handler drops its messages after decode.
type MessageHandlers struct {
	OnFinalityUpdate   FinalityUpdateHandler
	OnOptimisticUpdate OptimisticUpdateHandler
	OnBatch            BatchHandler
}

// HandleFinalityMessage decodes and processes a finality update message.
func (h *MessageHandlers) HandleFinalityMessage(ctx context.Context, data []byte, from peer.ID) error {
	decoded, err := DecompressMessage(data)
	if err != nil {
		return fmt.Errorf("decompress finality update: %w", err)
	}
	var update types.FinalityUpdate
	if err := update.UnmarshalSSZ(decoded); err != nil {
		return fmt.Errorf("unmarshal finality update: %w", err)
	}
	if h.OnFinalityUpdate != nil {
		return h.OnFinalityUpdate(ctx, &update, from)
	}
	return nil
}

// HandleOptimisticMessage decodes and processes an optimistic update message.
func (h *MessageHandlers) HandleOptimisticMessage(ctx context.Context, data []byte, from peer.ID) error {
	decoded, err := DecompressMessage(data)
	if err != nil {
		return fmt.Errorf("decompress optimistic update: %w", err)
	}
	var update types.OptimisticUpdate
	if err := update.UnmarshalSSZ(decoded); err != nil {
		return fmt.Errorf("unmarshal optimistic update: %w", err)
	}
	if h.OnOptimisticUpdate != nil {
		return h.OnOptimisticUpdate(ctx, &update, from)
	}
	return nil
}

// HandleBatchMessage decodes and processes a relay batch message. Batches
// travel in the relay framing rather than bare snappy.
func (h *MessageHandlers) HandleBatchMessage(ctx context.Context, data []byte, from peer.ID) error {
	batch, err := relay.DecodeBatch(data)
	if err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	if h.OnBatch != nil {
		return h.OnBatch(ctx, batch, from)
	}
	return nil
}
