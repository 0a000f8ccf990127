package store

import (
	"fmt"

	"github.com/geanlabs/lantern/consensus"
	"github.com/geanlabs/lantern/types"
)

// State records are a fixed-layout concatenation of SSZ-encoded parts:
// finalized header, optimistic header, current committee, a presence
// byte, and the pending committee when the presence byte is 1.
const (
	stateMinSize = 2*types.HeaderSSZSize + types.SyncCommitteeSSZSize + 1
	stateMaxSize = stateMinSize + types.SyncCommitteeSSZSize
)

// EncodeState serializes a verified state for storage.
func EncodeState(state *consensus.State) ([]byte, error) {
	buf := make([]byte, 0, stateMaxSize)

	buf, err := state.FinalizedHeader.MarshalSSZTo(buf)
	if err != nil {
		return nil, fmt.Errorf("encode finalized header: %w", err)
	}
	buf, err = state.OptimisticHeader.MarshalSSZTo(buf)
	if err != nil {
		return nil, fmt.Errorf("encode optimistic header: %w", err)
	}
	buf, err = state.CurrentSyncCommittee.MarshalSSZTo(buf)
	if err != nil {
		return nil, fmt.Errorf("encode current committee: %w", err)
	}

	if state.NextSyncCommittee == nil {
		return append(buf, 0), nil
	}
	buf = append(buf, 1)
	buf, err = state.NextSyncCommittee.MarshalSSZTo(buf)
	if err != nil {
		return nil, fmt.Errorf("encode next committee: %w", err)
	}
	return buf, nil
}

// DecodeState deserializes a state record produced by EncodeState.
func DecodeState(data []byte) (*consensus.State, error) {
	if len(data) != stateMinSize && len(data) != stateMaxSize {
		return nil, fmt.Errorf("state record is %d bytes, want %d or %d", len(data), stateMinSize, stateMaxSize)
	}

	var state consensus.State
	off := 0
	if err := state.FinalizedHeader.UnmarshalSSZ(data[off : off+types.HeaderSSZSize]); err != nil {
		return nil, fmt.Errorf("decode finalized header: %w", err)
	}
	off += types.HeaderSSZSize
	if err := state.OptimisticHeader.UnmarshalSSZ(data[off : off+types.HeaderSSZSize]); err != nil {
		return nil, fmt.Errorf("decode optimistic header: %w", err)
	}
	off += types.HeaderSSZSize
	if err := state.CurrentSyncCommittee.UnmarshalSSZ(data[off : off+types.SyncCommitteeSSZSize]); err != nil {
		return nil, fmt.Errorf("decode current committee: %w", err)
	}
	off += types.SyncCommitteeSSZSize

	switch data[off] {
	case 0:
		if len(data) != stateMinSize {
			return nil, fmt.Errorf("state record has trailing bytes after empty committee marker")
		}
	case 1:
		if len(data) != stateMaxSize {
			return nil, fmt.Errorf("state record is missing the pending committee")
		}
		next := new(types.SyncCommittee)
		if err := next.UnmarshalSSZ(data[off+1:]); err != nil {
			return nil, fmt.Errorf("decode next committee: %w", err)
		}
		state.NextSyncCommittee = next
	default:
		return nil, fmt.Errorf("state record has invalid committee marker %d", data[off])
	}
	return &state, nil
}
