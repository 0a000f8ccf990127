// Package relay encodes verified light-client state for the downstream
// bridge relay. Batches travel as compact binary, never verbose JSON:
// the payload is the canonical fixed-layout encoding, snappy block
// compressed, with an uncompressed-length varint prefix.
package relay

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"

	"github.com/geanlabs/lantern/types"
)

// MaxFrameSize bounds the uncompressed payload of a single frame. A full
// batch of 128 updates is a little over 3MB.
const MaxFrameSize = 8 * 1024 * 1024

// Publisher delivers encoded batches to the relay target. The node does
// not care whether that is a gossip topic, a socket, or a test sink.
type Publisher interface {
	Publish(ctx context.Context, frame []byte) error
}

// EncodeBatch frames a batch for the relay.
func EncodeBatch(batch *types.UpdatesBatch) ([]byte, error) {
	payload, err := batch.MarshalSSZ()
	if err != nil {
		return nil, fmt.Errorf("relay: encode batch: %w", err)
	}
	return EncodeFrame(payload)
}

// DecodeBatch reverses EncodeBatch.
func DecodeBatch(frame []byte) (*types.UpdatesBatch, error) {
	payload, err := DecodeFrame(frame)
	if err != nil {
		return nil, err
	}
	var batch types.UpdatesBatch
	if err := batch.UnmarshalSSZ(payload); err != nil {
		return nil, fmt.Errorf("relay: decode batch: %w", err)
	}
	return &batch, nil
}

// EncodeFrame wraps a payload in the relay framing: a varint holding the
// uncompressed length, then the snappy block compression of the payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("relay: payload is %d bytes, limit %d", len(payload), MaxFrameSize)
	}
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, uint64(len(payload)))
	compressed := snappy.Encode(nil, payload)

	frame := make([]byte, 0, n+len(compressed))
	frame = append(frame, prefix[:n]...)
	return append(frame, compressed...), nil
}

// DecodeFrame reverses EncodeFrame. The declared length must match the
// decompressed payload exactly.
func DecodeFrame(frame []byte) ([]byte, error) {
	declared, n := binary.Uvarint(frame)
	if n <= 0 {
		return nil, fmt.Errorf("relay: invalid length prefix")
	}
	if declared > MaxFrameSize {
		return nil, fmt.Errorf("relay: declared length %d exceeds limit %d", declared, MaxFrameSize)
	}
	payload, err := snappy.Decode(nil, frame[n:])
	if err != nil {
		return nil, fmt.Errorf("relay: snappy decode: %w", err)
	}
	if uint64(len(payload)) != declared {
		return nil, fmt.Errorf("relay: declared length %d, decompressed %d", declared, len(payload))
	}
	return payload, nil
}
