package relay

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"strings"
	"testing"

	"github.com/OffchainLabs/go-bitfield"
	"github.com/golang/snappy"

	"github.com/geanlabs/lantern/types"
)

func testHeader(slot types.Slot) types.Header {
	return types.Header{
		Slot:          slot,
		ProposerIndex: 3,
		ParentRoot:    types.Root{0x0a, byte(slot)},
		StateRoot:     types.Root{0x0b, byte(slot)},
		BodyRoot:      types.Root{0x0c, byte(slot)},
	}
}

func testAggregate() types.SyncAggregate {
	bits := bitfield.NewBitvector512()
	for i := uint64(0); i < 350; i++ {
		bits.SetBitAt(i, true)
	}
	return types.SyncAggregate{Bits: bits, Signature: types.Signature{0x9f}}
}

func testBatch(updates int) *types.UpdatesBatch {
	batch := &types.UpdatesBatch{
		FinalityUpdate: types.FinalityUpdate{
			AttestedHeader:  testHeader(200),
			FinalizedHeader: testHeader(160),
			SyncAggregate:   testAggregate(),
			SignatureSlot:   201,
		},
		OptimisticUpdate: types.OptimisticUpdate{
			AttestedHeader: testHeader(210),
			SyncAggregate:  testAggregate(),
			SignatureSlot:  211,
		},
	}
	for i := 0; i < updates; i++ {
		slot := types.Slot(8192 * (i + 1))
		batch.Updates = append(batch.Updates, types.Update{
			AttestedHeader:  testHeader(slot + 100),
			FinalizedHeader: testHeader(slot + 60),
			SyncAggregate:   testAggregate(),
			SignatureSlot:   slot + 101,
		})
	}
	return batch
}

func TestBatchRoundTrip(t *testing.T) {
	for _, updates := range []int{0, 2} {
		batch := testBatch(updates)
		frame, err := EncodeBatch(batch)
		if err != nil {
			t.Fatalf("EncodeBatch(%d updates) = %v", updates, err)
		}
		decoded, err := DecodeBatch(frame)
		if err != nil {
			t.Fatalf("DecodeBatch(%d updates) = %v", updates, err)
		}
		if len(decoded.Updates) != updates {
			t.Fatalf("len(Updates) = %d, want %d", len(decoded.Updates), updates)
		}
		for i := range batch.Updates {
			if !reflect.DeepEqual(decoded.Updates[i], batch.Updates[i]) {
				t.Errorf("Updates[%d] differs after round trip", i)
			}
		}
		if !reflect.DeepEqual(decoded.FinalityUpdate, batch.FinalityUpdate) {
			t.Error("FinalityUpdate differs after round trip")
		}
		if !reflect.DeepEqual(decoded.OptimisticUpdate, batch.OptimisticUpdate) {
			t.Error("OptimisticUpdate differs after round trip")
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("short payload"),
		bytes.Repeat([]byte{0xab, 0x00, 0xcd}, 40000),
	}
	for _, payload := range payloads {
		frame, err := EncodeFrame(payload)
		if err != nil {
			t.Fatalf("EncodeFrame(%d bytes) = %v", len(payload), err)
		}
		decoded, err := DecodeFrame(frame)
		if err != nil {
			t.Fatalf("DecodeFrame(%d bytes) = %v", len(payload), err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Errorf("round trip of %d bytes changed the payload", len(payload))
		}
	}

	// Short payloads get a single-byte length prefix.
	frame, err := EncodeFrame([]byte("hello"))
	if err != nil {
		t.Fatalf("EncodeFrame() = %v", err)
	}
	if frame[0] != 5 {
		t.Errorf("frame[0] = %d, want 5", frame[0])
	}
}

func TestEncodeFrameLimit(t *testing.T) {
	if _, err := EncodeFrame(make([]byte, MaxFrameSize)); err != nil {
		t.Errorf("EncodeFrame(limit) = %v, want nil", err)
	}
	_, err := EncodeFrame(make([]byte, MaxFrameSize+1))
	if err == nil || !strings.Contains(err.Error(), "limit") {
		t.Errorf("EncodeFrame(limit+1) = %v, want limit error", err)
	}
}

// frameWith builds a frame claiming the given uncompressed length.
func frameWith(declared uint64, compressed []byte) []byte {
	prefix := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(prefix, declared)
	return append(prefix[:n], compressed...)
}

func TestDecodeFrameRejections(t *testing.T) {
	tests := []struct {
		name    string
		frame   []byte
		wantErr string
	}{
		{"empty", nil, "invalid length prefix"},
		{"oversized declaration", frameWith(MaxFrameSize+1, snappy.Encode(nil, []byte("x"))), "exceeds limit"},
		{"corrupt compression", frameWith(5, []byte{0xff, 0xff, 0xff}), "snappy decode"},
		{"length mismatch", frameWith(7, snappy.Encode(nil, []byte("hello"))), "declared length 7, decompressed 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.frame)
			if err == nil {
				t.Fatal("DecodeFrame() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("DecodeFrame() = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeBatchRejectsNonBatchPayload(t *testing.T) {
	frame, err := EncodeFrame([]byte("not a batch"))
	if err != nil {
		t.Fatalf("EncodeFrame() = %v", err)
	}
	if _, err := DecodeBatch(frame); err == nil {
		t.Error("DecodeBatch(junk payload) = nil, want error")
	}
	if _, err := DecodeBatch([]byte{0xff}); err == nil {
		t.Error("DecodeBatch(junk frame) = nil, want error")
	}
}
