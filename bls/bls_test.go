package bls

import (
	"bytes"
	"errors"
	"testing"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/geanlabs/lantern/types"
)

// testSigners derives n deterministic signers from patterned key material.
func testSigners(t *testing.T, n int) []*Signer {
	t.Helper()
	signers := make([]*Signer, n)
	for i := range signers {
		ikm := make([]byte, 32)
		for j := range ikm {
			ikm[j] = byte(i*7 + j + 1)
		}
		s, err := NewSigner(ikm)
		if err != nil {
			t.Fatalf("NewSigner(%d) = %v", i, err)
		}
		signers[i] = s
	}
	return signers
}

func pubkeysOf(signers []*Signer) []types.Pubkey {
	keys := make([]types.Pubkey, len(signers))
	for i, s := range signers {
		keys[i] = s.Pubkey()
	}
	return keys
}

// signAll has every signer sign the root and aggregates the result.
func signAll(t *testing.T, signers []*Signer, root types.Root) types.Signature {
	t.Helper()
	sigs := make([]types.Signature, len(signers))
	for i, s := range signers {
		sigs[i] = s.Sign(root)
	}
	agg, err := AggregateSignatures(sigs)
	if err != nil {
		t.Fatalf("AggregateSignatures() = %v", err)
	}
	return agg
}

func TestVerifyAggregate(t *testing.T) {
	signers := testSigners(t, 4)
	root := types.Root{0x5e, 0xed}
	v := NewVerifier()

	if err := v.VerifyAggregate(pubkeysOf(signers), root, signAll(t, signers, root)); err != nil {
		t.Errorf("VerifyAggregate(4 keys) = %v, want nil", err)
	}
	if err := v.VerifyAggregate(pubkeysOf(signers[:1]), root, signAll(t, signers[:1], root)); err != nil {
		t.Errorf("VerifyAggregate(1 key) = %v, want nil", err)
	}
}

func TestVerifyAggregateRejectsWrongSet(t *testing.T) {
	signers := testSigners(t, 5)
	root := types.Root{0xab}
	v := NewVerifier()
	agg := signAll(t, signers[:4], root)

	tests := []struct {
		name string
		keys []types.Pubkey
	}{
		{"missing contributor", pubkeysOf(signers[:3])},
		{"extra key", pubkeysOf(signers)},
		{"swapped member", append(pubkeysOf(signers[:3]), signers[4].Pubkey())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyAggregate(tt.keys, root, agg)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("VerifyAggregate() = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerifyAggregateRejectsWrongRoot(t *testing.T) {
	signers := testSigners(t, 3)
	agg := signAll(t, signers, types.Root{0x01})
	err := NewVerifier().VerifyAggregate(pubkeysOf(signers), types.Root{0x02}, agg)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("VerifyAggregate(wrong root) = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyAggregateRejectsBadSignature(t *testing.T) {
	signers := testSigners(t, 3)
	root := types.Root{0xcc}
	good := signAll(t, signers, root)
	v := NewVerifier()

	tampered := good
	tampered[95] ^= 0x01

	tests := []struct {
		name string
		sig  types.Signature
	}{
		{"tampered byte", tampered},
		{"zero signature", types.Signature{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyAggregate(pubkeysOf(signers), root, tt.sig)
			if !errors.Is(err, ErrInvalidSignature) {
				t.Errorf("VerifyAggregate() = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestVerifyAggregateRejectsBadPubkeys(t *testing.T) {
	signers := testSigners(t, 2)
	root := types.Root{0x11}
	agg := signAll(t, signers, root)
	v := NewVerifier()

	if err := v.VerifyAggregate(nil, root, agg); !errors.Is(err, ErrNoPubkeys) {
		t.Errorf("VerifyAggregate(no keys) = %v, want ErrNoPubkeys", err)
	}

	// Point at infinity is a well-formed encoding that KeyValidate rejects.
	var infinity types.Pubkey
	infinity[0] = 0xc0

	tests := []struct {
		name string
		key  types.Pubkey
	}{
		{"zero bytes", types.Pubkey{}},
		{"infinity", infinity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := []types.Pubkey{signers[0].Pubkey(), tt.key}
			err := v.VerifyAggregate(keys, root, agg)
			if !errors.Is(err, ErrInvalidPubkey) {
				t.Errorf("VerifyAggregate() = %v, want ErrInvalidPubkey", err)
			}
		})
	}
}

func TestAggregatePubkeys(t *testing.T) {
	signers := testSigners(t, 3)
	keys := pubkeysOf(signers)

	agg, err := AggregatePubkeys(keys)
	if err != nil {
		t.Fatalf("AggregatePubkeys() = %v", err)
	}

	// The compressed sum must match an independently computed aggregate.
	points := make([]*blst.P1Affine, len(keys))
	for i := range keys {
		points[i] = new(blst.P1Affine).Uncompress(keys[i][:])
	}
	ref := new(blst.P1Aggregate)
	if !ref.Aggregate(points, false) {
		t.Fatal("reference aggregation failed")
	}
	if !bytes.Equal(agg[:], ref.ToAffine().Compress()) {
		t.Errorf("AggregatePubkeys() = %s, want reference aggregate", agg)
	}

	// An aggregate signature by the same set verifies against the single
	// aggregate key under plain verification.
	root := types.Root{0x42}
	sig := signAll(t, signers, root)
	sigPoint := new(blst.P2Affine).Uncompress(sig[:])
	if sigPoint == nil {
		t.Fatal("aggregate signature failed to decompress")
	}
	aggPoint := new(blst.P1Affine).Uncompress(agg[:])
	if !sigPoint.Verify(true, aggPoint, true, blst.Message(root[:]), []byte(DomainSeparationTag)) {
		t.Error("aggregate signature does not verify against aggregate pubkey")
	}

	single, err := AggregatePubkeys(keys[:1])
	if err != nil {
		t.Fatalf("AggregatePubkeys(single) = %v", err)
	}
	if single != keys[0] {
		t.Errorf("AggregatePubkeys(single) = %s, want %s", single, keys[0])
	}
}

func TestAggregatePubkeysRejections(t *testing.T) {
	if _, err := AggregatePubkeys(nil); !errors.Is(err, ErrNoPubkeys) {
		t.Errorf("AggregatePubkeys(nil) = %v, want ErrNoPubkeys", err)
	}
	signers := testSigners(t, 1)
	_, err := AggregatePubkeys([]types.Pubkey{signers[0].Pubkey(), {}})
	if !errors.Is(err, ErrInvalidPubkey) {
		t.Errorf("AggregatePubkeys(zero member) = %v, want ErrInvalidPubkey", err)
	}
}

func TestNewSigner(t *testing.T) {
	if _, err := NewSigner(make([]byte, 31)); err == nil {
		t.Error("NewSigner(31 bytes) = nil, want error")
	}

	ikm := bytes.Repeat([]byte{0x3c}, 32)
	a, err := NewSigner(ikm)
	if err != nil {
		t.Fatalf("NewSigner() = %v", err)
	}
	b, err := NewSigner(ikm)
	if err != nil {
		t.Fatalf("NewSigner() = %v", err)
	}
	if a.Pubkey() != b.Pubkey() {
		t.Error("same key material produced different pubkeys")
	}

	other, err := NewSigner(bytes.Repeat([]byte{0x3d}, 32))
	if err != nil {
		t.Fatalf("NewSigner() = %v", err)
	}
	if a.Pubkey() == other.Pubkey() {
		t.Error("distinct key material produced equal pubkeys")
	}
}

func TestAggregateSignatures(t *testing.T) {
	signers := testSigners(t, 2)
	root := types.Root{0x77}

	single, err := AggregateSignatures([]types.Signature{signers[0].Sign(root)})
	if err != nil {
		t.Fatalf("AggregateSignatures(single) = %v", err)
	}
	if single != signers[0].Sign(root) {
		t.Error("aggregate of one signature differs from the signature")
	}

	if _, err := AggregateSignatures(nil); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("AggregateSignatures(nil) = %v, want ErrInvalidSignature", err)
	}
	if _, err := AggregateSignatures([]types.Signature{{}}); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("AggregateSignatures(zero) = %v, want ErrInvalidSignature", err)
	}
}
