package bls

import (
	"fmt"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/geanlabs/lantern/types"
)

// Signer produces signatures that VerifyAggregate accepts. Committee
// verification never needs one; it exists for fixture generation and
// interop tooling.
type Signer struct {
	secret *blst.SecretKey
	pubkey types.Pubkey
}

// NewSigner derives a signer from at least 32 bytes of key material.
func NewSigner(ikm []byte) (*Signer, error) {
	if len(ikm) < blst.BLST_SCALAR_BYTES {
		return nil, fmt.Errorf("key material must be at least %d bytes, got %d", blst.BLST_SCALAR_BYTES, len(ikm))
	}
	secret := blst.KeyGen(ikm)
	if secret == nil {
		return nil, fmt.Errorf("key generation rejected input material")
	}
	var pub types.Pubkey
	copy(pub[:], new(blst.P1Affine).From(secret).Compress())
	return &Signer{secret: secret, pubkey: pub}, nil
}

func (s *Signer) Pubkey() types.Pubkey { return s.pubkey }

// Sign signs a signing root under the aggregation ciphersuite.
func (s *Signer) Sign(signingRoot types.Root) types.Signature {
	sig := new(blst.P2Affine).Sign(s.secret, signingRoot[:], []byte(DomainSeparationTag))
	var out types.Signature
	copy(out[:], sig.Compress())
	return out
}

// AggregateSignatures compresses the sum of the given signatures.
func AggregateSignatures(sigs []types.Signature) (types.Signature, error) {
	if len(sigs) == 0 {
		return types.Signature{}, fmt.Errorf("%w: no signatures", ErrInvalidSignature)
	}
	points := make([]*blst.P2Affine, len(sigs))
	for i := range sigs {
		sig := new(blst.P2Affine).Uncompress(sigs[i][:])
		if sig == nil {
			return types.Signature{}, fmt.Errorf("%w: signature %d", ErrInvalidSignature, i)
		}
		points[i] = sig
	}
	agg := new(blst.P2Aggregate)
	if !agg.Aggregate(points, false) {
		return types.Signature{}, fmt.Errorf("%w: aggregation failed", ErrInvalidSignature)
	}
	var out types.Signature
	copy(out[:], agg.ToAffine().Compress())
	return out, nil
}
