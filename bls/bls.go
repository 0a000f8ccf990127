// Package bls verifies aggregated BLS12-381 signatures in the min-pubkey
// scheme the sync protocol uses: public keys on G1 (48 bytes compressed),
// signatures on G2 (96 bytes compressed).
package bls

import (
	"errors"
	"fmt"
	"runtime"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/geanlabs/lantern/types"
)

func init() {
	blst.SetMaxProcs(runtime.GOMAXPROCS(0))
}

// DomainSeparationTag is the ciphersuite for BLS signatures over G2 with
// hash-to-curve, as registered in RFC 9380 and required for proof-of-
// possession aggregation.
const DomainSeparationTag = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_POP_"

var (
	ErrInvalidPubkey    = errors.New("invalid BLS public key")       // not a valid G1 point, or in the wrong subgroup
	ErrInvalidSignature = errors.New("invalid BLS signature")        // not a valid G2 point, or verification failed
	ErrNoPubkeys        = errors.New("no public keys to verify with") // empty aggregation set
)

// Verifier checks aggregate signatures. It is stateless and safe for
// concurrent use.
type Verifier struct{}

func NewVerifier() *Verifier { return &Verifier{} }

// VerifyAggregate checks an aggregate signature by the given public keys
// over a signing root. All keys must have contributed; callers select the
// participating subset first.
func (*Verifier) VerifyAggregate(pubkeys []types.Pubkey, signingRoot types.Root, signature types.Signature) error {
	if len(pubkeys) == 0 {
		return ErrNoPubkeys
	}
	points := make([]*blst.P1Affine, len(pubkeys))
	for i := range pubkeys {
		pk := new(blst.P1Affine).Uncompress(pubkeys[i][:])
		if pk == nil || !pk.KeyValidate() {
			return fmt.Errorf("%w: pubkey %d (%s)", ErrInvalidPubkey, i, pubkeys[i])
		}
		points[i] = pk
	}
	sig := new(blst.P2Affine).Uncompress(signature[:])
	if sig == nil {
		return fmt.Errorf("%w: malformed point", ErrInvalidSignature)
	}
	if !sig.FastAggregateVerify(true, points, blst.Message(signingRoot[:]), []byte(DomainSeparationTag)) {
		return ErrInvalidSignature
	}
	return nil
}

// AggregatePubkeys compresses the sum of the given public keys, as carried
// in a sync committee's aggregate_pubkey field.
func AggregatePubkeys(pubkeys []types.Pubkey) (types.Pubkey, error) {
	if len(pubkeys) == 0 {
		return types.Pubkey{}, ErrNoPubkeys
	}
	points := make([]*blst.P1Affine, len(pubkeys))
	for i := range pubkeys {
		pk := new(blst.P1Affine).Uncompress(pubkeys[i][:])
		if pk == nil || !pk.KeyValidate() {
			return types.Pubkey{}, fmt.Errorf("%w: pubkey %d", ErrInvalidPubkey, i)
		}
		points[i] = pk
	}
	agg := new(blst.P1Aggregate)
	if !agg.Aggregate(points, false) {
		return types.Pubkey{}, fmt.Errorf("%w: aggregation failed", ErrInvalidPubkey)
	}
	var out types.Pubkey
	copy(out[:], agg.ToAffine().Compress())
	return out, nil
}
