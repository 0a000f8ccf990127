// Package types defines the primitive and composite types of the beacon-chain
// light-client sync protocol: headers, sync committees, the update family, and
// the fork-variant block records, together with their verbose (JSON) ingress
// and compact (SSZ) egress encodings.
package types

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Primitive types.
type Slot uint64
type Epoch uint64
type SyncCommitteePeriod uint64
type ValidatorIndex uint64
type Root [32]byte
type Version [4]byte
type Domain [32]byte
type Address [20]byte
type Bloom [256]byte

// Pubkey is a compressed BLS12-381 G1 public key.
type Pubkey [48]byte

// Signature is a compressed BLS12-381 G2 signature.
type Signature [96]byte

// KZGCommitment is a compressed commitment to a blob polynomial.
type KZGCommitment [48]byte

// Transaction is an opaque execution-layer transaction payload.
type Transaction []byte

// U256 is a 256-bit unsigned integer in its 32-byte little-endian
// chunk representation.
type U256 [32]byte

// Uint64 is a uint64 that accepts both quoted decimal strings and bare
// numbers on the wire. The beacon REST API quotes every integer.
type Uint64 uint64

// Protocol constants.
const (
	SlotsPerEpoch        uint64 = 32  // SLOTS_PER_EPOCH
	EpochsPerSyncPeriod  uint64 = 256 // EPOCHS_PER_SYNC_COMMITTEE_PERIOD
	SyncCommitteeSize    uint64 = 512 // SYNC_COMMITTEE_SIZE
	SecondsPerSlot       uint64 = 12  // SECONDS_PER_SLOT
	SlotsPerSyncPeriod          = SlotsPerEpoch * EpochsPerSyncPeriod
	MaxUpdatesPerRequest uint64 = 128 // MAX_REQUEST_LIGHT_CLIENT_UPDATES
)

// Branch depths of the light-client proofs under a beacon state root.
const (
	CurrentSyncCommitteeBranchDepth = 5
	NextSyncCommitteeBranchDepth    = 5
	FinalityBranchDepth             = 6
)

func (s Slot) Epoch() Epoch { return Epoch(uint64(s) / SlotsPerEpoch) }

func (s Slot) SyncPeriod() SyncCommitteePeriod {
	return SyncCommitteePeriod(uint64(s) / SlotsPerSyncPeriod)
}

func (e Epoch) SyncPeriod() SyncCommitteePeriod {
	return SyncCommitteePeriod(uint64(e) / EpochsPerSyncPeriod)
}

// FirstSlot returns the first slot of the epoch.
func (e Epoch) FirstSlot() Slot { return Slot(uint64(e) * SlotsPerEpoch) }

// FirstSlot returns the first slot of the sync-committee period.
func (p SyncCommitteePeriod) FirstSlot() Slot { return Slot(uint64(p) * SlotsPerSyncPeriod) }

func (r Root) IsZero() bool { return r == Root{} }

// Short returns a short hex representation of the root (first 4 bytes).
func (r Root) Short() string {
	return fmt.Sprintf("%x", r[:4])
}

func (r Root) String() string { return hexutil.Encode(r[:]) }

func (v Version) String() string { return hexutil.Encode(v[:]) }

func (p Pubkey) String() string { return hexutil.Encode(p[:]) }

// JSON round trips. Every fixed-length byte type is a 0x-prefixed hex string
// of exactly its length; anything else is rejected.

var (
	rootT    = reflect.TypeOf(Root{})
	versionT = reflect.TypeOf(Version{})
	domainT  = reflect.TypeOf(Domain{})
	addressT = reflect.TypeOf(Address{})
	bloomT   = reflect.TypeOf(Bloom{})
	pubkeyT  = reflect.TypeOf(Pubkey{})
	sigT     = reflect.TypeOf(Signature{})
	kzgT     = reflect.TypeOf(KZGCommitment{})
)

func (r Root) MarshalJSON() ([]byte, error)  { return hexJSON(r[:]), nil }
func (r *Root) UnmarshalJSON(in []byte) error {
	return hexutil.UnmarshalFixedJSON(rootT, in, r[:])
}

func (r Root) MarshalText() ([]byte, error) { return []byte(hexutil.Encode(r[:])), nil }
func (r *Root) UnmarshalText(in []byte) error {
	return hexutil.UnmarshalFixedText("Root", in, r[:])
}

// YAML hooks serve network config files. The legacy unmarshal-func form
// keeps the yaml package out of this package's imports.
func (r Root) MarshalYAML() (interface{}, error) { return r.String(), nil }
func (r *Root) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return r.UnmarshalText([]byte(s))
}

func (v Version) MarshalJSON() ([]byte, error) { return hexJSON(v[:]), nil }
func (v *Version) UnmarshalJSON(in []byte) error {
	return hexutil.UnmarshalFixedJSON(versionT, in, v[:])
}

func (v Version) MarshalText() ([]byte, error) { return []byte(hexutil.Encode(v[:])), nil }
func (v *Version) UnmarshalText(in []byte) error {
	return hexutil.UnmarshalFixedText("Version", in, v[:])
}

func (v Version) MarshalYAML() (interface{}, error) { return v.String(), nil }
func (v *Version) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return v.UnmarshalText([]byte(s))
}

func (d Domain) MarshalJSON() ([]byte, error) { return hexJSON(d[:]), nil }
func (d *Domain) UnmarshalJSON(in []byte) error {
	return hexutil.UnmarshalFixedJSON(domainT, in, d[:])
}

func (a Address) MarshalJSON() ([]byte, error) { return hexJSON(a[:]), nil }
func (a *Address) UnmarshalJSON(in []byte) error {
	return hexutil.UnmarshalFixedJSON(addressT, in, a[:])
}

func (b Bloom) MarshalJSON() ([]byte, error) { return hexJSON(b[:]), nil }
func (b *Bloom) UnmarshalJSON(in []byte) error {
	return hexutil.UnmarshalFixedJSON(bloomT, in, b[:])
}

func (p Pubkey) MarshalJSON() ([]byte, error) { return hexJSON(p[:]), nil }
func (p *Pubkey) UnmarshalJSON(in []byte) error {
	return hexutil.UnmarshalFixedJSON(pubkeyT, in, p[:])
}

func (s Signature) MarshalJSON() ([]byte, error) { return hexJSON(s[:]), nil }
func (s *Signature) UnmarshalJSON(in []byte) error {
	return hexutil.UnmarshalFixedJSON(sigT, in, s[:])
}

func (k KZGCommitment) MarshalJSON() ([]byte, error) { return hexJSON(k[:]), nil }
func (k *KZGCommitment) UnmarshalJSON(in []byte) error {
	return hexutil.UnmarshalFixedJSON(kzgT, in, k[:])
}

func (t Transaction) MarshalJSON() ([]byte, error) { return hexJSON(t), nil }
func (t *Transaction) UnmarshalJSON(in []byte) error {
	var b hexutil.Bytes
	if err := b.UnmarshalJSON(in); err != nil {
		return err
	}
	*t = Transaction(b)
	return nil
}

func hexJSON(b []byte) []byte {
	return []byte(strconv.Quote(hexutil.Encode(b)))
}

func (u Uint64) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(u), 10))), nil
}

func (u *Uint64) UnmarshalJSON(in []byte) error {
	v, err := parseUint64JSON(in)
	if err != nil {
		return err
	}
	*u = Uint64(v)
	return nil
}

func (s Slot) MarshalJSON() ([]byte, error) { return Uint64(s).MarshalJSON() }
func (s *Slot) UnmarshalJSON(in []byte) error {
	v, err := parseUint64JSON(in)
	if err != nil {
		return err
	}
	*s = Slot(v)
	return nil
}

func (e Epoch) MarshalJSON() ([]byte, error) { return Uint64(e).MarshalJSON() }
func (e *Epoch) UnmarshalJSON(in []byte) error {
	v, err := parseUint64JSON(in)
	if err != nil {
		return err
	}
	*e = Epoch(v)
	return nil
}

func (i ValidatorIndex) MarshalJSON() ([]byte, error) { return Uint64(i).MarshalJSON() }
func (i *ValidatorIndex) UnmarshalJSON(in []byte) error {
	v, err := parseUint64JSON(in)
	if err != nil {
		return err
	}
	*i = ValidatorIndex(v)
	return nil
}

func parseUint64JSON(in []byte) (uint64, error) {
	s := string(in)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid uint64 %q: %w", string(in), err)
	}
	return v, nil
}

// U256 is a decimal string on the wire, matching the execution payload's
// base_fee_per_gas representation.
func (u U256) MarshalJSON() ([]byte, error) {
	var be [32]byte
	for i := range be {
		be[i] = u[31-i]
	}
	z := new(uint256.Int).SetBytes32(be[:])
	return []byte(strconv.Quote(z.Dec())), nil
}

func (u *U256) UnmarshalJSON(in []byte) error {
	s, err := strconv.Unquote(string(in))
	if err != nil {
		return fmt.Errorf("invalid uint256 %q: expected a quoted decimal string", string(in))
	}
	z, err := uint256.FromDecimal(s)
	if err != nil {
		return fmt.Errorf("invalid uint256 %q: %w", s, err)
	}
	be := z.Bytes32()
	for i := range u {
		u[i] = be[31-i]
	}
	return nil
}
