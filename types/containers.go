package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/OffchainLabs/go-bitfield"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Header is the beacon block header the sync protocol attests to.
type Header struct {
	Slot          Slot           `json:"slot"`
	ProposerIndex ValidatorIndex `json:"proposer_index"`
	ParentRoot    Root           `json:"parent_root"`
	StateRoot     Root           `json:"state_root"`
	BodyRoot      Root           `json:"body_root"`
}

// UnmarshalJSON accepts both the flat header shape and the {"beacon": {...}}
// envelope the REST API wraps light-client headers in from Capella on. Keys
// alongside "beacon" (execution fields) are ignored; unknown keys inside the
// header itself are rejected.
func (h *Header) UnmarshalJSON(data []byte) error {
	var env struct {
		Beacon json.RawMessage `json:"beacon"`
	}
	if err := json.Unmarshal(data, &env); err == nil && len(env.Beacon) > 0 {
		data = env.Beacon
	}
	type flat Header
	var v flat
	if err := unmarshalStrict(data, &v); err != nil {
		return fmt.Errorf("header: %w", err)
	}
	*h = Header(v)
	return nil
}

// SyncCommittee is the 512-member signing set for one sync-committee period.
type SyncCommittee struct {
	Pubkeys         [SyncCommitteeSize]Pubkey `json:"pubkeys"`
	AggregatePubkey Pubkey                    `json:"aggregate_pubkey"`
}

// UnmarshalJSON rejects pubkey lists of any length other than 512. The
// stdlib would silently zero-fill or truncate a fixed-size array.
func (c *SyncCommittee) UnmarshalJSON(data []byte) error {
	var v struct {
		Pubkeys         []Pubkey `json:"pubkeys"`
		AggregatePubkey Pubkey   `json:"aggregate_pubkey"`
	}
	if err := unmarshalStrict(data, &v); err != nil {
		return fmt.Errorf("sync committee: %w", err)
	}
	if uint64(len(v.Pubkeys)) != SyncCommitteeSize {
		return fmt.Errorf("sync committee: %d pubkeys, want %d", len(v.Pubkeys), SyncCommitteeSize)
	}
	copy(c.Pubkeys[:], v.Pubkeys)
	c.AggregatePubkey = v.AggregatePubkey
	return nil
}

// SyncAggregate carries the committee participation bits and the aggregate
// signature over the attested header's signing root.
type SyncAggregate struct {
	Bits      bitfield.Bitvector512
	Signature Signature
}

// ParticipantCount returns the number of set participation bits.
func (a *SyncAggregate) ParticipantCount() uint64 {
	if len(a.Bits) != bitvector512Bytes {
		return 0
	}
	return a.Bits.Count()
}

const bitvector512Bytes = 64

type syncAggregateJSON struct {
	Bits      hexutil.Bytes `json:"sync_committee_bits"`
	Signature Signature     `json:"sync_committee_signature"`
}

func (a SyncAggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(syncAggregateJSON{
		Bits:      hexutil.Bytes(a.Bits),
		Signature: a.Signature,
	})
}

func (a *SyncAggregate) UnmarshalJSON(data []byte) error {
	var v syncAggregateJSON
	if err := unmarshalStrict(data, &v); err != nil {
		return fmt.Errorf("sync aggregate: %w", err)
	}
	if len(v.Bits) != bitvector512Bytes {
		return fmt.Errorf("sync aggregate: participation bits are %d bytes, want %d", len(v.Bits), bitvector512Bytes)
	}
	a.Bits = bitfield.Bitvector512(v.Bits)
	a.Signature = v.Signature
	return nil
}

// Bootstrap seeds a light client from a trusted checkpoint: the checkpoint
// header, the sync committee active at it, and the committee's inclusion
// proof under the header's state root.
type Bootstrap struct {
	Header                     Header                                `json:"header"`
	CurrentSyncCommittee       SyncCommittee                         `json:"current_sync_committee"`
	CurrentSyncCommitteeBranch [CurrentSyncCommitteeBranchDepth]Root `json:"current_sync_committee_branch"`
}

func (b *Bootstrap) UnmarshalJSON(data []byte) error {
	var v struct {
		Header                     Header        `json:"header"`
		CurrentSyncCommittee       SyncCommittee `json:"current_sync_committee"`
		CurrentSyncCommitteeBranch []Root        `json:"current_sync_committee_branch"`
	}
	if err := unmarshalStrict(data, &v); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if err := copyBranch(b.CurrentSyncCommitteeBranch[:], v.CurrentSyncCommitteeBranch, "current sync committee branch"); err != nil {
		return err
	}
	b.Header = v.Header
	b.CurrentSyncCommittee = v.CurrentSyncCommittee
	return nil
}

func copyBranch(dst, src []Root, name string) error {
	if len(src) != len(dst) {
		return fmt.Errorf("%s: %d nodes, want %d", name, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}

// Update advances finality and hands over the next sync committee.
type Update struct {
	AttestedHeader          Header                             `json:"attested_header"`
	NextSyncCommittee       SyncCommittee                      `json:"next_sync_committee"`
	NextSyncCommitteeBranch [NextSyncCommitteeBranchDepth]Root `json:"next_sync_committee_branch"`
	FinalizedHeader         Header                             `json:"finalized_header"`
	FinalityBranch          [FinalityBranchDepth]Root          `json:"finality_branch"`
	SyncAggregate           SyncAggregate                      `json:"sync_aggregate"`
	SignatureSlot           Slot                               `json:"signature_slot"`
}

func (u *Update) UnmarshalJSON(data []byte) error {
	var v struct {
		AttestedHeader          Header        `json:"attested_header"`
		NextSyncCommittee       SyncCommittee `json:"next_sync_committee"`
		NextSyncCommitteeBranch []Root        `json:"next_sync_committee_branch"`
		FinalizedHeader         Header        `json:"finalized_header"`
		FinalityBranch          []Root        `json:"finality_branch"`
		SyncAggregate           SyncAggregate `json:"sync_aggregate"`
		SignatureSlot           Slot          `json:"signature_slot"`
	}
	if err := unmarshalStrict(data, &v); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if err := copyBranch(u.NextSyncCommitteeBranch[:], v.NextSyncCommitteeBranch, "next sync committee branch"); err != nil {
		return err
	}
	if err := copyBranch(u.FinalityBranch[:], v.FinalityBranch, "finality branch"); err != nil {
		return err
	}
	u.AttestedHeader = v.AttestedHeader
	u.NextSyncCommittee = v.NextSyncCommittee
	u.FinalizedHeader = v.FinalizedHeader
	u.SyncAggregate = v.SyncAggregate
	u.SignatureSlot = v.SignatureSlot
	return nil
}

// FinalityUpdate advances finality within the current committee period.
type FinalityUpdate struct {
	AttestedHeader  Header                    `json:"attested_header"`
	FinalizedHeader Header                    `json:"finalized_header"`
	FinalityBranch  [FinalityBranchDepth]Root `json:"finality_branch"`
	SyncAggregate   SyncAggregate             `json:"sync_aggregate"`
	SignatureSlot   Slot                      `json:"signature_slot"`
}

func (u *FinalityUpdate) UnmarshalJSON(data []byte) error {
	var v struct {
		AttestedHeader  Header        `json:"attested_header"`
		FinalizedHeader Header        `json:"finalized_header"`
		FinalityBranch  []Root        `json:"finality_branch"`
		SyncAggregate   SyncAggregate `json:"sync_aggregate"`
		SignatureSlot   Slot          `json:"signature_slot"`
	}
	if err := unmarshalStrict(data, &v); err != nil {
		return fmt.Errorf("finality update: %w", err)
	}
	if err := copyBranch(u.FinalityBranch[:], v.FinalityBranch, "finality branch"); err != nil {
		return err
	}
	u.AttestedHeader = v.AttestedHeader
	u.FinalizedHeader = v.FinalizedHeader
	u.SyncAggregate = v.SyncAggregate
	u.SignatureSlot = v.SignatureSlot
	return nil
}

// OptimisticUpdate advances only the unfinalized head watermark.
type OptimisticUpdate struct {
	AttestedHeader Header        `json:"attested_header"`
	SyncAggregate  SyncAggregate `json:"sync_aggregate"`
	SignatureSlot  Slot          `json:"signature_slot"`
}

// GenericUpdate is the uniform projection the verification pipeline runs on.
// The optional fields are nil for update kinds that do not carry them.
type GenericUpdate struct {
	AttestedHeader          Header
	SyncAggregate           SyncAggregate
	SignatureSlot           Slot
	NextSyncCommittee       *SyncCommittee
	NextSyncCommitteeBranch *[NextSyncCommitteeBranchDepth]Root
	FinalizedHeader         *Header
	FinalityBranch          *[FinalityBranchDepth]Root
}

func (u *Update) Generic() GenericUpdate {
	committee := u.NextSyncCommittee
	branch := u.NextSyncCommitteeBranch
	finalized := u.FinalizedHeader
	finality := u.FinalityBranch
	return GenericUpdate{
		AttestedHeader:          u.AttestedHeader,
		SyncAggregate:           u.SyncAggregate,
		SignatureSlot:           u.SignatureSlot,
		NextSyncCommittee:       &committee,
		NextSyncCommitteeBranch: &branch,
		FinalizedHeader:         &finalized,
		FinalityBranch:          &finality,
	}
}

func (u *FinalityUpdate) Generic() GenericUpdate {
	finalized := u.FinalizedHeader
	finality := u.FinalityBranch
	return GenericUpdate{
		AttestedHeader:  u.AttestedHeader,
		SyncAggregate:   u.SyncAggregate,
		SignatureSlot:   u.SignatureSlot,
		FinalizedHeader: &finalized,
		FinalityBranch:  &finality,
	}
}

func (u *OptimisticUpdate) Generic() GenericUpdate {
	return GenericUpdate{
		AttestedHeader: u.AttestedHeader,
		SyncAggregate:  u.SyncAggregate,
		SignatureSlot:  u.SignatureSlot,
	}
}

// HasFinality reports whether the update carries a finalized header proof.
func (u *GenericUpdate) HasFinality() bool {
	return u.FinalizedHeader != nil && u.FinalityBranch != nil
}

// HasNextCommittee reports whether the update hands over a next committee.
func (u *GenericUpdate) HasNextCommittee() bool {
	return u.NextSyncCommittee != nil && u.NextSyncCommitteeBranch != nil
}

// UpdatesBatch is the relay egress payload: a backfill range of updates plus
// the freshest finality and optimistic updates.
type UpdatesBatch struct {
	Updates          []Update         `json:"updates"`
	FinalityUpdate   FinalityUpdate   `json:"finality_update"`
	OptimisticUpdate OptimisticUpdate `json:"optimistic_update"`
}

// unmarshalStrict decodes JSON rejecting unknown fields and trailing data.
func unmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after JSON value")
	}
	return nil
}
