package consensus

import (
	"fmt"

	"github.com/geanlabs/lantern/fork"
	"github.com/geanlabs/lantern/merkle"
	"github.com/geanlabs/lantern/types"
)

// Generalized indices of the proven leaves under a beacon state root.
const (
	CurrentSyncCommitteeGIndex uint64 = 54  // state.current_sync_committee
	NextSyncCommitteeGIndex    uint64 = 55  // state.next_sync_committee
	FinalizedRootGIndex        uint64 = 105 // state.finalized_checkpoint.root
)

// SupermajorityParticipants is the minimum number of set participation bits
// for an update to be accepted: floor(2/3) of the committee.
const SupermajorityParticipants = 2 * types.SyncCommitteeSize / 3

// SignatureVerifier checks an aggregate committee signature over a signing
// root. The participating subset of the committee is selected before the
// call.
type SignatureVerifier interface {
	VerifyAggregate(pubkeys []types.Pubkey, signingRoot types.Root, signature types.Signature) error
}

// verifyGenericUpdate runs the full check pipeline against a state snapshot.
// It never mutates state; a nil error means applyGenericUpdate may fold the
// update in.
//
// Check order is fixed: shape and ordering, staleness, quorum, signature,
// committee proof, finality proof. Each stage fails with its taxonomy error.
func verifyGenericUpdate(state *State, upd *types.GenericUpdate, expectedSlot types.Slot,
	schedule *fork.Schedule, genesisValidatorsRoot types.Root, verifier SignatureVerifier) error {

	// Shape: optional fields travel in pairs.
	if (upd.FinalizedHeader != nil) != (upd.FinalityBranch != nil) {
		return fmt.Errorf("%w: finalized header and finality branch must travel together", ErrMalformedInput)
	}
	if (upd.NextSyncCommittee != nil) != (upd.NextSyncCommitteeBranch != nil) {
		return fmt.Errorf("%w: next committee and its branch must travel together", ErrMalformedInput)
	}
	if len(upd.SyncAggregate.Bits) == 0 {
		return fmt.Errorf("%w: missing participation bits", ErrMalformedInput)
	}

	// Ordering: finalized <= attested < signature <= clock.
	if upd.SignatureSlot <= upd.AttestedHeader.Slot {
		return fmt.Errorf("%w: signature slot %d not after attested slot %d",
			ErrMalformedInput, upd.SignatureSlot, upd.AttestedHeader.Slot)
	}
	if upd.HasFinality() && upd.AttestedHeader.Slot < upd.FinalizedHeader.Slot {
		return fmt.Errorf("%w: attested slot %d before finalized slot %d",
			ErrMalformedInput, upd.AttestedHeader.Slot, upd.FinalizedHeader.Slot)
	}
	if upd.SignatureSlot > expectedSlot {
		return fmt.Errorf("%w: signature slot %d is beyond the current slot %d",
			ErrMalformedInput, upd.SignatureSlot, expectedSlot)
	}

	// Staleness: the signing period must be one the store holds a committee
	// for, and the update must be able to change something.
	storePeriod := state.FinalizedPeriod()
	sigPeriod := upd.SignatureSlot.SyncPeriod()
	validPeriod := sigPeriod == storePeriod ||
		(state.NextSyncCommittee != nil && sigPeriod == storePeriod+1)
	if !validPeriod {
		return fmt.Errorf("%w: signature period %d not served by a known committee (store period %d)",
			ErrStaleUpdate, sigPeriod, storePeriod)
	}

	attestedPeriod := upd.AttestedHeader.Slot.SyncPeriod()
	canQueueCommittee := upd.HasNextCommittee() &&
		state.NextSyncCommittee == nil && attestedPeriod == storePeriod
	advancesFinality := upd.HasFinality() && upd.FinalizedHeader.Slot > state.FinalizedHeader.Slot
	advancesOptimistic := upd.AttestedHeader.Slot > state.OptimisticHeader.Slot
	if !advancesFinality && !advancesOptimistic && !canQueueCommittee {
		return fmt.Errorf("%w: update changes nothing at attested slot %d",
			ErrStaleUpdate, upd.AttestedHeader.Slot)
	}

	// Quorum.
	participants := upd.SyncAggregate.ParticipantCount()
	if participants < SupermajorityParticipants {
		return fmt.Errorf("%w: %d of %d participants, need %d",
			ErrInsufficientSignatures, participants, types.SyncCommitteeSize, SupermajorityParticipants)
	}

	// Signature by the committee serving the signature period.
	committee := &state.CurrentSyncCommittee
	if sigPeriod == storePeriod+1 {
		committee = state.NextSyncCommittee
	}
	pubkeys := participatingPubkeys(committee, &upd.SyncAggregate)
	signingRoot := updateSigningRoot(&upd.AttestedHeader, upd.SignatureSlot, schedule, genesisValidatorsRoot)
	if err := verifier.VerifyAggregate(pubkeys, signingRoot, upd.SyncAggregate.Signature); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	// Committee handover proof under the attested state root.
	if upd.HasNextCommittee() {
		leaf := merkle.SyncCommitteeRoot(upd.NextSyncCommittee)
		if !merkle.VerifyBranch(leaf, upd.NextSyncCommitteeBranch[:], NextSyncCommitteeGIndex, upd.AttestedHeader.StateRoot) {
			return fmt.Errorf("%w: next sync committee not in attested state", ErrInvalidMerkleProof)
		}
	}

	// Finality proof under the attested state root.
	if upd.HasFinality() {
		leaf := merkle.HeaderRoot(upd.FinalizedHeader)
		if !merkle.VerifyBranch(leaf, upd.FinalityBranch[:], FinalizedRootGIndex, upd.AttestedHeader.StateRoot) {
			return fmt.Errorf("%w: finalized header not in attested state", ErrInvalidMerkleProof)
		}
	}

	return nil
}

// participatingPubkeys selects the committee members whose bits are set.
func participatingPubkeys(committee *types.SyncCommittee, aggregate *types.SyncAggregate) []types.Pubkey {
	pubkeys := make([]types.Pubkey, 0, aggregate.ParticipantCount())
	for i := uint64(0); i < types.SyncCommitteeSize; i++ {
		if aggregate.Bits.BitAt(i) {
			pubkeys = append(pubkeys, committee.Pubkeys[i])
		}
	}
	return pubkeys
}

// updateSigningRoot computes the root the committee signed: the attested
// header root bound to the sync-committee domain of the fork active one
// slot before the signature slot.
func updateSigningRoot(attested *types.Header, signatureSlot types.Slot,
	schedule *fork.Schedule, genesisValidatorsRoot types.Root) types.Root {

	previous := signatureSlot
	if previous > 0 {
		previous--
	}
	version := schedule.VersionAt(previous.Epoch())
	domain := fork.SigningDomain(fork.DomainTypeSyncCommittee, version, genesisValidatorsRoot)
	return fork.SigningRoot(merkle.HeaderRoot(attested), domain)
}
