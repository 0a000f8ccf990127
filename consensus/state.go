package consensus

import (
	"github.com/geanlabs/lantern/types"
)

// State is the verified view of the chain: the finalized and optimistic
// header watermarks and the sync committees they were verified under. It is
// a value; transitions produce a new State and never mutate the old one.
type State struct {
	FinalizedHeader      types.Header
	OptimisticHeader     types.Header
	CurrentSyncCommittee types.SyncCommittee
	NextSyncCommittee    *types.SyncCommittee // pending handover, nil until proven
}

// Copy returns a State sharing nothing with s.
func (s *State) Copy() State {
	c := *s
	if s.NextSyncCommittee != nil {
		committee := *s.NextSyncCommittee
		c.NextSyncCommittee = &committee
	}
	return c
}

// FinalizedPeriod is the sync-committee period of the finalized watermark,
// which the current committee serves.
func (s *State) FinalizedPeriod() types.SyncCommitteePeriod {
	return s.FinalizedHeader.Slot.SyncPeriod()
}

// Outcome reports what a successfully applied update changed.
type Outcome struct {
	FinalizedUpdated  bool
	OptimisticUpdated bool
	CommitteeQueued   bool
	CommitteeRotated  bool
}

func (o Outcome) Changed() bool {
	return o.FinalizedUpdated || o.OptimisticUpdated || o.CommitteeQueued || o.CommitteeRotated
}

// applyGenericUpdate folds a verified update into the state. Pure: callers
// get a fresh State and an Outcome naming every change.
func applyGenericUpdate(state *State, upd *types.GenericUpdate) (State, Outcome) {
	next := state.Copy()
	var out Outcome

	if upd.AttestedHeader.Slot > state.OptimisticHeader.Slot {
		next.OptimisticHeader = upd.AttestedHeader
		out.OptimisticUpdated = true
	}

	storePeriod := state.FinalizedPeriod()
	attestedPeriod := upd.AttestedHeader.Slot.SyncPeriod()

	if upd.HasNextCommittee() && state.NextSyncCommittee == nil && attestedPeriod == storePeriod {
		committee := *upd.NextSyncCommittee
		next.NextSyncCommittee = &committee
		out.CommitteeQueued = true
	}

	if upd.HasFinality() && upd.FinalizedHeader.Slot > state.FinalizedHeader.Slot {
		finalizedPeriod := upd.FinalizedHeader.Slot.SyncPeriod()

		// The pending committee becomes current the moment finality enters
		// its period. This is the only place rotation happens.
		if next.NextSyncCommittee != nil && finalizedPeriod == storePeriod+1 {
			next.CurrentSyncCommittee = *next.NextSyncCommittee
			next.NextSyncCommittee = nil
			if upd.HasNextCommittee() && attestedPeriod == finalizedPeriod {
				committee := *upd.NextSyncCommittee
				next.NextSyncCommittee = &committee
			}
			out.CommitteeRotated = true
		}

		next.FinalizedHeader = *upd.FinalizedHeader
		out.FinalizedUpdated = true
		if next.FinalizedHeader.Slot > next.OptimisticHeader.Slot {
			next.OptimisticHeader = next.FinalizedHeader
			out.OptimisticUpdated = true
		}
	}

	return next, out
}
