// Package fork resolves slots and epochs to fork schedule entries: wire
// versions, body variants, fork digests, and signing domains.
package fork

import (
	"errors"
	"fmt"
	"sort"

	"github.com/geanlabs/lantern/merkle"
	"github.com/geanlabs/lantern/types"
)

// DomainTypeSyncCommittee separates sync-committee signatures from every
// other signed object in the protocol.
var DomainTypeSyncCommittee = [4]byte{0x07, 0x00, 0x00, 0x00}

var (
	ErrEmptySchedule    = errors.New("fork schedule has no entries")
	ErrScheduleOrdering = errors.New("fork schedule entries must start at epoch 0 and ascend")
)

// Entry is one activation in the fork schedule.
type Entry struct {
	Name    string        `yaml:"name"`
	Version types.Version `yaml:"version"`
	Epoch   types.Epoch   `yaml:"epoch"`
}

// Schedule is the ordered fork activation history of a network.
type Schedule struct {
	entries []Entry
}

// NewSchedule validates and orders the entries. The first entry must
// activate at epoch 0 so every slot resolves to some fork.
func NewSchedule(entries []Entry) (*Schedule, error) {
	if len(entries) == 0 {
		return nil, ErrEmptySchedule
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Epoch < sorted[j].Epoch })
	if sorted[0].Epoch != 0 {
		return nil, fmt.Errorf("%w: first entry activates at epoch %d", ErrScheduleOrdering, sorted[0].Epoch)
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Epoch == sorted[i-1].Epoch {
			return nil, fmt.Errorf("%w: entries %q and %q share epoch %d",
				ErrScheduleOrdering, sorted[i-1].Name, sorted[i].Name, sorted[i].Epoch)
		}
	}
	return &Schedule{entries: sorted}, nil
}

// EntryAt returns the fork active at the given epoch.
func (s *Schedule) EntryAt(epoch types.Epoch) Entry {
	active := s.entries[0]
	for _, e := range s.entries[1:] {
		if e.Epoch > epoch {
			break
		}
		active = e
	}
	return active
}

// VersionAt returns the wire version of the fork active at the given epoch.
func (s *Schedule) VersionAt(epoch types.Epoch) types.Version {
	return s.EntryAt(epoch).Version
}

// Resolve maps a slot to the body variant of its active fork. Slots under
// forks with no supported body shape fail.
func (s *Schedule) Resolve(slot types.Slot) (types.ForkVariant, error) {
	entry := s.EntryAt(slot.Epoch())
	v, err := types.ParseForkVariant(entry.Name)
	if err != nil {
		return types.ForkUnknown, fmt.Errorf("slot %d is in fork %q: %w", slot, entry.Name, err)
	}
	return v, nil
}

// DecodeBlock decodes a verbose block in the shape of the fork its slot
// falls under.
func (s *Schedule) DecodeBlock(data []byte, slot types.Slot) (*types.BeaconBlock, error) {
	variant, err := s.Resolve(slot)
	if err != nil {
		return nil, err
	}
	return types.DecodeBlockJSON(data, variant)
}

// DigestAt returns the 4-byte fork digest used in gossip topic names.
func (s *Schedule) DigestAt(epoch types.Epoch, genesisValidatorsRoot types.Root) [4]byte {
	root := ForkDataRoot(s.VersionAt(epoch), genesisValidatorsRoot)
	var digest [4]byte
	copy(digest[:], root[:4])
	return digest
}

// ForkDataRoot digests a (version, genesis validators root) pair.
func ForkDataRoot(version types.Version, genesisValidatorsRoot types.Root) types.Root {
	var versionChunk types.Root
	copy(versionChunk[:4], version[:])
	return merkle.HashNodes(versionChunk, genesisValidatorsRoot)
}

// SigningDomain builds the 32-byte domain mixed into every signing root:
// the domain type followed by the first 28 bytes of the fork data root.
func SigningDomain(domainType [4]byte, version types.Version, genesisValidatorsRoot types.Root) types.Domain {
	root := ForkDataRoot(version, genesisValidatorsRoot)
	var domain types.Domain
	copy(domain[:4], domainType[:])
	copy(domain[4:], root[:28])
	return domain
}

// SigningRoot binds an object root to a signing domain.
func SigningRoot(objectRoot types.Root, domain types.Domain) types.Root {
	return merkle.HashNodes(objectRoot, types.Root(domain))
}
