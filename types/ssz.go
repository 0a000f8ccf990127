package types

import (
	"github.com/OffchainLabs/go-bitfield"
	ssz "github.com/ferranbt/fastssz"
)

// Compact wire sizes. Every container in the update family is fixed-size;
// UpdatesBatch is the only variable-size container. These layouts are frozen:
// changing one is a new protocol version, not a patch.
const (
	HeaderSSZSize           = 112
	SyncCommitteeSSZSize    = 24624
	SyncAggregateSSZSize    = 160
	BootstrapSSZSize        = HeaderSSZSize + SyncCommitteeSSZSize + CurrentSyncCommitteeBranchDepth*32
	UpdateSSZSize           = 2*HeaderSSZSize + SyncCommitteeSSZSize + (NextSyncCommitteeBranchDepth+FinalityBranchDepth)*32 + SyncAggregateSSZSize + 8
	FinalityUpdateSSZSize   = 2*HeaderSSZSize + FinalityBranchDepth*32 + SyncAggregateSSZSize + 8
	OptimisticUpdateSSZSize = HeaderSSZSize + SyncAggregateSSZSize + 8

	batchFixedSSZSize = 4 + FinalityUpdateSSZSize + OptimisticUpdateSSZSize
)

func (h *Header) SizeSSZ() int { return HeaderSSZSize }

func (h *Header) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(h) }

func (h *Header) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst := buf
	dst = ssz.MarshalUint64(dst, uint64(h.Slot))
	dst = ssz.MarshalUint64(dst, uint64(h.ProposerIndex))
	dst = append(dst, h.ParentRoot[:]...)
	dst = append(dst, h.StateRoot[:]...)
	dst = append(dst, h.BodyRoot[:]...)
	return dst, nil
}

func (h *Header) UnmarshalSSZ(buf []byte) error {
	if len(buf) != HeaderSSZSize {
		return ssz.ErrSize
	}
	h.Slot = Slot(ssz.UnmarshallUint64(buf[0:8]))
	h.ProposerIndex = ValidatorIndex(ssz.UnmarshallUint64(buf[8:16]))
	copy(h.ParentRoot[:], buf[16:48])
	copy(h.StateRoot[:], buf[48:80])
	copy(h.BodyRoot[:], buf[80:112])
	return nil
}

func (c *SyncCommittee) SizeSSZ() int { return SyncCommitteeSSZSize }

func (c *SyncCommittee) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(c) }

func (c *SyncCommittee) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst := buf
	for i := range c.Pubkeys {
		dst = append(dst, c.Pubkeys[i][:]...)
	}
	dst = append(dst, c.AggregatePubkey[:]...)
	return dst, nil
}

func (c *SyncCommittee) UnmarshalSSZ(buf []byte) error {
	if len(buf) != SyncCommitteeSSZSize {
		return ssz.ErrSize
	}
	for i := range c.Pubkeys {
		copy(c.Pubkeys[i][:], buf[i*48:(i+1)*48])
	}
	copy(c.AggregatePubkey[:], buf[SyncCommitteeSize*48:])
	return nil
}

func (a *SyncAggregate) SizeSSZ() int { return SyncAggregateSSZSize }

func (a *SyncAggregate) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(a) }

func (a *SyncAggregate) MarshalSSZTo(buf []byte) ([]byte, error) {
	if len(a.Bits) != bitvector512Bytes {
		return nil, ssz.ErrBytesLength
	}
	dst := buf
	dst = append(dst, a.Bits...)
	dst = append(dst, a.Signature[:]...)
	return dst, nil
}

func (a *SyncAggregate) UnmarshalSSZ(buf []byte) error {
	if len(buf) != SyncAggregateSSZSize {
		return ssz.ErrSize
	}
	bits := make([]byte, bitvector512Bytes)
	copy(bits, buf[0:bitvector512Bytes])
	a.Bits = bitfield.Bitvector512(bits)
	copy(a.Signature[:], buf[bitvector512Bytes:])
	return nil
}

func (b *Bootstrap) SizeSSZ() int { return BootstrapSSZSize }

func (b *Bootstrap) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(b) }

func (b *Bootstrap) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst, err := b.Header.MarshalSSZTo(buf)
	if err != nil {
		return nil, err
	}
	if dst, err = b.CurrentSyncCommittee.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	for i := range b.CurrentSyncCommitteeBranch {
		dst = append(dst, b.CurrentSyncCommitteeBranch[i][:]...)
	}
	return dst, nil
}

func (b *Bootstrap) UnmarshalSSZ(buf []byte) error {
	if len(buf) != BootstrapSSZSize {
		return ssz.ErrSize
	}
	if err := b.Header.UnmarshalSSZ(buf[0:HeaderSSZSize]); err != nil {
		return err
	}
	off := HeaderSSZSize
	if err := b.CurrentSyncCommittee.UnmarshalSSZ(buf[off : off+SyncCommitteeSSZSize]); err != nil {
		return err
	}
	off += SyncCommitteeSSZSize
	unmarshalBranch(b.CurrentSyncCommitteeBranch[:], buf[off:])
	return nil
}

func (u *Update) SizeSSZ() int { return UpdateSSZSize }

func (u *Update) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(u) }

func (u *Update) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst, err := u.AttestedHeader.MarshalSSZTo(buf)
	if err != nil {
		return nil, err
	}
	if dst, err = u.NextSyncCommittee.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = marshalBranch(dst, u.NextSyncCommitteeBranch[:])
	if dst, err = u.FinalizedHeader.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = marshalBranch(dst, u.FinalityBranch[:])
	if dst, err = u.SyncAggregate.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = ssz.MarshalUint64(dst, uint64(u.SignatureSlot))
	return dst, nil
}

func (u *Update) UnmarshalSSZ(buf []byte) error {
	if len(buf) != UpdateSSZSize {
		return ssz.ErrSize
	}
	off := 0
	if err := u.AttestedHeader.UnmarshalSSZ(buf[off : off+HeaderSSZSize]); err != nil {
		return err
	}
	off += HeaderSSZSize
	if err := u.NextSyncCommittee.UnmarshalSSZ(buf[off : off+SyncCommitteeSSZSize]); err != nil {
		return err
	}
	off += SyncCommitteeSSZSize
	off += unmarshalBranch(u.NextSyncCommitteeBranch[:], buf[off:])
	if err := u.FinalizedHeader.UnmarshalSSZ(buf[off : off+HeaderSSZSize]); err != nil {
		return err
	}
	off += HeaderSSZSize
	off += unmarshalBranch(u.FinalityBranch[:], buf[off:])
	if err := u.SyncAggregate.UnmarshalSSZ(buf[off : off+SyncAggregateSSZSize]); err != nil {
		return err
	}
	off += SyncAggregateSSZSize
	u.SignatureSlot = Slot(ssz.UnmarshallUint64(buf[off : off+8]))
	return nil
}

func (u *FinalityUpdate) SizeSSZ() int { return FinalityUpdateSSZSize }

func (u *FinalityUpdate) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(u) }

func (u *FinalityUpdate) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst, err := u.AttestedHeader.MarshalSSZTo(buf)
	if err != nil {
		return nil, err
	}
	if dst, err = u.FinalizedHeader.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = marshalBranch(dst, u.FinalityBranch[:])
	if dst, err = u.SyncAggregate.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = ssz.MarshalUint64(dst, uint64(u.SignatureSlot))
	return dst, nil
}

func (u *FinalityUpdate) UnmarshalSSZ(buf []byte) error {
	if len(buf) != FinalityUpdateSSZSize {
		return ssz.ErrSize
	}
	off := 0
	if err := u.AttestedHeader.UnmarshalSSZ(buf[off : off+HeaderSSZSize]); err != nil {
		return err
	}
	off += HeaderSSZSize
	if err := u.FinalizedHeader.UnmarshalSSZ(buf[off : off+HeaderSSZSize]); err != nil {
		return err
	}
	off += HeaderSSZSize
	off += unmarshalBranch(u.FinalityBranch[:], buf[off:])
	if err := u.SyncAggregate.UnmarshalSSZ(buf[off : off+SyncAggregateSSZSize]); err != nil {
		return err
	}
	off += SyncAggregateSSZSize
	u.SignatureSlot = Slot(ssz.UnmarshallUint64(buf[off : off+8]))
	return nil
}

func (u *OptimisticUpdate) SizeSSZ() int { return OptimisticUpdateSSZSize }

func (u *OptimisticUpdate) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(u) }

func (u *OptimisticUpdate) MarshalSSZTo(buf []byte) ([]byte, error) {
	dst, err := u.AttestedHeader.MarshalSSZTo(buf)
	if err != nil {
		return nil, err
	}
	if dst, err = u.SyncAggregate.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = ssz.MarshalUint64(dst, uint64(u.SignatureSlot))
	return dst, nil
}

func (u *OptimisticUpdate) UnmarshalSSZ(buf []byte) error {
	if len(buf) != OptimisticUpdateSSZSize {
		return ssz.ErrSize
	}
	off := 0
	if err := u.AttestedHeader.UnmarshalSSZ(buf[off : off+HeaderSSZSize]); err != nil {
		return err
	}
	off += HeaderSSZSize
	if err := u.SyncAggregate.UnmarshalSSZ(buf[off : off+SyncAggregateSSZSize]); err != nil {
		return err
	}
	off += SyncAggregateSSZSize
	u.SignatureSlot = Slot(ssz.UnmarshallUint64(buf[off : off+8]))
	return nil
}

func (b *UpdatesBatch) SizeSSZ() int {
	return batchFixedSSZSize + len(b.Updates)*UpdateSSZSize
}

func (b *UpdatesBatch) MarshalSSZ() ([]byte, error) { return ssz.MarshalSSZ(b) }

func (b *UpdatesBatch) MarshalSSZTo(buf []byte) ([]byte, error) {
	if uint64(len(b.Updates)) > MaxUpdatesPerRequest {
		return nil, ssz.ErrListTooBig
	}
	dst := buf
	dst = ssz.WriteOffset(dst, batchFixedSSZSize)
	var err error
	if dst, err = b.FinalityUpdate.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	if dst, err = b.OptimisticUpdate.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	for i := range b.Updates {
		if dst, err = b.Updates[i].MarshalSSZTo(dst); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (b *UpdatesBatch) UnmarshalSSZ(buf []byte) error {
	if len(buf) < batchFixedSSZSize {
		return ssz.ErrSize
	}
	if off := ssz.ReadOffset(buf[0:4]); off != batchFixedSSZSize {
		return ssz.ErrOffset
	}
	pos := 4
	if err := b.FinalityUpdate.UnmarshalSSZ(buf[pos : pos+FinalityUpdateSSZSize]); err != nil {
		return err
	}
	pos += FinalityUpdateSSZSize
	if err := b.OptimisticUpdate.UnmarshalSSZ(buf[pos : pos+OptimisticUpdateSSZSize]); err != nil {
		return err
	}
	tail := buf[batchFixedSSZSize:]
	count, err := ssz.DivideInt2(len(tail), UpdateSSZSize, int(MaxUpdatesPerRequest))
	if err != nil {
		return err
	}
	b.Updates = make([]Update, count)
	for i := 0; i < count; i++ {
		if err := b.Updates[i].UnmarshalSSZ(tail[i*UpdateSSZSize : (i+1)*UpdateSSZSize]); err != nil {
			return err
		}
	}
	return nil
}

func marshalBranch(dst []byte, branch []Root) []byte {
	for i := range branch {
		dst = append(dst, branch[i][:]...)
	}
	return dst
}

func unmarshalBranch(dst []Root, buf []byte) int {
	for i := range dst {
		copy(dst[i][:], buf[i*32:(i+1)*32])
	}
	return len(dst) * 32
}
