package merkle

import (
	"fmt"

	"github.com/geanlabs/lantern/types"
)

// Canonical digests (hash tree roots) of the record model's containers.
// Container fields merkleize as one leaf each, padded to the next power of
// two; list leaves mix in their element count.

func HeaderRoot(h *types.Header) types.Root {
	return Merkleize([]types.Root{
		HashTreeRootUint64(uint64(h.Slot)),
		HashTreeRootUint64(uint64(h.ProposerIndex)),
		h.ParentRoot,
		h.StateRoot,
		h.BodyRoot,
	}, 0)
}

func SyncCommitteeRoot(c *types.SyncCommittee) types.Root {
	leaves := make([]types.Root, len(c.Pubkeys))
	for i := range c.Pubkeys {
		leaves[i] = ByteVectorRoot(c.Pubkeys[i][:])
	}
	return Merkleize([]types.Root{
		Merkleize(leaves, 0),
		ByteVectorRoot(c.AggregatePubkey[:]),
	}, 0)
}

func SyncAggregateRoot(a *types.SyncAggregate) types.Root {
	return Merkleize([]types.Root{
		BitvectorRoot(a.Bits, types.SyncCommitteeSize),
		ByteVectorRoot(a.Signature[:]),
	}, 0)
}

// BlockRoot computes a full block's root, which equals the root of its
// header form.
func BlockRoot(b *types.BeaconBlock) (types.Root, error) {
	bodyRoot, err := BodyRoot(&b.Body)
	if err != nil {
		return types.Root{}, err
	}
	return Merkleize([]types.Root{
		HashTreeRootUint64(uint64(b.Slot)),
		HashTreeRootUint64(uint64(b.ProposerIndex)),
		b.ParentRoot,
		b.StateRoot,
		bodyRoot,
	}, 0), nil
}

// BodyRoot computes the fork-variant body digest. A body with no variant tag
// has no shape and is rejected.
func BodyRoot(b *types.BeaconBlockBody) (types.Root, error) {
	if b.Variant() < types.ForkBellatrix || b.Variant() > types.ForkDeneb {
		return types.Root{}, fmt.Errorf("body digest: %w: %s", types.ErrUnsupportedForkVariant, b.Variant())
	}
	payloadRoot, err := PayloadRoot(&b.ExecutionPayload)
	if err != nil {
		return types.Root{}, err
	}
	leaves := []types.Root{
		ByteVectorRoot(b.RandaoReveal[:]),
		Eth1DataRoot(&b.Eth1Data),
		b.Graffiti,
		listRoot(b.ProposerSlashings, types.MaxProposerSlashings, ProposerSlashingRoot),
		listRoot(b.AttesterSlashings, types.MaxAttesterSlashings, AttesterSlashingRoot),
		listRoot(b.Attestations, types.MaxAttestations, AttestationRoot),
		listRoot(b.Deposits, types.MaxDeposits, DepositRoot),
		listRoot(b.VoluntaryExits, types.MaxVoluntaryExits, SignedVoluntaryExitRoot),
		SyncAggregateRoot(&b.SyncAggregate),
		payloadRoot,
	}
	if b.Variant() >= types.ForkCapella {
		changes, err := b.BLSToExecutionChanges()
		if err != nil {
			return types.Root{}, err
		}
		leaves = append(leaves, listRoot(changes, types.MaxBLSToExecutionChanges, SignedBLSToExecutionChangeRoot))
	}
	if b.Variant() >= types.ForkDeneb {
		commitments, err := b.BlobKZGCommitments()
		if err != nil {
			return types.Root{}, err
		}
		leaves = append(leaves, listRoot(commitments, types.MaxBlobCommitments, kzgCommitmentRoot))
	}
	return Merkleize(leaves, 0), nil
}

// PayloadRoot computes the fork-variant execution payload digest.
func PayloadRoot(p *types.ExecutionPayload) (types.Root, error) {
	if p.Variant() < types.ForkBellatrix || p.Variant() > types.ForkDeneb {
		return types.Root{}, fmt.Errorf("payload digest: %w: %s", types.ErrUnsupportedForkVariant, p.Variant())
	}
	leaves := []types.Root{
		p.ParentHash,
		ByteVectorRoot(p.FeeRecipient[:]),
		p.StateRoot,
		p.ReceiptsRoot,
		ByteVectorRoot(p.LogsBloom[:]),
		p.PrevRandao,
		HashTreeRootUint64(uint64(p.BlockNumber)),
		HashTreeRootUint64(uint64(p.GasLimit)),
		HashTreeRootUint64(uint64(p.GasUsed)),
		HashTreeRootUint64(uint64(p.Timestamp)),
		ByteListRoot(p.ExtraData, types.MaxExtraDataBytes),
		types.Root(p.BaseFeePerGas),
		p.BlockHash,
		transactionsRoot(p.Transactions),
	}
	if p.Variant() >= types.ForkCapella {
		withdrawals, err := p.Withdrawals()
		if err != nil {
			return types.Root{}, err
		}
		leaves = append(leaves, listRoot(withdrawals, types.MaxWithdrawals, WithdrawalRoot))
	}
	if p.Variant() >= types.ForkDeneb {
		used, err := p.BlobGasUsed()
		if err != nil {
			return types.Root{}, err
		}
		excess, err := p.ExcessBlobGas()
		if err != nil {
			return types.Root{}, err
		}
		leaves = append(leaves, HashTreeRootUint64(uint64(used)), HashTreeRootUint64(uint64(excess)))
	}
	return Merkleize(leaves, 0), nil
}

func Eth1DataRoot(d *types.Eth1Data) types.Root {
	return Merkleize([]types.Root{
		d.DepositRoot,
		HashTreeRootUint64(uint64(d.DepositCount)),
		d.BlockHash,
	}, 0)
}

func CheckpointRoot(c *types.Checkpoint) types.Root {
	return Merkleize([]types.Root{
		HashTreeRootUint64(uint64(c.Epoch)),
		c.Root,
	}, 0)
}

func AttestationDataRoot(d *types.AttestationData) types.Root {
	return Merkleize([]types.Root{
		HashTreeRootUint64(uint64(d.Slot)),
		HashTreeRootUint64(uint64(d.Index)),
		d.BeaconBlockRoot,
		CheckpointRoot(&d.Source),
		CheckpointRoot(&d.Target),
	}, 0)
}

func IndexedAttestationRoot(a *types.IndexedAttestation) types.Root {
	indices := make([]uint64, len(a.AttestingIndices))
	for i, idx := range a.AttestingIndices {
		indices[i] = uint64(idx)
	}
	return Merkleize([]types.Root{
		Uint64ListRoot(indices, types.MaxValidatorsPerCommittee),
		AttestationDataRoot(&a.Data),
		ByteVectorRoot(a.Signature[:]),
	}, 0)
}

func AttestationRoot(a *types.Attestation) types.Root {
	return Merkleize([]types.Root{
		BitlistRoot(a.AggregationBits, types.MaxValidatorsPerCommittee),
		AttestationDataRoot(&a.Data),
		ByteVectorRoot(a.Signature[:]),
	}, 0)
}

func SignedHeaderRoot(s *types.SignedBeaconBlockHeader) types.Root {
	return Merkleize([]types.Root{
		HeaderRoot(&s.Message),
		ByteVectorRoot(s.Signature[:]),
	}, 0)
}

func ProposerSlashingRoot(s *types.ProposerSlashing) types.Root {
	return Merkleize([]types.Root{
		SignedHeaderRoot(&s.SignedHeader1),
		SignedHeaderRoot(&s.SignedHeader2),
	}, 0)
}

func AttesterSlashingRoot(s *types.AttesterSlashing) types.Root {
	return Merkleize([]types.Root{
		IndexedAttestationRoot(&s.Attestation1),
		IndexedAttestationRoot(&s.Attestation2),
	}, 0)
}

func DepositDataRoot(d *types.DepositData) types.Root {
	return Merkleize([]types.Root{
		ByteVectorRoot(d.Pubkey[:]),
		d.WithdrawalCredentials,
		HashTreeRootUint64(uint64(d.Amount)),
		ByteVectorRoot(d.Signature[:]),
	}, 0)
}

func DepositRoot(d *types.Deposit) types.Root {
	return Merkleize([]types.Root{
		Merkleize(d.Proof[:], 0),
		DepositDataRoot(&d.Data),
	}, 0)
}

func VoluntaryExitRoot(e *types.VoluntaryExit) types.Root {
	return Merkleize([]types.Root{
		HashTreeRootUint64(uint64(e.Epoch)),
		HashTreeRootUint64(uint64(e.ValidatorIndex)),
	}, 0)
}

func SignedVoluntaryExitRoot(e *types.SignedVoluntaryExit) types.Root {
	return Merkleize([]types.Root{
		VoluntaryExitRoot(&e.Message),
		ByteVectorRoot(e.Signature[:]),
	}, 0)
}

func BLSToExecutionChangeRoot(c *types.BLSToExecutionChange) types.Root {
	return Merkleize([]types.Root{
		HashTreeRootUint64(uint64(c.ValidatorIndex)),
		ByteVectorRoot(c.FromBLSPubkey[:]),
		ByteVectorRoot(c.ToExecutionAddress[:]),
	}, 0)
}

func SignedBLSToExecutionChangeRoot(c *types.SignedBLSToExecutionChange) types.Root {
	return Merkleize([]types.Root{
		BLSToExecutionChangeRoot(&c.Message),
		ByteVectorRoot(c.Signature[:]),
	}, 0)
}

func WithdrawalRoot(w *types.Withdrawal) types.Root {
	return Merkleize([]types.Root{
		HashTreeRootUint64(uint64(w.Index)),
		HashTreeRootUint64(uint64(w.ValidatorIndex)),
		ByteVectorRoot(w.Address[:]),
		HashTreeRootUint64(uint64(w.Amount)),
	}, 0)
}

func kzgCommitmentRoot(k *types.KZGCommitment) types.Root {
	return ByteVectorRoot(k[:])
}

func transactionsRoot(txs []types.Transaction) types.Root {
	leaves := make([]types.Root, len(txs))
	for i := range txs {
		leaves[i] = ByteListRoot(txs[i], types.MaxBytesPerTransaction)
	}
	root := Merkleize(leaves, types.MaxTransactions)
	return MixInLength(root, uint64(len(txs)))
}

func listRoot[T any](items []T, limit uint64, itemRoot func(*T) types.Root) types.Root {
	leaves := make([]types.Root, len(items))
	for i := range items {
		leaves[i] = itemRoot(&items[i])
	}
	return MixInLength(Merkleize(leaves, limit), uint64(len(items)))
}
