package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OffchainLabs/go-bitfield"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrUnsupportedForkVariant is returned when a slot maps to a fork the record
// model has no shape for, or when a field is accessed on a variant that does
// not carry it.
var ErrUnsupportedForkVariant = errors.New("unsupported fork variant")

// ForkVariant tags the shape of fork-dependent records. Records carrying a
// variant are only constructed through codecs or explicit constructors; the
// zero value is rejected wherever a shape decision is needed.
type ForkVariant uint8

const (
	ForkUnknown ForkVariant = iota
	ForkBellatrix
	ForkCapella
	ForkDeneb
)

func (v ForkVariant) String() string {
	switch v {
	case ForkBellatrix:
		return "bellatrix"
	case ForkCapella:
		return "capella"
	case ForkDeneb:
		return "deneb"
	default:
		return fmt.Sprintf("fork(%d)", uint8(v))
	}
}

// ParseForkVariant maps a REST envelope version string to a body variant.
func ParseForkVariant(name string) (ForkVariant, error) {
	switch name {
	case "bellatrix":
		return ForkBellatrix, nil
	case "capella":
		return ForkCapella, nil
	case "deneb":
		return ForkDeneb, nil
	default:
		return ForkUnknown, fmt.Errorf("%w: %q", ErrUnsupportedForkVariant, name)
	}
}

// Block body list limits.
const (
	MaxProposerSlashings      = 16
	MaxAttesterSlashings      = 2
	MaxAttestations           = 128
	MaxDeposits               = 16
	MaxVoluntaryExits         = 16
	MaxBLSToExecutionChanges  = 16
	MaxBlobCommitments        = 4096
	MaxValidatorsPerCommittee = 2048
	MaxWithdrawals            = 16
	MaxTransactions           = 1048576
	MaxBytesPerTransaction    = 1073741824
	MaxExtraDataBytes         = 32
	DepositProofLength        = 33 // DEPOSIT_CONTRACT_TREE_DEPTH + 1
)

// BeaconBlock is a full block fetched to cross-check a verified header and
// surface its execution payload.
type BeaconBlock struct {
	Slot          Slot
	ProposerIndex ValidatorIndex
	ParentRoot    Root
	StateRoot     Root
	Body          BeaconBlockBody
}

// BeaconBlockBody is the fork-variant block body. Fields present in every
// supported variant are exported; variant-gated fields go through accessors
// that fail for variants not carrying them.
type BeaconBlockBody struct {
	variant ForkVariant

	RandaoReveal      Signature
	Eth1Data          Eth1Data
	Graffiti          Root
	ProposerSlashings []ProposerSlashing
	AttesterSlashings []AttesterSlashing
	Attestations      []Attestation
	Deposits          []Deposit
	VoluntaryExits    []SignedVoluntaryExit
	SyncAggregate     SyncAggregate
	ExecutionPayload  ExecutionPayload

	blsToExecutionChanges []SignedBLSToExecutionChange // Capella+
	blobKZGCommitments    []KZGCommitment              // Deneb+
}

// NewBeaconBlockBody returns an empty body of the given variant. The payload
// inherits the variant.
func NewBeaconBlockBody(v ForkVariant) *BeaconBlockBody {
	return &BeaconBlockBody{variant: v, ExecutionPayload: ExecutionPayload{variant: v}}
}

func (b *BeaconBlockBody) Variant() ForkVariant { return b.variant }

func (b *BeaconBlockBody) BLSToExecutionChanges() ([]SignedBLSToExecutionChange, error) {
	if b.variant < ForkCapella {
		return nil, fmt.Errorf("%w: bls_to_execution_changes absent before capella", ErrUnsupportedForkVariant)
	}
	return b.blsToExecutionChanges, nil
}

func (b *BeaconBlockBody) SetBLSToExecutionChanges(cs []SignedBLSToExecutionChange) error {
	if b.variant < ForkCapella {
		return fmt.Errorf("%w: bls_to_execution_changes absent before capella", ErrUnsupportedForkVariant)
	}
	b.blsToExecutionChanges = cs
	return nil
}

func (b *BeaconBlockBody) BlobKZGCommitments() ([]KZGCommitment, error) {
	if b.variant < ForkDeneb {
		return nil, fmt.Errorf("%w: blob_kzg_commitments absent before deneb", ErrUnsupportedForkVariant)
	}
	return b.blobKZGCommitments, nil
}

func (b *BeaconBlockBody) SetBlobKZGCommitments(cs []KZGCommitment) error {
	if b.variant < ForkDeneb {
		return fmt.Errorf("%w: blob_kzg_commitments absent before deneb", ErrUnsupportedForkVariant)
	}
	b.blobKZGCommitments = cs
	return nil
}

// ExecutionPayload is the fork-variant execution-layer payload embedded in a
// block body.
type ExecutionPayload struct {
	variant ForkVariant

	ParentHash    Root
	FeeRecipient  Address
	StateRoot     Root
	ReceiptsRoot  Root
	LogsBloom     Bloom
	PrevRandao    Root
	BlockNumber   Uint64
	GasLimit      Uint64
	GasUsed       Uint64
	Timestamp     Uint64
	ExtraData     []byte
	BaseFeePerGas U256
	BlockHash     Root
	Transactions  []Transaction

	withdrawals   []Withdrawal // Capella+
	blobGasUsed   Uint64       // Deneb+
	excessBlobGas Uint64       // Deneb+
}

func NewExecutionPayload(v ForkVariant) *ExecutionPayload {
	return &ExecutionPayload{variant: v}
}

func (p *ExecutionPayload) Variant() ForkVariant { return p.variant }

func (p *ExecutionPayload) Withdrawals() ([]Withdrawal, error) {
	if p.variant < ForkCapella {
		return nil, fmt.Errorf("%w: withdrawals absent before capella", ErrUnsupportedForkVariant)
	}
	return p.withdrawals, nil
}

func (p *ExecutionPayload) SetWithdrawals(ws []Withdrawal) error {
	if p.variant < ForkCapella {
		return fmt.Errorf("%w: withdrawals absent before capella", ErrUnsupportedForkVariant)
	}
	p.withdrawals = ws
	return nil
}

func (p *ExecutionPayload) BlobGasUsed() (Uint64, error) {
	if p.variant < ForkDeneb {
		return 0, fmt.Errorf("%w: blob_gas_used absent before deneb", ErrUnsupportedForkVariant)
	}
	return p.blobGasUsed, nil
}

func (p *ExecutionPayload) ExcessBlobGas() (Uint64, error) {
	if p.variant < ForkDeneb {
		return 0, fmt.Errorf("%w: excess_blob_gas absent before deneb", ErrUnsupportedForkVariant)
	}
	return p.excessBlobGas, nil
}

func (p *ExecutionPayload) SetBlobGas(used, excess Uint64) error {
	if p.variant < ForkDeneb {
		return fmt.Errorf("%w: blob gas fields absent before deneb", ErrUnsupportedForkVariant)
	}
	p.blobGasUsed, p.excessBlobGas = used, excess
	return nil
}

// Supporting containers.

type Eth1Data struct {
	DepositRoot  Root   `json:"deposit_root"`
	DepositCount Uint64 `json:"deposit_count"`
	BlockHash    Root   `json:"block_hash"`
}

type Checkpoint struct {
	Epoch Epoch `json:"epoch"`
	Root  Root  `json:"root"`
}

type AttestationData struct {
	Slot            Slot       `json:"slot"`
	Index           Uint64     `json:"index"`
	BeaconBlockRoot Root       `json:"beacon_block_root"`
	Source          Checkpoint `json:"source"`
	Target          Checkpoint `json:"target"`
}

type IndexedAttestation struct {
	AttestingIndices []Uint64        `json:"attesting_indices"`
	Data             AttestationData `json:"data"`
	Signature        Signature       `json:"signature"`
}

type Attestation struct {
	AggregationBits bitfield.Bitlist
	Data            AttestationData
	Signature       Signature
}

type attestationJSON struct {
	AggregationBits hexutil.Bytes   `json:"aggregation_bits"`
	Data            AttestationData `json:"data"`
	Signature       Signature       `json:"signature"`
}

func (a Attestation) MarshalJSON() ([]byte, error) {
	return json.Marshal(attestationJSON{
		AggregationBits: hexutil.Bytes(a.AggregationBits),
		Data:            a.Data,
		Signature:       a.Signature,
	})
}

func (a *Attestation) UnmarshalJSON(data []byte) error {
	var v attestationJSON
	if err := unmarshalStrict(data, &v); err != nil {
		return fmt.Errorf("attestation: %w", err)
	}
	bits := bitfield.Bitlist(v.AggregationBits)
	if len(bits) == 0 || bits.Len() > MaxValidatorsPerCommittee {
		return fmt.Errorf("attestation: aggregation bits hold %d bits, limit %d", bits.Len(), MaxValidatorsPerCommittee)
	}
	a.AggregationBits = bits
	a.Data = v.Data
	a.Signature = v.Signature
	return nil
}

type SignedBeaconBlockHeader struct {
	Message   Header    `json:"message"`
	Signature Signature `json:"signature"`
}

type ProposerSlashing struct {
	SignedHeader1 SignedBeaconBlockHeader `json:"signed_header_1"`
	SignedHeader2 SignedBeaconBlockHeader `json:"signed_header_2"`
}

type AttesterSlashing struct {
	Attestation1 IndexedAttestation `json:"attestation_1"`
	Attestation2 IndexedAttestation `json:"attestation_2"`
}

type DepositData struct {
	Pubkey                Pubkey    `json:"pubkey"`
	WithdrawalCredentials Root      `json:"withdrawal_credentials"`
	Amount                Uint64    `json:"amount"`
	Signature             Signature `json:"signature"`
}

type Deposit struct {
	Proof [DepositProofLength]Root `json:"proof"`
	Data  DepositData              `json:"data"`
}

func (d *Deposit) UnmarshalJSON(data []byte) error {
	var v struct {
		Proof []Root      `json:"proof"`
		Data  DepositData `json:"data"`
	}
	if err := unmarshalStrict(data, &v); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	if err := copyBranch(d.Proof[:], v.Proof, "deposit proof"); err != nil {
		return err
	}
	d.Data = v.Data
	return nil
}

type VoluntaryExit struct {
	Epoch          Epoch          `json:"epoch"`
	ValidatorIndex ValidatorIndex `json:"validator_index"`
}

type SignedVoluntaryExit struct {
	Message   VoluntaryExit `json:"message"`
	Signature Signature     `json:"signature"`
}

type BLSToExecutionChange struct {
	ValidatorIndex     ValidatorIndex `json:"validator_index"`
	FromBLSPubkey      Pubkey         `json:"from_bls_pubkey"`
	ToExecutionAddress Address        `json:"to_execution_address"`
}

type SignedBLSToExecutionChange struct {
	Message   BLSToExecutionChange `json:"message"`
	Signature Signature            `json:"signature"`
}

type Withdrawal struct {
	Index          Uint64         `json:"index"`
	ValidatorIndex ValidatorIndex `json:"validator_index"`
	Address        Address        `json:"address"`
	Amount         Uint64         `json:"amount"`
}
