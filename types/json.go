package types

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Fork-variant records never decode without an explicit variant: the JSON
// shape of a body or payload depends on the fork, and defaulting absent
// fields would forge zero values into digests. DecodeBlockJSON and
// DecodeBodyJSON are the only ingress paths.

var errVariantRequired = errors.New("fork-variant record requires an explicit variant: use DecodeBlockJSON")

func (b *BeaconBlock) UnmarshalJSON([]byte) error      { return errVariantRequired }
func (b *BeaconBlockBody) UnmarshalJSON([]byte) error  { return errVariantRequired }
func (p *ExecutionPayload) UnmarshalJSON([]byte) error { return errVariantRequired }

type blockJSON struct {
	Slot          Slot            `json:"slot"`
	ProposerIndex ValidatorIndex  `json:"proposer_index"`
	ParentRoot    Root            `json:"parent_root"`
	StateRoot     Root            `json:"state_root"`
	Body          json.RawMessage `json:"body"`
}

// DecodeBlockJSON decodes a full beacon block in the shape of the given
// variant.
func DecodeBlockJSON(data []byte, v ForkVariant) (*BeaconBlock, error) {
	var raw blockJSON
	if err := unmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	body, err := DecodeBodyJSON(raw.Body, v)
	if err != nil {
		return nil, err
	}
	return &BeaconBlock{
		Slot:          raw.Slot,
		ProposerIndex: raw.ProposerIndex,
		ParentRoot:    raw.ParentRoot,
		StateRoot:     raw.StateRoot,
		Body:          *body,
	}, nil
}

func (b BeaconBlock) MarshalJSON() ([]byte, error) {
	body, err := b.Body.encodeJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(blockJSON{
		Slot:          b.Slot,
		ProposerIndex: b.ProposerIndex,
		ParentRoot:    b.ParentRoot,
		StateRoot:     b.StateRoot,
		Body:          body,
	})
}

type blockBodyJSON struct {
	RandaoReveal          Signature                     `json:"randao_reveal"`
	Eth1Data              Eth1Data                      `json:"eth1_data"`
	Graffiti              Root                          `json:"graffiti"`
	ProposerSlashings     []ProposerSlashing            `json:"proposer_slashings"`
	AttesterSlashings     []AttesterSlashing            `json:"attester_slashings"`
	Attestations          []Attestation                 `json:"attestations"`
	Deposits              []Deposit                     `json:"deposits"`
	VoluntaryExits        []SignedVoluntaryExit         `json:"voluntary_exits"`
	SyncAggregate         SyncAggregate                 `json:"sync_aggregate"`
	ExecutionPayload      json.RawMessage               `json:"execution_payload"`
	BLSToExecutionChanges *[]SignedBLSToExecutionChange `json:"bls_to_execution_changes,omitempty"`
	BlobKZGCommitments    *[]KZGCommitment              `json:"blob_kzg_commitments,omitempty"`
}

// DecodeBodyJSON decodes a block body in the shape of the given variant.
// Fields a variant does not carry must be absent; fields it does carry must
// be present.
func DecodeBodyJSON(data []byte, v ForkVariant) (*BeaconBlockBody, error) {
	if v < ForkBellatrix || v > ForkDeneb {
		return nil, fmt.Errorf("%w: no body shape for %s", ErrUnsupportedForkVariant, v)
	}
	var raw blockBodyJSON
	if err := unmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	if err := checkGated(v >= ForkCapella, raw.BLSToExecutionChanges != nil, "bls_to_execution_changes", v); err != nil {
		return nil, err
	}
	if err := checkGated(v >= ForkDeneb, raw.BlobKZGCommitments != nil, "blob_kzg_commitments", v); err != nil {
		return nil, err
	}
	if err := validateBodyLists(&raw); err != nil {
		return nil, err
	}
	payload, err := decodePayloadJSON(raw.ExecutionPayload, v)
	if err != nil {
		return nil, err
	}
	body := BeaconBlockBody{
		variant:           v,
		RandaoReveal:      raw.RandaoReveal,
		Eth1Data:          raw.Eth1Data,
		Graffiti:          raw.Graffiti,
		ProposerSlashings: raw.ProposerSlashings,
		AttesterSlashings: raw.AttesterSlashings,
		Attestations:      raw.Attestations,
		Deposits:          raw.Deposits,
		VoluntaryExits:    raw.VoluntaryExits,
		SyncAggregate:     raw.SyncAggregate,
		ExecutionPayload:  *payload,
	}
	if raw.BLSToExecutionChanges != nil {
		body.blsToExecutionChanges = *raw.BLSToExecutionChanges
	}
	if raw.BlobKZGCommitments != nil {
		body.blobKZGCommitments = *raw.BlobKZGCommitments
	}
	return &body, nil
}

func (b BeaconBlockBody) MarshalJSON() ([]byte, error) { return b.encodeJSON() }

func (b *BeaconBlockBody) encodeJSON() ([]byte, error) {
	if b.variant < ForkBellatrix || b.variant > ForkDeneb {
		return nil, fmt.Errorf("%w: no body shape for %s", ErrUnsupportedForkVariant, b.variant)
	}
	payload, err := b.ExecutionPayload.encodeJSON()
	if err != nil {
		return nil, err
	}
	raw := blockBodyJSON{
		RandaoReveal:      b.RandaoReveal,
		Eth1Data:          b.Eth1Data,
		Graffiti:          b.Graffiti,
		ProposerSlashings: emptyIfNil(b.ProposerSlashings),
		AttesterSlashings: emptyIfNil(b.AttesterSlashings),
		Attestations:      emptyIfNil(b.Attestations),
		Deposits:          emptyIfNil(b.Deposits),
		VoluntaryExits:    emptyIfNil(b.VoluntaryExits),
		SyncAggregate:     b.SyncAggregate,
		ExecutionPayload:  payload,
	}
	if b.variant >= ForkCapella {
		cs := emptyIfNil(b.blsToExecutionChanges)
		raw.BLSToExecutionChanges = &cs
	}
	if b.variant >= ForkDeneb {
		cs := emptyIfNil(b.blobKZGCommitments)
		raw.BlobKZGCommitments = &cs
	}
	return json.Marshal(raw)
}

type executionPayloadJSON struct {
	ParentHash    Root          `json:"parent_hash"`
	FeeRecipient  Address       `json:"fee_recipient"`
	StateRoot     Root          `json:"state_root"`
	ReceiptsRoot  Root          `json:"receipts_root"`
	LogsBloom     Bloom         `json:"logs_bloom"`
	PrevRandao    Root          `json:"prev_randao"`
	BlockNumber   Uint64        `json:"block_number"`
	GasLimit      Uint64        `json:"gas_limit"`
	GasUsed       Uint64        `json:"gas_used"`
	Timestamp     Uint64        `json:"timestamp"`
	ExtraData     hexutil.Bytes `json:"extra_data"`
	BaseFeePerGas U256          `json:"base_fee_per_gas"`
	BlockHash     Root          `json:"block_hash"`
	Transactions  []Transaction `json:"transactions"`
	Withdrawals   *[]Withdrawal `json:"withdrawals,omitempty"`
	BlobGasUsed   *Uint64       `json:"blob_gas_used,omitempty"`
	ExcessBlobGas *Uint64       `json:"excess_blob_gas,omitempty"`
}

func decodePayloadJSON(data []byte, v ForkVariant) (*ExecutionPayload, error) {
	var raw executionPayloadJSON
	if err := unmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("execution payload: %w", err)
	}
	if err := checkGated(v >= ForkCapella, raw.Withdrawals != nil, "withdrawals", v); err != nil {
		return nil, err
	}
	if err := checkGated(v >= ForkDeneb, raw.BlobGasUsed != nil, "blob_gas_used", v); err != nil {
		return nil, err
	}
	if err := checkGated(v >= ForkDeneb, raw.ExcessBlobGas != nil, "excess_blob_gas", v); err != nil {
		return nil, err
	}
	if len(raw.ExtraData) > MaxExtraDataBytes {
		return nil, fmt.Errorf("execution payload: extra_data is %d bytes, limit %d", len(raw.ExtraData), MaxExtraDataBytes)
	}
	if len(raw.Transactions) > MaxTransactions {
		return nil, fmt.Errorf("execution payload: %d transactions, limit %d", len(raw.Transactions), MaxTransactions)
	}
	for i, tx := range raw.Transactions {
		if len(tx) > MaxBytesPerTransaction {
			return nil, fmt.Errorf("execution payload: transaction %d is %d bytes, limit %d", i, len(tx), MaxBytesPerTransaction)
		}
	}
	p := ExecutionPayload{
		variant:       v,
		ParentHash:    raw.ParentHash,
		FeeRecipient:  raw.FeeRecipient,
		StateRoot:     raw.StateRoot,
		ReceiptsRoot:  raw.ReceiptsRoot,
		LogsBloom:     raw.LogsBloom,
		PrevRandao:    raw.PrevRandao,
		BlockNumber:   raw.BlockNumber,
		GasLimit:      raw.GasLimit,
		GasUsed:       raw.GasUsed,
		Timestamp:     raw.Timestamp,
		ExtraData:     raw.ExtraData,
		BaseFeePerGas: raw.BaseFeePerGas,
		BlockHash:     raw.BlockHash,
		Transactions:  raw.Transactions,
	}
	if raw.Withdrawals != nil {
		if len(*raw.Withdrawals) > MaxWithdrawals {
			return nil, fmt.Errorf("execution payload: %d withdrawals, limit %d", len(*raw.Withdrawals), MaxWithdrawals)
		}
		p.withdrawals = *raw.Withdrawals
	}
	if raw.BlobGasUsed != nil {
		p.blobGasUsed = *raw.BlobGasUsed
	}
	if raw.ExcessBlobGas != nil {
		p.excessBlobGas = *raw.ExcessBlobGas
	}
	return &p, nil
}

func (p ExecutionPayload) MarshalJSON() ([]byte, error) { return p.encodeJSON() }

func (p *ExecutionPayload) encodeJSON() ([]byte, error) {
	if p.variant < ForkBellatrix || p.variant > ForkDeneb {
		return nil, fmt.Errorf("%w: no payload shape for %s", ErrUnsupportedForkVariant, p.variant)
	}
	raw := executionPayloadJSON{
		ParentHash:    p.ParentHash,
		FeeRecipient:  p.FeeRecipient,
		StateRoot:     p.StateRoot,
		ReceiptsRoot:  p.ReceiptsRoot,
		LogsBloom:     p.LogsBloom,
		PrevRandao:    p.PrevRandao,
		BlockNumber:   p.BlockNumber,
		GasLimit:      p.GasLimit,
		GasUsed:       p.GasUsed,
		Timestamp:     p.Timestamp,
		ExtraData:     hexutil.Bytes(p.ExtraData),
		BaseFeePerGas: p.BaseFeePerGas,
		BlockHash:     p.BlockHash,
		Transactions:  emptyIfNil(p.Transactions),
	}
	if p.variant >= ForkCapella {
		ws := emptyIfNil(p.withdrawals)
		raw.Withdrawals = &ws
	}
	if p.variant >= ForkDeneb {
		used, excess := p.blobGasUsed, p.excessBlobGas
		raw.BlobGasUsed = &used
		raw.ExcessBlobGas = &excess
	}
	return json.Marshal(raw)
}

func validateBodyLists(raw *blockBodyJSON) error {
	checks := []struct {
		name  string
		n     int
		limit int
	}{
		{"proposer_slashings", len(raw.ProposerSlashings), MaxProposerSlashings},
		{"attester_slashings", len(raw.AttesterSlashings), MaxAttesterSlashings},
		{"attestations", len(raw.Attestations), MaxAttestations},
		{"deposits", len(raw.Deposits), MaxDeposits},
		{"voluntary_exits", len(raw.VoluntaryExits), MaxVoluntaryExits},
	}
	if raw.BLSToExecutionChanges != nil {
		checks = append(checks, struct {
			name  string
			n     int
			limit int
		}{"bls_to_execution_changes", len(*raw.BLSToExecutionChanges), MaxBLSToExecutionChanges})
	}
	if raw.BlobKZGCommitments != nil {
		checks = append(checks, struct {
			name  string
			n     int
			limit int
		}{"blob_kzg_commitments", len(*raw.BlobKZGCommitments), MaxBlobCommitments})
	}
	for _, c := range checks {
		if c.n > c.limit {
			return fmt.Errorf("body: %d %s, limit %d", c.n, c.name, c.limit)
		}
	}
	for i, s := range raw.AttesterSlashings {
		for _, att := range []IndexedAttestation{s.Attestation1, s.Attestation2} {
			if len(att.AttestingIndices) > MaxValidatorsPerCommittee {
				return fmt.Errorf("body: attester slashing %d has %d attesting indices, limit %d",
					i, len(att.AttestingIndices), MaxValidatorsPerCommittee)
			}
		}
	}
	return nil
}

// checkGated enforces fork-gated field presence: a field a variant carries
// must be present, one it does not carry must be absent.
func checkGated(carried, present bool, field string, v ForkVariant) error {
	if carried && !present {
		return fmt.Errorf("missing %s for %s", field, v)
	}
	if !carried && present {
		return fmt.Errorf("unexpected %s for %s", field, v)
	}
	return nil
}

func emptyIfNil[S ~[]E, E any](s S) S {
	if s == nil {
		return S{}
	}
	return s
}
