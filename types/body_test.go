package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/OffchainLabs/go-bitfield"
)

func TestParseForkVariant(t *testing.T) {
	tests := []struct {
		name    string
		want    ForkVariant
		wantErr bool
	}{
		{"bellatrix", ForkBellatrix, false},
		{"capella", ForkCapella, false},
		{"deneb", ForkDeneb, false},
		{"altair", ForkUnknown, true},
		{"electra", ForkUnknown, true},
		{"", ForkUnknown, true},
		{"Bellatrix", ForkUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseForkVariant(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseForkVariant(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrUnsupportedForkVariant) {
				t.Errorf("error = %v, want ErrUnsupportedForkVariant", err)
			}
			if got != tt.want {
				t.Errorf("ParseForkVariant(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestForkVariant_String(t *testing.T) {
	tests := []struct {
		v    ForkVariant
		want string
	}{
		{ForkBellatrix, "bellatrix"},
		{ForkCapella, "capella"},
		{ForkDeneb, "deneb"},
		{ForkUnknown, "fork(0)"},
	}

	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestBeaconBlockBody_VariantGatedFields(t *testing.T) {
	bellatrix := NewBeaconBlockBody(ForkBellatrix)
	if _, err := bellatrix.BLSToExecutionChanges(); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("bellatrix BLSToExecutionChanges() error = %v, want ErrUnsupportedForkVariant", err)
	}
	if err := bellatrix.SetBLSToExecutionChanges(nil); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("bellatrix SetBLSToExecutionChanges() error = %v, want ErrUnsupportedForkVariant", err)
	}
	if _, err := bellatrix.BlobKZGCommitments(); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("bellatrix BlobKZGCommitments() error = %v, want ErrUnsupportedForkVariant", err)
	}

	capella := NewBeaconBlockBody(ForkCapella)
	if err := capella.SetBLSToExecutionChanges([]SignedBLSToExecutionChange{{}}); err != nil {
		t.Errorf("capella SetBLSToExecutionChanges() error = %v", err)
	}
	if cs, err := capella.BLSToExecutionChanges(); err != nil || len(cs) != 1 {
		t.Errorf("capella BLSToExecutionChanges() = %d changes, %v", len(cs), err)
	}
	if _, err := capella.BlobKZGCommitments(); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("capella BlobKZGCommitments() error = %v, want ErrUnsupportedForkVariant", err)
	}

	deneb := NewBeaconBlockBody(ForkDeneb)
	if err := deneb.SetBlobKZGCommitments([]KZGCommitment{{}}); err != nil {
		t.Errorf("deneb SetBlobKZGCommitments() error = %v", err)
	}
	if cs, err := deneb.BlobKZGCommitments(); err != nil || len(cs) != 1 {
		t.Errorf("deneb BlobKZGCommitments() = %d commitments, %v", len(cs), err)
	}
}

func TestExecutionPayload_VariantGatedFields(t *testing.T) {
	bellatrix := NewExecutionPayload(ForkBellatrix)
	if _, err := bellatrix.Withdrawals(); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("bellatrix Withdrawals() error = %v, want ErrUnsupportedForkVariant", err)
	}
	if err := bellatrix.SetWithdrawals(nil); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("bellatrix SetWithdrawals() error = %v, want ErrUnsupportedForkVariant", err)
	}

	capella := NewExecutionPayload(ForkCapella)
	if err := capella.SetWithdrawals([]Withdrawal{{Index: 1}}); err != nil {
		t.Errorf("capella SetWithdrawals() error = %v", err)
	}
	if ws, err := capella.Withdrawals(); err != nil || len(ws) != 1 {
		t.Errorf("capella Withdrawals() = %d withdrawals, %v", len(ws), err)
	}
	if _, err := capella.BlobGasUsed(); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("capella BlobGasUsed() error = %v, want ErrUnsupportedForkVariant", err)
	}
	if err := capella.SetBlobGas(1, 2); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("capella SetBlobGas() error = %v, want ErrUnsupportedForkVariant", err)
	}

	deneb := NewExecutionPayload(ForkDeneb)
	if err := deneb.SetBlobGas(7, 9); err != nil {
		t.Errorf("deneb SetBlobGas() error = %v", err)
	}
	if used, err := deneb.BlobGasUsed(); err != nil || used != 7 {
		t.Errorf("deneb BlobGasUsed() = %d, %v", used, err)
	}
	if excess, err := deneb.ExcessBlobGas(); err != nil || excess != 9 {
		t.Errorf("deneb ExcessBlobGas() = %d, %v", excess, err)
	}
}

func TestForkVariantRecords_RequireExplicitVariant(t *testing.T) {
	var block BeaconBlock
	if err := json.Unmarshal([]byte(`{}`), &block); err == nil {
		t.Error("BeaconBlock decoded without a variant")
	}
	var body BeaconBlockBody
	if err := json.Unmarshal([]byte(`{}`), &body); err == nil {
		t.Error("BeaconBlockBody decoded without a variant")
	}
	var payload ExecutionPayload
	if err := json.Unmarshal([]byte(`{}`), &payload); err == nil {
		t.Error("ExecutionPayload decoded without a variant")
	}
}

func minimalPayloadJSON(v ForkVariant) string {
	switch {
	case v >= ForkDeneb:
		return `{"withdrawals":[],"blob_gas_used":"0","excess_blob_gas":"0"}`
	case v >= ForkCapella:
		return `{"withdrawals":[]}`
	default:
		return `{}`
	}
}

func minimalBodyJSON(v ForkVariant) string {
	payload := fmt.Sprintf(`{"execution_payload":%s}`, minimalPayloadJSON(v))
	switch {
	case v >= ForkDeneb:
		return strings.TrimSuffix(payload, "}") + `,"bls_to_execution_changes":[],"blob_kzg_commitments":[]}`
	case v >= ForkCapella:
		return strings.TrimSuffix(payload, "}") + `,"bls_to_execution_changes":[]}`
	default:
		return payload
	}
}

func TestDecodeBodyJSON_MinimalShapes(t *testing.T) {
	for _, v := range []ForkVariant{ForkBellatrix, ForkCapella, ForkDeneb} {
		t.Run(v.String(), func(t *testing.T) {
			body, err := DecodeBodyJSON([]byte(minimalBodyJSON(v)), v)
			if err != nil {
				t.Fatalf("DecodeBodyJSON() error = %v", err)
			}
			if body.Variant() != v {
				t.Errorf("Variant() = %v, want %v", body.Variant(), v)
			}
			if body.ExecutionPayload.Variant() != v {
				t.Errorf("payload Variant() = %v, want %v", body.ExecutionPayload.Variant(), v)
			}
		})
	}
}

func TestDecodeBodyJSON_GatedFieldPresence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		v    ForkVariant
	}{
		{
			"withdrawals before capella",
			`{"execution_payload":{"withdrawals":[]}}`,
			ForkBellatrix,
		},
		{
			"bls changes before capella",
			`{"execution_payload":{},"bls_to_execution_changes":[]}`,
			ForkBellatrix,
		},
		{
			"capella without withdrawals",
			`{"execution_payload":{},"bls_to_execution_changes":[]}`,
			ForkCapella,
		},
		{
			"capella without bls changes",
			`{"execution_payload":{"withdrawals":[]}}`,
			ForkCapella,
		},
		{
			"capella with blob commitments",
			minimalBodyJSON(ForkDeneb),
			ForkCapella,
		},
		{
			"deneb without blob gas",
			`{"execution_payload":{"withdrawals":[]},"bls_to_execution_changes":[],"blob_kzg_commitments":[]}`,
			ForkDeneb,
		},
		{
			"deneb without blob commitments",
			minimalBodyJSON(ForkCapella),
			ForkDeneb,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeBodyJSON([]byte(tt.in), tt.v); err == nil {
				t.Error("mismatched gated fields accepted")
			}
		})
	}
}

func TestDecodeBodyJSON_UnknownVariant(t *testing.T) {
	if _, err := DecodeBodyJSON([]byte(`{}`), ForkUnknown); !errors.Is(err, ErrUnsupportedForkVariant) {
		t.Errorf("DecodeBodyJSON(ForkUnknown) error = %v, want ErrUnsupportedForkVariant", err)
	}
}

func TestDecodeBodyJSON_PayloadLimits(t *testing.T) {
	longExtra := fmt.Sprintf(`{"execution_payload":{"extra_data":"0x%s"}}`, strings.Repeat("00", MaxExtraDataBytes+1))
	if _, err := DecodeBodyJSON([]byte(longExtra), ForkBellatrix); err == nil {
		t.Error("oversized extra_data accepted")
	}

	manyWithdrawals := fmt.Sprintf(`{"execution_payload":{"withdrawals":%s},"bls_to_execution_changes":[]}`,
		string(mustJSON(t, make([]Withdrawal, MaxWithdrawals+1))))
	if _, err := DecodeBodyJSON([]byte(manyWithdrawals), ForkCapella); err == nil {
		t.Error("oversized withdrawals list accepted")
	}
}

func TestDecodeBlockJSON(t *testing.T) {
	in := fmt.Sprintf(`{
		"slot": "4000000",
		"proposer_index": "11",
		"parent_root": %s,
		"state_root": %s,
		"body": %s
	}`, mustJSON(t, Root{1}), mustJSON(t, Root{2}), minimalBodyJSON(ForkCapella))

	block, err := DecodeBlockJSON([]byte(in), ForkCapella)
	if err != nil {
		t.Fatalf("DecodeBlockJSON() error = %v", err)
	}
	if block.Slot != 4000000 {
		t.Errorf("slot = %d, want 4000000", block.Slot)
	}
	if block.ProposerIndex != 11 {
		t.Errorf("proposer index = %d, want 11", block.ProposerIndex)
	}
	if block.ParentRoot != (Root{1}) || block.StateRoot != (Root{2}) {
		t.Error("roots not carried over")
	}
	if block.Body.Variant() != ForkCapella {
		t.Errorf("body variant = %v, want capella", block.Body.Variant())
	}
}

func TestDecodeBlockJSON_UnknownField(t *testing.T) {
	in := fmt.Sprintf(`{"slot":"1","body":%s,"signature":"0x00"}`, minimalBodyJSON(ForkBellatrix))
	if _, err := DecodeBlockJSON([]byte(in), ForkBellatrix); err == nil {
		t.Error("block with unknown field accepted")
	}
}

func TestBeaconBlock_JSONRoundTrip(t *testing.T) {
	in := fmt.Sprintf(`{"slot":"77","proposer_index":"3","parent_root":%s,"state_root":%s,"body":%s}`,
		mustJSON(t, Root{9}), mustJSON(t, Root{8}), minimalBodyJSON(ForkDeneb))

	first, err := DecodeBlockJSON([]byte(in), ForkDeneb)
	if err != nil {
		t.Fatalf("DecodeBlockJSON() error = %v", err)
	}

	out1, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	second, err := DecodeBlockJSON(out1, ForkDeneb)
	if err != nil {
		t.Fatalf("DecodeBlockJSON(re-encoded) error = %v", err)
	}
	out2, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("Marshal(second) error = %v", err)
	}
	if !bytes.Equal(out1, out2) {
		t.Error("block JSON encoding is not stable across a round trip")
	}
}

func TestExecutionPayload_MarshalJSON_UnknownVariant(t *testing.T) {
	var p ExecutionPayload
	if _, err := json.Marshal(p); err == nil {
		t.Error("zero-variant payload marshaled")
	}
}

func TestAttestation_JSONRoundTrip(t *testing.T) {
	bits := bitfield.NewBitlist(128)
	bits.SetBitAt(0, true)
	bits.SetBitAt(127, true)
	want := Attestation{
		AggregationBits: bits,
		Data: AttestationData{
			Slot:            123,
			Index:           4,
			BeaconBlockRoot: Root{5},
			Source:          Checkpoint{Epoch: 2, Root: Root{6}},
			Target:          Checkpoint{Epoch: 3, Root: Root{7}},
		},
	}
	want.Signature[0] = 0x0c

	var got Attestation
	if err := json.Unmarshal(mustJSON(t, want), &got); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if got.AggregationBits.Count() != 2 || got.Data != want.Data || got.Signature != want.Signature {
		t.Error("attestation did not round trip")
	}
}

func TestAttestation_UnmarshalJSON_BadBits(t *testing.T) {
	data := mustJSON(t, AttestationData{})

	var a Attestation
	empty := fmt.Sprintf(`{"aggregation_bits":"0x","data":%s,"signature":"0x%s"}`, data, strings.Repeat("00", 96))
	if err := json.Unmarshal([]byte(empty), &a); err == nil {
		t.Error("attestation with empty bits accepted")
	}

	huge := mustJSON(t, attestationJSON{AggregationBits: []byte(bitfield.NewBitlist(MaxValidatorsPerCommittee + 1))})
	if err := json.Unmarshal(huge, &a); err == nil {
		t.Error("attestation with oversized bitlist accepted")
	}
}

func TestDeposit_UnmarshalJSON_ProofLength(t *testing.T) {
	var want Deposit
	for i := range want.Proof {
		want.Proof[i] = Root{byte(i)}
	}
	want.Data.Amount = 32000000000

	var got Deposit
	if err := json.Unmarshal(mustJSON(t, want), &got); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if got != want {
		t.Error("deposit did not round trip")
	}

	short := mutateJSON(t, mustJSON(t, want), "proof", make([]Root, DepositProofLength-1))
	if err := json.Unmarshal(short, &got); err == nil {
		t.Error("deposit with short proof accepted")
	}
}
