package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/geanlabs/lantern/fork"
	"github.com/geanlabs/lantern/types"
)

// Beacon REST API paths for the light-client protocol.
const (
	bootstrapPath        = "/eth/v1/beacon/light_client/bootstrap/"
	updatesPath          = "/eth/v1/beacon/light_client/updates"
	finalityUpdatePath   = "/eth/v1/beacon/light_client/finality_update"
	optimisticUpdatePath = "/eth/v1/beacon/light_client/optimistic_update"
	blocksPath           = "/eth/v2/beacon/blocks/"
)

// Responses larger than this are rejected rather than buffered. A full
// 128-update range is a few tens of megabytes of verbose JSON.
const maxResponseBytes = 1 << 27

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// BaseURL is the beacon node's REST endpoint, e.g. "https://host:5052".
	BaseURL string

	// Schedule resolves slots to fork variants when decoding blocks.
	Schedule *fork.Schedule

	// Client is the underlying HTTP client. Defaults to one with a
	// 30-second timeout.
	Client *http.Client
}

// HTTPClient talks to a beacon node's REST API. It is safe for
// concurrent use.
type HTTPClient struct {
	base     string
	schedule *fork.Schedule
	hc       *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient validates the config and returns a client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rpc: base URL is required")
	}
	if cfg.Schedule == nil {
		return nil, fmt.Errorf("rpc: fork schedule is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("rpc: parse base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("rpc: base URL scheme %q is not http or https", parsed.Scheme)
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		schedule: cfg.Schedule,
		hc:       hc,
	}, nil
}

// envelope is the REST wrapper around light-client payloads.
type envelope struct {
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// blockEnvelope is the wrapper around block responses, which carry two
// extra status fields the light client does not use.
type blockEnvelope struct {
	Version             string          `json:"version"`
	ExecutionOptimistic bool            `json:"execution_optimistic"`
	Finalized           bool            `json:"finalized"`
	Data                json.RawMessage `json:"data"`
}

// signedBlock is the block endpoint's data payload. The outer signature
// is not verified here; callers bind blocks to verified headers by root.
type signedBlock struct {
	Message   json.RawMessage `json:"message"`
	Signature types.Signature `json:"signature"`
}

// Bootstrap fetches the bootstrap anchored at a finalized block root.
func (c *HTTPClient) Bootstrap(ctx context.Context, root types.Root) (*types.Bootstrap, error) {
	body, err := c.get(ctx, bootstrapPath+root.String(), nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := decodeStrict(body, &env); err != nil {
		return nil, fmt.Errorf("rpc: decode bootstrap envelope: %w", err)
	}
	var bootstrap types.Bootstrap
	if err := decodeStrict(env.Data, &bootstrap); err != nil {
		return nil, fmt.Errorf("rpc: decode bootstrap: %w", err)
	}
	return &bootstrap, nil
}

// UpdatesByRange fetches up to count updates starting at the given period.
func (c *HTTPClient) UpdatesByRange(ctx context.Context, start types.SyncCommitteePeriod, count uint64) ([]types.Update, error) {
	if count == 0 || count > types.MaxUpdatesPerRequest {
		return nil, fmt.Errorf("rpc: update count %d out of range [1,%d]", count, types.MaxUpdatesPerRequest)
	}
	query := url.Values{}
	query.Set("start_period", fmt.Sprintf("%d", start))
	query.Set("count", fmt.Sprintf("%d", count))
	body, err := c.get(ctx, updatesPath, query)
	if err != nil {
		return nil, err
	}

	var envelopes []envelope
	if err := decodeStrict(body, &envelopes); err != nil {
		return nil, fmt.Errorf("rpc: decode updates envelope: %w", err)
	}
	if uint64(len(envelopes)) > count {
		return nil, fmt.Errorf("rpc: server returned %d updates, requested %d", len(envelopes), count)
	}
	updates := make([]types.Update, len(envelopes))
	for i, env := range envelopes {
		if err := decodeStrict(env.Data, &updates[i]); err != nil {
			return nil, fmt.Errorf("rpc: decode update %d of range: %w", i, err)
		}
	}
	return updates, nil
}

// FinalityUpdate fetches the latest finality update.
func (c *HTTPClient) FinalityUpdate(ctx context.Context) (*types.FinalityUpdate, error) {
	body, err := c.get(ctx, finalityUpdatePath, nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := decodeStrict(body, &env); err != nil {
		return nil, fmt.Errorf("rpc: decode finality update envelope: %w", err)
	}
	var update types.FinalityUpdate
	if err := decodeStrict(env.Data, &update); err != nil {
		return nil, fmt.Errorf("rpc: decode finality update: %w", err)
	}
	return &update, nil
}

// OptimisticUpdate fetches the latest optimistic update.
func (c *HTTPClient) OptimisticUpdate(ctx context.Context) (*types.OptimisticUpdate, error) {
	body, err := c.get(ctx, optimisticUpdatePath, nil)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := decodeStrict(body, &env); err != nil {
		return nil, fmt.Errorf("rpc: decode optimistic update envelope: %w", err)
	}
	var update types.OptimisticUpdate
	if err := decodeStrict(env.Data, &update); err != nil {
		return nil, fmt.Errorf("rpc: decode optimistic update: %w", err)
	}
	return &update, nil
}

// Block fetches the block at the given slot. The envelope's version
// string must agree with the fork schedule at the block's slot.
func (c *HTTPClient) Block(ctx context.Context, slot types.Slot) (*types.BeaconBlock, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s%d", blocksPath, slot), nil)
	if err != nil {
		return nil, err
	}
	var env blockEnvelope
	if err := decodeStrict(body, &env); err != nil {
		return nil, fmt.Errorf("rpc: decode block envelope: %w", err)
	}
	variant, err := types.ParseForkVariant(env.Version)
	if err != nil {
		return nil, fmt.Errorf("rpc: block envelope: %w", err)
	}

	var signed signedBlock
	if err := decodeStrict(env.Data, &signed); err != nil {
		return nil, fmt.Errorf("rpc: decode signed block: %w", err)
	}
	block, err := types.DecodeBlockJSON(signed.Message, variant)
	if err != nil {
		return nil, fmt.Errorf("rpc: decode block: %w", err)
	}
	if block.Slot != slot {
		return nil, fmt.Errorf("rpc: requested block at slot %d, got slot %d", slot, block.Slot)
	}
	scheduled, err := c.schedule.Resolve(block.Slot)
	if err != nil {
		return nil, fmt.Errorf("rpc: block: %w", err)
	}
	if scheduled != variant {
		return nil, fmt.Errorf("rpc: block envelope says %s but slot %d is in %s", variant, block.Slot, scheduled)
	}
	return block, nil
}

// get issues a GET and returns the response body. Non-2xx statuses become
// errors; 404 maps to ErrNotFound.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("rpc: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("rpc: read response for %s: %w", path, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: GET %s", ErrNotFound, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("rpc: GET %s: status %d: %s", path, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

// decodeStrict rejects unknown fields and trailing data.
func decodeStrict(data []byte, v any) error {
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

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
