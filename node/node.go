// Package node composes the verifier into a running daemon: bootstrap or
// restore, backfill committee rotations, then follow the chain head,
// persisting progress and publishing relay batches as finality advances.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/geanlabs/lantern/bls"
	"github.com/geanlabs/lantern/clock"
	"github.com/geanlabs/lantern/config"
	"github.com/geanlabs/lantern/consensus"
	"github.com/geanlabs/lantern/fork"
	"github.com/geanlabs/lantern/merkle"
	"github.com/geanlabs/lantern/p2p"
	"github.com/geanlabs/lantern/relay"
	"github.com/geanlabs/lantern/rpc"
	"github.com/geanlabs/lantern/store"
	"github.com/geanlabs/lantern/store/memory"
	"github.com/geanlabs/lantern/store/pebble"
	"github.com/geanlabs/lantern/types"
)

// Config holds node configuration.
type Config struct {
	Network config.Network

	// Checkpoint overrides the stored checkpoint and the network default.
	Checkpoint types.Root

	// RPCURL overrides the network's consensus RPC endpoint.
	RPCURL string

	// DataDir is where the pebble store lives. Empty runs in memory.
	DataDir string

	// GossipEnabled joins the gossip overlay for update ingest and
	// batch publishing.
	GossipEnabled bool
	ListenAddrs   []string
	Bootnodes     []string

	// RelayInterval is the minimum spacing between relay batch
	// publishes. Zero publishes on every finality advance.
	RelayInterval time.Duration

	Logger *slog.Logger
}

type Node struct {
	cfg      Config
	schedule *fork.Schedule
	clk      *clock.SlotClock
	manager  *consensus.Manager
	db       store.Store
	client   rpc.Client
	gossip   *p2p.Service
	pub      relay.Publisher
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// persistMu orders snapshot-and-save so a slow save cannot
	// overwrite a newer one.
	persistMu sync.Mutex

	relayMu        sync.Mutex
	pendingUpdates []types.Update
	lastFinality   *types.FinalityUpdate
	lastOptimistic *types.OptimisticUpdate
	lastPublish    time.Time
}

// New wires a node from the configuration. It does not start syncing.
func New(ctx context.Context, cfg Config) (*Node, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	schedule, err := cfg.Network.Schedule()
	if err != nil {
		cancel()
		return nil, err
	}
	clk := clock.New(cfg.Network.GenesisTime)

	manager, err := consensus.NewManager(consensus.Config{
		Schedule:              schedule,
		GenesisValidatorsRoot: cfg.Network.GenesisValidatorsRoot,
		Verifier:              bls.NewVerifier(),
		// One slot of headroom tolerates clock skew against the
		// update producer.
		CurrentSlot: func() types.Slot { return clk.CurrentSlot() + 1 },
		Logger:      logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create manager: %w", err)
	}

	var db store.Store
	if cfg.DataDir != "" {
		db, err = pebble.New(cfg.DataDir)
		if err != nil {
			cancel()
			return nil, err
		}
	} else {
		db = memory.New()
	}

	rpcURL := cfg.RPCURL
	if rpcURL == "" {
		rpcURL = cfg.Network.ConsensusRPC
	}
	client, err := rpc.NewHTTPClient(rpc.HTTPConfig{
		BaseURL:  rpcURL,
		Schedule: schedule,
	})
	if err != nil {
		cancel()
		db.Close()
		return nil, err
	}

	node := &Node{
		cfg:      cfg,
		schedule: schedule,
		clk:      clk,
		manager:  manager,
		db:       db,
		client:   client,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	if cfg.GossipEnabled {
		if err := node.setupGossip(ctx); err != nil {
			cancel()
			db.Close()
			return nil, err
		}
	}

	return node, nil
}

func (n *Node) setupGossip(ctx context.Context) error {
	host, err := p2p.NewHost(p2p.HostConfig{ListenAddrs: n.cfg.ListenAddrs})
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}

	bootnodeAddrs := n.cfg.Bootnodes
	if len(bootnodeAddrs) == 0 {
		bootnodeAddrs = n.cfg.Network.Bootnodes
	}
	bootnodes, err := p2p.ParseBootnodes(bootnodeAddrs)
	if err != nil {
		host.Close()
		return err
	}

	digest := n.schedule.DigestAt(n.clk.CurrentSlot().Epoch(), n.cfg.Network.GenesisValidatorsRoot)
	// TODO: resubscribe with the new digest when a scheduled fork
	// activates mid-run.
	gossip, err := p2p.NewService(ctx, p2p.ServiceConfig{
		Host:   host,
		Digest: digest,
		Handlers: &p2p.MessageHandlers{
			OnFinalityUpdate:   n.handleGossipFinality,
			OnOptimisticUpdate: n.handleGossipOptimistic,
			OnBatch:            n.handleGossipBatch,
		},
		Bootnodes: bootnodes,
		Logger:    n.logger,
	})
	if err != nil {
		host.Close()
		return fmt.Errorf("create gossip service: %w", err)
	}
	n.gossip = gossip
	n.pub = gossip
	return nil
}

// Start begins syncing and following the chain.
func (n *Node) Start() {
	if n.gossip != nil {
		n.gossip.Start()
	}
	n.wg.Add(1)
	go n.run()

	n.logger.Info("node started",
		"network", n.cfg.Network.Name,
		"genesis_time", n.cfg.Network.GenesisTime,
	)
}

// Stop gracefully shuts down the node.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()
	if n.gossip != nil {
		n.gossip.Stop()
	}
	if err := n.db.Close(); err != nil {
		n.logger.Error("close store", "error", err)
	}
	n.logger.Info("node stopped")
}

const syncRetryInterval = time.Duration(types.SecondsPerSlot) * time.Second

func (n *Node) run() {
	defer n.wg.Done()

	for {
		err := n.sync(n.ctx)
		if err == nil {
			break
		}
		if n.ctx.Err() != nil {
			return
		}
		n.logger.Error("sync failed, retrying", "error", err, "retry_in", syncRetryInterval)
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(syncRetryInterval):
		}
	}

	n.follow()
}

// sync brings the manager from cold start to the chain head: restore or
// bootstrap, then backfill committee rotations period by period.
func (n *Node) sync(ctx context.Context) error {
	if n.manager.Phase() == consensus.PhaseUninitialized {
		if err := n.establishTrust(ctx); err != nil {
			return err
		}
	}

	if err := n.backfill(ctx); err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	if err := n.refresh(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	n.logger.Info("synced to chain head",
		"finalized_slot", n.manager.FinalizedHeader().Slot,
		"optimistic_slot", n.manager.Head().Slot,
		"period", n.manager.FinalizedPeriod(),
	)
	return nil
}

// establishTrust restores persisted state when available, otherwise
// bootstraps from the configured checkpoint.
func (n *Node) establishTrust(ctx context.Context) error {
	state, ok, err := n.db.LoadState()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if ok {
		return n.manager.Restore(*state)
	}

	checkpoint, err := n.pickCheckpoint()
	if err != nil {
		return err
	}
	bootstrap, err := n.client.Bootstrap(ctx, checkpoint)
	if err != nil {
		return fmt.Errorf("fetch bootstrap: %w", err)
	}
	if err := n.manager.Bootstrap(checkpoint, bootstrap); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return n.persist()
}

// pickCheckpoint prefers the explicit override, then the stored
// checkpoint, then the network default.
func (n *Node) pickCheckpoint() (types.Root, error) {
	if !n.cfg.Checkpoint.IsZero() {
		return n.cfg.Checkpoint, nil
	}
	stored, ok, err := n.db.Checkpoint()
	if err != nil {
		return types.Root{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if ok && !stored.IsZero() {
		return stored, nil
	}
	if !n.cfg.Network.DefaultCheckpoint.IsZero() {
		return n.cfg.Network.DefaultCheckpoint, nil
	}
	return types.Root{}, errors.New("no trusted checkpoint: pass one explicitly")
}

// backfill applies committee-rotation updates until the verified period
// catches up with wall-clock time.
func (n *Node) backfill(ctx context.Context) error {
	for {
		current := n.manager.FinalizedPeriod()
		target := n.clk.CurrentPeriod()
		if current >= target {
			return nil
		}

		count := uint64(target-current) + 1
		if count > types.MaxUpdatesPerRequest {
			count = types.MaxUpdatesPerRequest
		}
		updates, err := n.client.UpdatesByRange(ctx, current, count)
		if err != nil {
			return err
		}

		applied := 0
		for i := range updates {
			if _, err := n.manager.ApplyUpdate(&updates[i]); err != nil {
				if errors.Is(err, consensus.ErrStaleUpdate) {
					continue
				}
				return fmt.Errorf("apply update for period %d: %w",
					updates[i].AttestedHeader.Slot.SyncPeriod(), err)
			}
			n.queueForRelay(updates[i])
			applied++
		}
		n.logger.Info("backfilled updates",
			"from_period", current,
			"applied", applied,
			"finalized_slot", n.manager.FinalizedHeader().Slot,
		)
		if applied == 0 {
			// The endpoint has nothing newer; finality/optimistic
			// updates cover the rest.
			return nil
		}
		if err := n.persist(); err != nil {
			return err
		}
	}
}

// refresh pulls the latest finality and optimistic updates, and a
// rotation update when the pending committee is missing.
func (n *Node) refresh(ctx context.Context) error {
	if n.manager.NextCommittee() == nil {
		updates, err := n.client.UpdatesByRange(ctx, n.manager.FinalizedPeriod(), 1)
		if err != nil {
			return err
		}
		for i := range updates {
			if _, err := n.manager.ApplyUpdate(&updates[i]); err != nil {
				if errors.Is(err, consensus.ErrStaleUpdate) {
					continue
				}
				return fmt.Errorf("apply rotation update: %w", err)
			}
			n.queueForRelay(updates[i])
		}
	}

	advanced := false

	finality, err := n.client.FinalityUpdate(ctx)
	if err != nil {
		return err
	}
	outcome, err := n.manager.ApplyFinalityUpdate(finality)
	switch {
	case err == nil:
		n.rememberFinality(finality)
		advanced = outcome.FinalizedUpdated
	case errors.Is(err, consensus.ErrStaleUpdate):
	default:
		return fmt.Errorf("apply finality update: %w", err)
	}

	optimistic, err := n.client.OptimisticUpdate(ctx)
	if err != nil {
		return err
	}
	_, err = n.manager.ApplyOptimisticUpdate(optimistic)
	switch {
	case err == nil:
		n.rememberOptimistic(optimistic)
	case errors.Is(err, consensus.ErrStaleUpdate):
	default:
		return fmt.Errorf("apply optimistic update: %w", err)
	}

	if advanced {
		n.afterAdvance(ctx)
	}
	n.checkStaleness()
	return nil
}

// follow ticks once per slot, refreshing the verified view.
func (n *Node) follow() {
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(n.clk.UntilNextSlot()):
		}
		if err := n.refresh(n.ctx); err != nil {
			if n.ctx.Err() != nil {
				return
			}
			n.logger.Warn("refresh failed", "error", err)
		}
	}
}

// afterAdvance persists the new finalized view and publishes a relay
// batch when the publish interval allows.
func (n *Node) afterAdvance(ctx context.Context) {
	if err := n.persist(); err != nil {
		n.logger.Error("persist verified state", "error", err)
	}
	n.logger.Info("finality advanced",
		"finalized_slot", n.manager.FinalizedHeader().Slot,
		"checkpoint", n.manager.Checkpoint().Short(),
	)
	n.maybePublish(ctx)
}

func (n *Node) persist() error {
	n.persistMu.Lock()
	defer n.persistMu.Unlock()
	state := n.manager.State()
	if err := n.db.SaveState(&state); err != nil {
		return err
	}
	return n.db.SaveCheckpoint(n.manager.Checkpoint())
}

// checkStaleness warns when the optimistic head lags a full
// sync-committee period behind wall clock. The verified view stays
// served; consumers decide their own staleness policy.
func (n *Node) checkStaleness() {
	head := n.manager.Head().Slot
	now := n.clk.CurrentSlot()
	if now > head && uint64(now-head) > types.SlotsPerSyncPeriod {
		n.logger.Warn("optimistic head is stale",
			"head_slot", head,
			"current_slot", now,
		)
	}
}

func (n *Node) queueForRelay(update types.Update) {
	n.relayMu.Lock()
	defer n.relayMu.Unlock()
	n.pendingUpdates = append(n.pendingUpdates, update)
	if uint64(len(n.pendingUpdates)) > types.MaxUpdatesPerRequest {
		n.pendingUpdates = n.pendingUpdates[1:]
	}
}

func (n *Node) rememberFinality(u *types.FinalityUpdate) {
	n.relayMu.Lock()
	defer n.relayMu.Unlock()
	if n.lastFinality == nil || u.FinalizedHeader.Slot > n.lastFinality.FinalizedHeader.Slot {
		n.lastFinality = u
	}
}

func (n *Node) rememberOptimistic(u *types.OptimisticUpdate) {
	n.relayMu.Lock()
	defer n.relayMu.Unlock()
	if n.lastOptimistic == nil || u.AttestedHeader.Slot > n.lastOptimistic.AttestedHeader.Slot {
		n.lastOptimistic = u
	}
}

// maybePublish pushes a relay batch when a publisher is wired and the
// configured interval has elapsed.
func (n *Node) maybePublish(ctx context.Context) {
	if n.pub == nil {
		return
	}

	n.relayMu.Lock()
	if time.Since(n.lastPublish) < n.cfg.RelayInterval {
		n.relayMu.Unlock()
		return
	}
	batch := types.UpdatesBatch{Updates: n.pendingUpdates}
	if n.lastFinality != nil {
		batch.FinalityUpdate = *n.lastFinality
	}
	if n.lastOptimistic != nil {
		batch.OptimisticUpdate = *n.lastOptimistic
	}
	n.pendingUpdates = nil
	n.lastPublish = time.Now()
	n.relayMu.Unlock()

	frame, err := relay.EncodeBatch(&batch)
	if err != nil {
		n.logger.Error("encode relay batch", "error", err)
		return
	}
	if err := n.pub.Publish(ctx, frame); err != nil {
		n.logger.Error("publish relay batch", "error", err)
		return
	}
	n.logger.Info("published relay batch",
		"updates", len(batch.Updates),
		"finalized_slot", batch.FinalityUpdate.FinalizedHeader.Slot,
	)
}

// handleGossipFinality applies a finality update received from a peer.
func (n *Node) handleGossipFinality(ctx context.Context, update *types.FinalityUpdate, from peer.ID) error {
	outcome, err := n.manager.ApplyFinalityUpdate(update)
	if errors.Is(err, consensus.ErrStaleUpdate) || errors.Is(err, consensus.ErrNotBootstrapped) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("finality update from %s: %w", from, err)
	}
	n.rememberFinality(update)
	if outcome.FinalizedUpdated {
		n.afterAdvance(ctx)
	}
	return nil
}

// handleGossipOptimistic applies an optimistic update received from a peer.
func (n *Node) handleGossipOptimistic(ctx context.Context, update *types.OptimisticUpdate, from peer.ID) error {
	_, err := n.manager.ApplyOptimisticUpdate(update)
	if errors.Is(err, consensus.ErrStaleUpdate) || errors.Is(err, consensus.ErrNotBootstrapped) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("optimistic update from %s: %w", from, err)
	}
	n.rememberOptimistic(update)
	return nil
}

// handleGossipBatch applies a relayed batch: rotations first, then the
// finality and optimistic heads. Does not republish.
func (n *Node) handleGossipBatch(ctx context.Context, batch *types.UpdatesBatch, from peer.ID) error {
	advanced := false
	for i := range batch.Updates {
		if _, err := n.manager.ApplyUpdate(&batch.Updates[i]); err != nil {
			if errors.Is(err, consensus.ErrStaleUpdate) || errors.Is(err, consensus.ErrNotBootstrapped) {
				continue
			}
			return fmt.Errorf("batch update from %s: %w", from, err)
		}
		advanced = true
	}

	// A zero signature slot marks an absent embedded update.
	if batch.FinalityUpdate.SignatureSlot != 0 {
		outcome, err := n.manager.ApplyFinalityUpdate(&batch.FinalityUpdate)
		if err == nil && outcome.FinalizedUpdated {
			advanced = true
		} else if err != nil && !errors.Is(err, consensus.ErrStaleUpdate) && !errors.Is(err, consensus.ErrNotBootstrapped) {
			return fmt.Errorf("batch finality update from %s: %w", from, err)
		}
	}

	if batch.OptimisticUpdate.SignatureSlot != 0 {
		if _, err := n.manager.ApplyOptimisticUpdate(&batch.OptimisticUpdate); err != nil {
			if !errors.Is(err, consensus.ErrStaleUpdate) && !errors.Is(err, consensus.ErrNotBootstrapped) {
				return fmt.Errorf("batch optimistic update from %s: %w", from, err)
			}
		}
	}

	if advanced {
		if err := n.persist(); err != nil {
			n.logger.Error("persist verified state", "error", err)
		}
	}
	return nil
}

// FetchExecutionPayload returns the execution payload of the block at a
// verified slot, after checking the block hashes to the verified header.
func (n *Node) FetchExecutionPayload(ctx context.Context, slot types.Slot) (*types.ExecutionPayload, error) {
	state := n.manager.State()

	var expected types.Root
	switch slot {
	case state.FinalizedHeader.Slot:
		expected = merkle.HeaderRoot(&state.FinalizedHeader)
	case state.OptimisticHeader.Slot:
		expected = merkle.HeaderRoot(&state.OptimisticHeader)
	default:
		return nil, fmt.Errorf("no verified header at slot %d", slot)
	}

	block, err := n.client.Block(ctx, slot)
	if err != nil {
		return nil, err
	}
	root, err := merkle.BlockRoot(block)
	if err != nil {
		return nil, fmt.Errorf("hash fetched block: %w", err)
	}
	if root != expected {
		return nil, fmt.Errorf("block at slot %d hashes to %s, verified header is %s",
			slot, root.Short(), expected.Short())
	}
	return &block.Body.ExecutionPayload, nil
}

// Head returns the verified optimistic head.
func (n *Node) Head() types.Header {
	return n.manager.Head()
}

// FinalizedHeader returns the verified finalized header.
func (n *Node) FinalizedHeader() types.Header {
	return n.manager.FinalizedHeader()
}

// CurrentSlot returns the wall-clock slot.
func (n *Node) CurrentSlot() types.Slot {
	return n.clk.CurrentSlot()
}

// PeerCount returns the number of connected gossip peers, or zero when
// gossip is disabled.
func (n *Node) PeerCount() int {
	if n.gossip == nil {
		return 0
	}
	return n.gossip.PeerCount()
}
