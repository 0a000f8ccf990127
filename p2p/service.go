package p2p

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/geanlabs/lantern/relay"
	"github.com/geanlabs/lantern/types"
)

// Service runs the gossip overlay: it joins the digest-scoped topics,
// feeds inbound messages to the configured handlers, and publishes the
// node's own updates and batches.
type Service struct {
	host     host.Host
	pubsub   *pubsub.PubSub
	handlers *MessageHandlers
	logger   *slog.Logger

	finalityTopic   *pubsub.Topic
	finalitySub     *pubsub.Subscription
	optimisticTopic *pubsub.Topic
	optimisticSub   *pubsub.Subscription
	batchTopic      *pubsub.Topic
	batchSub        *pubsub.Subscription

	// Bootnodes that failed initial connection, to be retried.
	failedBootnodes []peer.AddrInfo

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ relay.Publisher = (*Service)(nil)

// ServiceConfig holds configuration for the gossip service.
type ServiceConfig struct {
	Host host.Host

	// Digest scopes the topic names to the active fork.
	Digest [4]byte

	Handlers  *MessageHandlers
	Bootnodes []peer.AddrInfo
	Logger    *slog.Logger
}

// NewService joins and subscribes the overlay topics and connects to the
// configured bootnodes.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ps, err := NewGossipSub(ctx, cfg.Host)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	finalityTopic, err := ps.Join(FinalityUpdateTopic(cfg.Digest))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join finality topic: %w", err)
	}
	optimisticTopic, err := ps.Join(OptimisticUpdateTopic(cfg.Digest))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join optimistic topic: %w", err)
	}
	batchTopic, err := ps.Join(BatchTopic(cfg.Digest))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("join batch topic: %w", err)
	}

	finalitySub, err := finalityTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe finality topic: %w", err)
	}
	optimisticSub, err := optimisticTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe optimistic topic: %w", err)
	}
	batchSub, err := batchTopic.Subscribe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe batch topic: %w", err)
	}

	svc := &Service{
		host:            cfg.Host,
		pubsub:          ps,
		handlers:        cfg.Handlers,
		logger:          logger,
		finalityTopic:   finalityTopic,
		finalitySub:     finalitySub,
		optimisticTopic: optimisticTopic,
		optimisticSub:   optimisticSub,
		batchTopic:      batchTopic,
		batchSub:        batchSub,
		ctx:             ctx,
		cancel:          cancel,
	}

	for _, pi := range cfg.Bootnodes {
		if err := cfg.Host.Connect(ctx, pi); err != nil {
			logger.Warn("failed to connect to bootnode", "peer", pi.ID, "error", err)
			svc.failedBootnodes = append(svc.failedBootnodes, pi)
		} else {
			logger.Info("connected to bootnode", "peer", pi.ID)
		}
	}

	return svc, nil
}

// Start launches the subscription loops.
func (s *Service) Start() {
	s.wg.Add(3)
	go s.processFinalityUpdates()
	go s.processOptimisticUpdates()
	go s.processBatches()

	if len(s.failedBootnodes) > 0 {
		s.wg.Add(1)
		go s.retryBootnodes()
	}

	s.logger.Info("gossip service started",
		"peer_id", s.host.ID(),
		"addrs", s.host.Addrs(),
	)
}

// Stop shuts down the gossip service.
func (s *Service) Stop() {
	s.cancel()
	s.finalitySub.Cancel()
	s.optimisticSub.Cancel()
	s.batchSub.Cancel()
	s.wg.Wait()
	s.host.Close()
	s.logger.Info("gossip service stopped")
}

// PublishFinalityUpdate publishes a verified finality update.
func (s *Service) PublishFinalityUpdate(ctx context.Context, update *types.FinalityUpdate) error {
	data, err := update.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal finality update: %w", err)
	}
	return s.finalityTopic.Publish(ctx, CompressMessage(data))
}

// PublishOptimisticUpdate publishes a verified optimistic update.
func (s *Service) PublishOptimisticUpdate(ctx context.Context, update *types.OptimisticUpdate) error {
	data, err := update.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("marshal optimistic update: %w", err)
	}
	return s.optimisticTopic.Publish(ctx, CompressMessage(data))
}

// Publish sends an already-framed relay batch to the batch topic.
func (s *Service) Publish(ctx context.Context, frame []byte) error {
	return s.batchTopic.Publish(ctx, frame)
}

// PeerCount returns the number of connected peers.
func (s *Service) PeerCount() int {
	return len(s.host.Network().Peers())
}

const bootnodeRetryInterval = 30 * time.Second

// retryBootnodes periodically retries connecting to failed bootnodes.
func (s *Service) retryBootnodes() {
	defer s.wg.Done()

	ticker := time.NewTicker(bootnodeRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			var remaining []peer.AddrInfo
			for _, pi := range s.failedBootnodes {
				if err := s.host.Connect(s.ctx, pi); err != nil {
					s.logger.Debug("bootnode reconnect failed", "peer", pi.ID, "error", err)
					remaining = append(remaining, pi)
				} else {
					s.logger.Info("reconnected to bootnode", "peer", pi.ID)
				}
			}
			s.failedBootnodes = remaining
			if len(s.failedBootnodes) == 0 {
				return
			}
		}
	}
}

func (s *Service) processFinalityUpdates() {
	defer s.wg.Done()

	for {
		msg, err := s.finalitySub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("finality subscription error", "error", err)
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		if s.handlers != nil {
			if err := s.handlers.HandleFinalityMessage(s.ctx, msg.Data, msg.ReceivedFrom); err != nil {
				s.logger.Error("handle finality update error", "error", err)
			}
		}
	}
}

func (s *Service) processOptimisticUpdates() {
	defer s.wg.Done()

	for {
		msg, err := s.optimisticSub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("optimistic subscription error", "error", err)
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		if s.handlers != nil {
			if err := s.handlers.HandleOptimisticMessage(s.ctx, msg.Data, msg.ReceivedFrom); err != nil {
				s.logger.Error("handle optimistic update error", "error", err)
			}
		}
	}
}

func (s *Service) processBatches() {
	defer s.wg.Done()

	for {
		msg, err := s.batchSub.Next(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("batch subscription error", "error", err)
			continue
		}
		if msg.ReceivedFrom == s.host.ID() {
			continue
		}
		if s.handlers != nil {
			if err := s.handlers.HandleBatchMessage(s.ctx, msg.Data, msg.ReceivedFrom); err != nil {
				s.logger.Error("handle batch error", "error", err)
			}
		}
	}
}
