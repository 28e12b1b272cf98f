package tpu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

const (
	DefaultRefreshInterval        = time.Second
	DefaultClusterRefreshInterval = 5 * time.Minute

	slotUpdateCompleted = "completed"
)

type ServiceConfig struct {
	RefreshInterval        time.Duration
	ClusterRefreshInterval time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.ClusterRefreshInterval <= 0 {
		c.ClusterRefreshInterval = DefaultClusterRefreshInterval
	}
	return c
}

// LeaderService поддерживает актуальные оценку текущего слота и расписание лидеров.
type LeaderService struct {
	rpc    RPC
	recent *RecentLeaderSlots
	cache  *LeaderCache
	config ServiceConfig
	logger *zap.Logger

	slotSub     blockchain.SlotUpdateSubscription
	liveUpdates atomic.Bool

	// используется только горутиной обновления
	lastClusterRefresh time.Time
	// конец эпохи, для которого уже был запрос epoch info вблизи границы
	epochRefreshedFor uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// LoadLeaderService bootstraps the slot window and the leader cache. When
// subscriber is non-nil it also subscribes to slot updates; otherwise the
// refresh loop polls the processed slot. Call Start to begin refreshing.
func LoadLeaderService(ctx context.Context, client RPC, subscriber blockchain.Subscriber, config ServiceConfig, logger *zap.Logger) (*LeaderService, error) {
	logger = logger.Named("leader-service")

	startSlot, err := client.GetSlot(ctx, rpc.CommitmentProcessed)
	if err != nil {
		return nil, fmt.Errorf("failed to get current slot: %w", err)
	}

	cache, err := LoadLeaderCache(ctx, client, startSlot, logger)
	if err != nil {
		return nil, err
	}

	s := &LeaderService{
		rpc:                client,
		recent:             NewRecentLeaderSlots(startSlot),
		cache:              cache,
		config:             config.withDefaults(),
		logger:             logger,
		lastClusterRefresh: time.Now(),
	}

	if subscriber != nil {
		sub, err := subscriber.SlotsUpdatesSubscribe(ctx)
		if err != nil {
			logger.Warn("Slot updates unavailable, polling current slot instead", zap.Error(err))
		} else {
			s.slotSub = sub
			s.liveUpdates.Store(true)
		}
	}

	logger.Info("Leader service loaded",
		zap.Uint64("start_slot", startSlot),
		zap.Uint64("last_slot", cache.LastSlot()),
		zap.Bool("live_updates", s.liveUpdates.Load()))

	return s, nil
}

// Start launches the slot reader and the refresh loop. They run until ctx is
// cancelled or Close is called.
func (s *LeaderService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	s.cancel = cancel
	s.group = g

	if s.slotSub != nil {
		g.Go(func() error {
			s.readSlotUpdates(ctx)
			return nil
		})
	}
	g.Go(func() error {
		s.run(ctx)
		return nil
	})
}

// Close stops background work and waits for it to finish.
func (s *LeaderService) Close() {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.slotSub != nil {
		s.slotSub.Unsubscribe()
	}
	if g != nil {
		_ = g.Wait()
	}
}

// EstimatedCurrentSlot returns the outlier-filtered current slot estimate.
func (s *LeaderService) EstimatedCurrentSlot() (uint64, error) {
	return s.recent.EstimatedCurrentSlot()
}

// LeaderTpuSockets returns the distinct TPU sockets of the next fanout leaders.
func (s *LeaderService) LeaderTpuSockets(fanout int) []string {
	slot, err := s.recent.EstimatedCurrentSlot()
	if err != nil {
		slot = s.cache.FirstSlot()
	}
	return s.cache.LeaderSockets(slot, fanout)
}

// Cache exposes the underlying leader cache for inspection.
func (s *LeaderService) Cache() *LeaderCache {
	return s.cache
}

func (s *LeaderService) readSlotUpdates(ctx context.Context) {
	for {
		update, err := s.slotSub.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Slot update subscription ended, polling current slot instead", zap.Error(err))
				s.liveUpdates.Store(false)
			}
			return
		}
		slot := update.Slot
		if update.Type == slotUpdateCompleted {
			slot++
		}
		s.recent.RecordSlot(slot)
	}
}

func (s *LeaderService) run(ctx context.Context) {
	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh runs one tick: slot poll (without live updates), cluster sockets,
// epoch info, then the leader schedule.
func (s *LeaderService) refresh(ctx context.Context) {
	if !s.liveUpdates.Load() {
		if slot, err := s.rpc.GetSlot(ctx, rpc.CommitmentProcessed); err != nil {
			s.logger.Debug("Failed to poll current slot", zap.Error(err))
		} else {
			s.recent.RecordSlot(slot)
		}
	}

	if time.Since(s.lastClusterRefresh) >= s.config.ClusterRefreshInterval {
		nodes, err := s.rpc.GetClusterNodes(ctx)
		if err != nil {
			s.logger.Warn("Failed to refresh cluster nodes", zap.Error(err))
		} else {
			s.cache.updateSockets(nodes)
			s.lastClusterRefresh = time.Now()
		}
	}

	estimated, err := s.recent.EstimatedCurrentSlot()
	if err != nil {
		return
	}

	if s.epochRefreshDue(estimated) {
		epoch, err := s.rpc.GetEpochInfo(ctx, rpc.CommitmentProcessed)
		if err != nil {
			s.logger.Warn("Failed to refresh epoch info", zap.Error(err))
		} else {
			s.epochRefreshedFor = s.cache.EpochEndSlot()
			s.cache.updateEpoch(*epoch)
			s.logger.Debug("Epoch info refreshed", zap.Uint64("epoch_end_slot", epoch.EndSlot()))
		}
	}

	if estimated+MaxFanoutSlots >= s.cache.LastSlot() {
		leaders, err := s.rpc.GetSlotLeaders(ctx, estimated, leaderFetchLimit(s.cache.SlotsInEpoch()))
		if err != nil {
			s.logger.Warn("Failed to refresh slot leaders", zap.Uint64("slot", estimated), zap.Error(err))
			return
		}
		s.cache.updateLeaders(estimated, leaders)
		s.logger.Debug("Leader schedule refreshed",
			zap.Uint64("first_slot", estimated),
			zap.Int("leaders", len(leaders)))
	}
}

// epochRefreshDue: epoch info is fetched once when the estimate comes within
// MaxFanoutSlots of the cached epoch end, and again every tick only after the
// estimate has passed that end without the cache moving to the next epoch.
func (s *LeaderService) epochRefreshDue(estimated uint64) bool {
	end := s.cache.EpochEndSlot()
	if estimated+MaxFanoutSlots < end {
		return false
	}
	return s.epochRefreshedFor != end || estimated >= end
}
