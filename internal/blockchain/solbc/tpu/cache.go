package tpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

// MaxFanoutSlots is the upper bound for how many upcoming leaders a send may target.
const MaxFanoutSlots = 100

// RPC – методы кластера, нужные кэшу лидеров и сервису.
type RPC interface {
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetEpochInfo(ctx context.Context, commitment rpc.CommitmentType) (*blockchain.EpochInfo, error)
	GetSlotLeaders(ctx context.Context, start, limit uint64) ([]solana.PublicKey, error)
	GetClusterNodes(ctx context.Context) ([]blockchain.ClusterNode, error)
}

// LeaderCache хранит расписание лидеров начиная с firstSlot и TPU-адреса узлов.
type LeaderCache struct {
	mu sync.RWMutex

	firstSlot    uint64
	leaders      []solana.PublicKey
	sockets      map[solana.PublicKey]string
	slotsInEpoch uint64
	epochEndSlot uint64

	logger *zap.Logger
}

// NewLeaderCache builds a cache from already fetched data.
func NewLeaderCache(firstSlot uint64, epoch blockchain.EpochInfo, leaders []solana.PublicKey, nodes []blockchain.ClusterNode, logger *zap.Logger) *LeaderCache {
	return &LeaderCache{
		firstSlot:    firstSlot,
		leaders:      leaders,
		sockets:      clusterSockets(nodes),
		slotsInEpoch: epoch.SlotsInEpoch,
		epochEndSlot: epoch.EndSlot(),
		logger:       logger.Named("leader-cache"),
	}
}

// LoadLeaderCache fetches epoch info, the leader schedule from startSlot and the
// cluster TPU sockets.
func LoadLeaderCache(ctx context.Context, client RPC, startSlot uint64, logger *zap.Logger) (*LeaderCache, error) {
	epoch, err := client.GetEpochInfo(ctx, rpc.CommitmentProcessed)
	if err != nil {
		return nil, fmt.Errorf("failed to get epoch info: %w", err)
	}

	leaders, err := client.GetSlotLeaders(ctx, startSlot, leaderFetchLimit(epoch.SlotsInEpoch))
	if err != nil {
		return nil, fmt.Errorf("failed to get slot leaders: %w", err)
	}

	nodes, err := client.GetClusterNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster nodes: %w", err)
	}

	return NewLeaderCache(startSlot, *epoch, leaders, nodes, logger), nil
}

func leaderFetchLimit(slotsInEpoch uint64) uint64 {
	return min(2*MaxFanoutSlots, slotsInEpoch)
}

func clusterSockets(nodes []blockchain.ClusterNode) map[solana.PublicKey]string {
	sockets := make(map[solana.PublicKey]string, len(nodes))
	for _, n := range nodes {
		if n.TPU != "" {
			sockets[n.Pubkey] = n.TPU
		}
	}
	return sockets
}

func (c *LeaderCache) FirstSlot() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firstSlot
}

// LastSlot is the last slot covered by the cached schedule.
func (c *LeaderCache) LastSlot() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.leaders) == 0 {
		return c.firstSlot
	}
	return c.firstSlot + uint64(len(c.leaders)) - 1
}

func (c *LeaderCache) SlotsInEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slotsInEpoch
}

func (c *LeaderCache) EpochEndSlot() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochEndSlot
}

// SlotLeader returns the leader of slot when slot is inside the cached range.
func (c *LeaderCache) SlotLeader(slot uint64) (solana.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if slot < c.firstSlot {
		return solana.PublicKey{}, false
	}
	idx := slot - c.firstSlot
	if idx >= uint64(len(c.leaders)) {
		return solana.PublicKey{}, false
	}
	return c.leaders[idx], true
}

// LeaderSockets checks the leaders of up to fanout consecutive slots starting at
// fromSlot and returns their distinct TPU sockets in first-seen order.
func (c *LeaderCache) LeaderSockets(fromSlot uint64, fanout int) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	start := uint64(0)
	if fromSlot > c.firstSlot {
		start = fromSlot - c.firstSlot
	}
	if start >= uint64(len(c.leaders)) {
		c.logger.Debug("Estimated slot is past the cached schedule",
			zap.Uint64("slot", fromSlot),
			zap.Uint64("first_slot", c.firstSlot),
			zap.Int("leaders", len(c.leaders)))
		return nil
	}

	seen := make(map[string]struct{}, fanout)
	sockets := make([]string, 0, fanout)
	checked := 0
	for i := start; i < uint64(len(c.leaders)) && checked < fanout; i++ {
		checked++
		leader := c.leaders[i]
		socket, ok := c.sockets[leader]
		if !ok {
			c.logger.Debug("Leader has no TPU socket", zap.String("leader", leader.String()))
			continue
		}
		if _, dup := seen[socket]; dup {
			continue
		}
		seen[socket] = struct{}{}
		sockets = append(sockets, socket)
	}
	return sockets
}

func (c *LeaderCache) updateLeaders(firstSlot uint64, leaders []solana.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.firstSlot = firstSlot
	c.leaders = leaders
}

func (c *LeaderCache) updateSockets(nodes []blockchain.ClusterNode) {
	sockets := clusterSockets(nodes)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sockets = sockets
}

func (c *LeaderCache) updateEpoch(epoch blockchain.EpochInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slotsInEpoch = epoch.SlotsInEpoch
	c.epochEndSlot = epoch.EndSlot()
}
