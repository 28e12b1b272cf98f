package tpu

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

type MockRPC struct {
	mock.Mock
}

func (m *MockRPC) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	args := m.Called(ctx, commitment)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockRPC) GetEpochInfo(ctx context.Context, commitment rpc.CommitmentType) (*blockchain.EpochInfo, error) {
	args := m.Called(ctx, commitment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*blockchain.EpochInfo), args.Error(1)
}

func (m *MockRPC) GetSlotLeaders(ctx context.Context, start, limit uint64) ([]solana.PublicKey, error) {
	args := m.Called(ctx, start, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]solana.PublicKey), args.Error(1)
}

func (m *MockRPC) GetClusterNodes(ctx context.Context) ([]blockchain.ClusterNode, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]blockchain.ClusterNode), args.Error(1)
}

func keys(n int) []solana.PublicKey {
	out := make([]solana.PublicKey, n)
	for i := range out {
		out[i] = solana.NewWallet().PublicKey()
	}
	return out
}

func TestLoadLeaderCache(t *testing.T) {
	ids := keys(3)

	tests := []struct {
		name         string
		slotsInEpoch uint64
		wantLimit    uint64
	}{
		{"large epoch caps at twice the max fanout", 432000, 2 * MaxFanoutSlots},
		{"tiny epoch caps at epoch length", 32, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := new(MockRPC)
			mc.On("GetEpochInfo", mock.Anything, rpc.CommitmentProcessed).
				Return(&blockchain.EpochInfo{AbsoluteSlot: 500, SlotIndex: 100, SlotsInEpoch: tt.slotsInEpoch}, nil)
			mc.On("GetSlotLeaders", mock.Anything, uint64(500), tt.wantLimit).
				Return([]solana.PublicKey{ids[0], ids[1], ids[2]}, nil)
			mc.On("GetClusterNodes", mock.Anything).
				Return([]blockchain.ClusterNode{{Pubkey: ids[0], TPU: "10.0.0.1:8003"}, {Pubkey: ids[1]}}, nil)

			cache, err := LoadLeaderCache(context.Background(), mc, 500, zap.NewNop())
			require.NoError(t, err)
			mc.AssertExpectations(t)

			assert.Equal(t, uint64(500), cache.FirstSlot())
			assert.Equal(t, uint64(502), cache.LastSlot())
			assert.Equal(t, tt.slotsInEpoch, cache.SlotsInEpoch())
			assert.Equal(t, 400+tt.slotsInEpoch, cache.EpochEndSlot())
			assert.Equal(t, []string{"10.0.0.1:8003"}, cache.LeaderSockets(500, 3))
		})
	}
}

func TestLoadLeaderCache_Error(t *testing.T) {
	mc := new(MockRPC)
	mc.On("GetEpochInfo", mock.Anything, rpc.CommitmentProcessed).Return(nil, errors.New("boom"))

	_, err := LoadLeaderCache(context.Background(), mc, 1, zap.NewNop())
	assert.ErrorContains(t, err, "boom")
}

func TestLeaderCache_SlotLeader(t *testing.T) {
	ids := keys(3)
	cache := NewLeaderCache(100, blockchain.EpochInfo{}, ids, nil, zap.NewNop())

	for i, id := range ids {
		got, ok := cache.SlotLeader(100 + uint64(i))
		assert.True(t, ok)
		assert.Equal(t, id, got)
	}

	_, ok := cache.SlotLeader(99)
	assert.False(t, ok, "before first slot")
	_, ok = cache.SlotLeader(103)
	assert.False(t, ok, "past last slot")
}

func TestLeaderCache_LeaderSockets(t *testing.T) {
	ids := keys(5)
	a, b, c, d, e := ids[0], ids[1], ids[2], ids[3], ids[4]
	leaders := []solana.PublicKey{a, a, b, b, c, d, e}
	nodes := []blockchain.ClusterNode{
		{Pubkey: a, TPU: "1.1.1.1:8003"},
		{Pubkey: b, TPU: "2.2.2.2:8003"},
		{Pubkey: c, TPU: "3.3.3.3:8003"},
		{Pubkey: d},
		{Pubkey: e, TPU: "5.5.5.5:8003"},
	}
	cache := NewLeaderCache(1000, blockchain.EpochInfo{}, leaders, nodes, zap.NewNop())

	tests := []struct {
		name   string
		from   uint64
		fanout int
		want   []string
	}{
		{"exactly fanout leaders checked", 1000, 5, []string{"1.1.1.1:8003", "2.2.2.2:8003", "3.3.3.3:8003"}},
		{"dedupes repeated leaders", 1000, 2, []string{"1.1.1.1:8003"}},
		{"skips leaders without sockets", 1000, 100, []string{"1.1.1.1:8003", "2.2.2.2:8003", "3.3.3.3:8003", "5.5.5.5:8003"}},
		{"starts at the given slot", 1004, 2, []string{"3.3.3.3:8003"}},
		{"slot before cache starts at first", 10, 1, []string{"1.1.1.1:8003"}},
		{"slot past cache", 2000, 5, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cache.LeaderSockets(tt.from, tt.fanout)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)

			seen := map[string]bool{}
			for _, s := range got {
				assert.False(t, seen[s], "duplicate socket %s", s)
				seen[s] = true
			}
		})
	}
}
