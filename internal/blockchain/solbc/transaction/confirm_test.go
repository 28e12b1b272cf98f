package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

func TestConfirmer_SignatureWins(t *testing.T) {
	client := newFakeRPC()
	sub := &fakeSubscriber{notify: landAt(500, 20*time.Millisecond)}
	c := NewConfirmer(client, sub, 10*time.Millisecond, zap.NewNop())

	sig := solana.Signature{9}
	conf, err := c.Await(context.Background(), sig, 1000, rpc.CommitmentConfirmed)
	require.NoError(t, err)

	assert.Equal(t, StatusProcessed, conf.Status)
	assert.Equal(t, uint64(500), conf.Slot)
	assert.Nil(t, conf.Err)
	assert.Equal(t, sig, conf.Signature)
	assert.Equal(t, 0, sub.activeCount(), "subscription must be removed")
	assert.Equal(t, 1, client.statusCalls, "exactly one final status lookup")
}

func TestConfirmer_ExpiryWins(t *testing.T) {
	client := newFakeRPC()
	client.setHeight(1001)
	client.statuses[solana.Signature{7}] = &blockchain.SignatureStatus{Slot: 42}
	sub := &fakeSubscriber{notify: never}
	c := NewConfirmer(client, sub, 10*time.Millisecond, zap.NewNop())

	conf, err := c.Await(context.Background(), solana.Signature{7}, 1000, rpc.CommitmentConfirmed)
	require.NoError(t, err)

	assert.Equal(t, StatusBlockheightExceeded, conf.Status)
	require.NotNil(t, conf.Final)
	assert.Equal(t, uint64(42), conf.Final.Slot)
	assert.Equal(t, 0, sub.activeCount())
	assert.Equal(t, 1, client.statusCalls)
}

func TestConfirmer_ExpiryAfterSeveralPolls(t *testing.T) {
	client := newFakeRPC()
	sub := &fakeSubscriber{notify: never}
	c := NewConfirmer(client, sub, 5*time.Millisecond, zap.NewNop())

	go func() {
		time.Sleep(30 * time.Millisecond)
		client.setHeight(2000)
	}()

	conf, err := c.Await(context.Background(), solana.Signature{1}, 1000, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusBlockheightExceeded, conf.Status)
	assert.Equal(t, 0, sub.activeCount())
}

func TestConfirmer_HeightErrorsDoNotExpire(t *testing.T) {
	client := newFakeRPC()
	client.heightErr = errors.New("node down")
	sub := &fakeSubscriber{notify: landAt(77, 40*time.Millisecond)}
	c := NewConfirmer(client, sub, 5*time.Millisecond, zap.NewNop())

	conf, err := c.Await(context.Background(), solana.Signature{2}, 1000, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, conf.Status)
	assert.Equal(t, uint64(77), conf.Slot)
}

func TestConfirmer_SubscribeError(t *testing.T) {
	client := newFakeRPC()
	sub := &fakeSubscriber{subErr: errors.New("ws closed")}
	c := NewConfirmer(client, sub, 5*time.Millisecond, zap.NewNop())

	_, err := c.Await(context.Background(), solana.Signature{3}, 1000, rpc.CommitmentConfirmed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ws closed")
	assert.Equal(t, 0, client.statusCalls)
}

func TestConfirmer_ContextCancelled(t *testing.T) {
	client := newFakeRPC()
	sub := &fakeSubscriber{notify: never}
	c := NewConfirmer(client, sub, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Await(ctx, solana.Signature{4}, 1000, rpc.CommitmentConfirmed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, sub.activeCount())
}

func TestPollingSubscriber_WaitsForCommitment(t *testing.T) {
	client := newFakeRPC()
	sig := solana.Signature{5}
	client.statuses[sig] = &blockchain.SignatureStatus{Slot: 10, ConfirmationStatus: rpc.ConfirmationStatusProcessed}

	p := NewPollingSubscriber(client, 5*time.Millisecond, zap.NewNop())
	sub, err := p.SignatureSubscribe(context.Background(), sig, rpc.CommitmentConfirmed)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	go func() {
		time.Sleep(20 * time.Millisecond)
		client.mu.Lock()
		client.statuses[sig] = &blockchain.SignatureStatus{Slot: 11, ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
		client.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n.Slot)
}

func TestPollingSubscriber_UnsubscribeStopsRecv(t *testing.T) {
	p := NewPollingSubscriber(newFakeRPC(), 5*time.Millisecond, zap.NewNop())
	sub, err := p.SignatureSubscribe(context.Background(), solana.Signature{6}, rpc.CommitmentConfirmed)
	require.NoError(t, err)

	go func() {
		time.Sleep(15 * time.Millisecond)
		sub.Unsubscribe()
	}()

	_, err = sub.Recv(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommitmentReached(t *testing.T) {
	tests := []struct {
		status rpc.ConfirmationStatusType
		want   rpc.CommitmentType
		ok     bool
	}{
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed, true},
		{rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed, false},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed, true},
		{rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized, false},
		{rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed, true},
		{"", rpc.CommitmentProcessed, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, commitmentReached(tt.status, tt.want), "%s vs %s", tt.status, tt.want)
	}
}
