package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/transaction"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subjects)
}

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)

	var mu sync.Mutex
	var got []int
	sub := bus.SubscribeFunc(TransactionConfirmed, func(_ context.Context, e Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(*TransactionEvent).Index)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(&TransactionEvent{BaseEvent: BaseEvent{EventType: TransactionConfirmed}, Index: i}))
	}
	require.NoError(t, bus.Shutdown(context.Background()))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	sub.Unsubscribe()
	assert.ErrorIs(t, bus.Publish(&TransactionEvent{}), ErrBusClosed)
}

func TestBus_PublishSyncJoinsErrors(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	defer bus.Shutdown(context.Background())

	boom := errors.New("boom")
	bus.SubscribeFunc(TransactionFailed, func(context.Context, Event) error { return boom })

	err := bus.PublishSync(context.Background(), &TransactionEvent{BaseEvent: BaseEvent{EventType: TransactionFailed}})
	assert.ErrorIs(t, err, boom)
}

func TestNATSPublisher_ForwardsObserverEvents(t *testing.T) {
	bus := NewBus(zap.NewNop(), 16)
	conn := &fakeConn{}
	NewNATSPublisher(conn, "candy", zap.NewNop()).Attach(bus)

	obs := NewBusObserver(bus)
	sig := solana.Signature{1, 2, 3}
	obs.OnSuccess(transaction.Result{Index: 0, Signature: sig, Slot: 99}, 500)
	obs.OnFailure(transaction.Failure{Index: 1, Err: transaction.ErrBlockheightExceeded}, 500)

	require.NoError(t, bus.Shutdown(context.Background()))
	require.Equal(t, 2, conn.count())
	assert.Equal(t, []string{"candy.transaction.confirmed", "candy.transaction.failed"}, conn.subjects)

	var confirmed TransactionEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &confirmed))
	assert.Equal(t, sig.String(), confirmed.Signature)
	assert.Equal(t, uint64(99), confirmed.Slot)
	assert.Equal(t, uint64(500), confirmed.ExpiryHeight)

	var failed TransactionEvent
	require.NoError(t, json.Unmarshal(conn.payloads[1], &failed))
	assert.Equal(t, 1, failed.Index)
	assert.NotEmpty(t, failed.Error)
}

func TestBusObserver_FailureCarriesSignature(t *testing.T) {
	sig := solana.Signature{9, 9, 9}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"block height exceeded", &transaction.BlockheightExceededError{Signature: sig, LastValidBlockHeight: 10}, sig.String()},
		{"program error", &transaction.ProgramExecutionError{Signature: sig, Message: "custom program error: 0x1"}, sig.String()},
		{"simulation error", &transaction.SimulationError{Signature: sig, Err: "AccountNotFound"}, sig.String()},
		{"wrapped transaction error", fmt.Errorf("withdraw: %w", &transaction.TransactionError{Signature: sig, Err: "boom"}), sig.String()},
		{"never submitted", transaction.ErrTransactionNotSigned, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus(zap.NewNop(), 4)
			var got *TransactionEvent
			bus.SubscribeFunc(TransactionFailed, func(_ context.Context, e Event) error {
				got = e.(*TransactionEvent)
				return nil
			})

			NewBusObserver(bus).OnFailure(transaction.Failure{Index: 2, Err: tt.err}, 77)
			require.NoError(t, bus.Shutdown(context.Background()))

			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Signature)
			assert.Equal(t, 2, got.Index)
		})
	}
}

func TestNATSPublisher_PublishError(t *testing.T) {
	conn := &fakeConn{err: errors.New("no responders")}
	p := NewNATSPublisher(conn, "candy", zap.NewNop())

	err := p.Handle(context.Background(), &TransactionEvent{BaseEvent: BaseEvent{EventType: TransactionFailed, EventTime: time.Now()}})
	assert.ErrorContains(t, err, "candy.transaction.failed")
}
