// internal/blockchain/solbc/transaction/confirm.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

// ConfirmationStatus – исход гонки подтверждения.
type ConfirmationStatus int

const (
	StatusPending ConfirmationStatus = iota
	StatusProcessed
	StatusBlockheightExceeded
)

func (s ConfirmationStatus) String() string {
	switch s {
	case StatusProcessed:
		return "processed"
	case StatusBlockheightExceeded:
		return "blockheight_exceeded"
	default:
		return "pending"
	}
}

// Confirmation – результат Await.
type Confirmation struct {
	Signature solana.Signature
	Status    ConfirmationStatus
	// Slot и Err заполняются из уведомления подписки.
	Slot uint64
	Err  interface{}
	// Final – результат последнего запроса статуса после гонки (может быть nil).
	Final *blockchain.SignatureStatus
}

type confirmRPC interface {
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*blockchain.SignatureStatus, error)
}

// Confirmer гоняет подписку на подпись против опроса высоты блока.
type Confirmer struct {
	rpc          confirmRPC
	subscriber   blockchain.Subscriber
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewConfirmer(client confirmRPC, subscriber blockchain.Subscriber, pollInterval time.Duration, logger *zap.Logger) *Confirmer {
	if pollInterval <= 0 {
		pollInterval = DefaultBlockHeightPollInterval
	}
	return &Confirmer{
		rpc:          client,
		subscriber:   subscriber,
		pollInterval: pollInterval,
		logger:       logger.Named("tx-confirmer"),
	}
}

type raceOutcome struct {
	conf *Confirmation
	err  error
}

// Await ждет, пока подпись не будет обработана или высота блока не превысит
// lastValidBlockHeight. Проигравший наблюдатель останавливается, подписка
// всегда снимается до возврата.
func (c *Confirmer) Await(ctx context.Context, signature solana.Signature, lastValidBlockHeight uint64, commitment rpc.CommitmentType) (*Confirmation, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := c.subscriber.SignatureSubscribe(raceCtx, signature, commitment)
	if err != nil {
		return nil, fmt.Errorf("subscribe to signature %s: %w", signature, err)
	}
	defer sub.Unsubscribe()

	outcomes := make(chan raceOutcome, 2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, err := sub.Recv(raceCtx)
		if err != nil {
			outcomes <- raceOutcome{err: err}
			return
		}
		outcomes <- raceOutcome{conf: &Confirmation{Status: StatusProcessed, Slot: n.Slot, Err: n.Err}}
	}()

	go func() {
		defer wg.Done()
		if c.watchExpiry(raceCtx, lastValidBlockHeight, commitment) {
			outcomes <- raceOutcome{conf: &Confirmation{Status: StatusBlockheightExceeded}}
		}
	}()

	var won raceOutcome
	select {
	case won = <-outcomes:
	case <-ctx.Done():
		won = raceOutcome{err: ctx.Err()}
	}
	cancel()
	sub.Unsubscribe()
	wg.Wait()

	if won.err != nil {
		if errors.Is(won.err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, won.err
	}

	conf := won.conf
	conf.Signature = signature
	conf.Final = c.finalStatus(ctx, signature)

	c.logger.Debug("Confirmation race settled",
		zap.String("signature", signature.String()),
		zap.Stringer("status", conf.Status),
		zap.Uint64("slot", conf.Slot))

	return conf, nil
}

// watchExpiry возвращает true, как только высота блока превысила lastValidBlockHeight.
// Ошибки опроса считаются "еще не истекла".
func (c *Confirmer) watchExpiry(ctx context.Context, lastValidBlockHeight uint64, commitment rpc.CommitmentType) bool {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		height, err := c.rpc.GetBlockHeight(ctx, commitment)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			c.logger.Debug("GetBlockHeight failed", zap.Error(err))
		} else if height > lastValidBlockHeight {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (c *Confirmer) finalStatus(ctx context.Context, signature solana.Signature) *blockchain.SignatureStatus {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, signature)
	if err != nil {
		c.logger.Debug("Final signature status lookup failed",
			zap.String("signature", signature.String()),
			zap.Error(err))
		return nil
	}
	if len(statuses) == 0 {
		return nil
	}
	return statuses[0]
}

var commitmentRank = map[string]int{
	string(rpc.CommitmentProcessed): 1,
	string(rpc.CommitmentConfirmed): 2,
	string(rpc.CommitmentFinalized): 3,
}

func commitmentReached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	got, ok := commitmentRank[string(status)]
	if !ok {
		return false
	}
	need, ok := commitmentRank[string(want)]
	if !ok {
		need = commitmentRank[string(rpc.CommitmentConfirmed)]
	}
	return got >= need
}

// PollingSubscriber следит за подписями опросом getSignatureStatuses.
// Используется, когда websocket недоступен.
type PollingSubscriber struct {
	rpc      confirmRPC
	interval time.Duration
	logger   *zap.Logger
}

func NewPollingSubscriber(client confirmRPC, interval time.Duration, logger *zap.Logger) *PollingSubscriber {
	if interval <= 0 {
		interval = DefaultBlockHeightPollInterval
	}
	return &PollingSubscriber{rpc: client, interval: interval, logger: logger.Named("status-poller")}
}

var errSlotUpdatesUnsupported = errors.New("slot updates are not available without a websocket")

func (p *PollingSubscriber) SignatureSubscribe(_ context.Context, signature solana.Signature, commitment rpc.CommitmentType) (blockchain.SignatureSubscription, error) {
	return &pollingSignatureSub{
		parent:     p,
		signature:  signature,
		commitment: commitment,
		stop:       make(chan struct{}),
	}, nil
}

func (p *PollingSubscriber) SlotsUpdatesSubscribe(context.Context) (blockchain.SlotUpdateSubscription, error) {
	return nil, errSlotUpdatesUnsupported
}

type pollingSignatureSub struct {
	parent     *PollingSubscriber
	signature  solana.Signature
	commitment rpc.CommitmentType
	stop       chan struct{}
	once       sync.Once
}

func (s *pollingSignatureSub) Recv(ctx context.Context) (*blockchain.SignatureNotification, error) {
	ticker := time.NewTicker(s.parent.interval)
	defer ticker.Stop()

	for {
		statuses, err := s.parent.rpc.GetSignatureStatuses(ctx, s.signature)
		if err == nil && len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil || commitmentReached(st.ConfirmationStatus, s.commitment) {
				return &blockchain.SignatureNotification{Slot: st.Slot, Err: st.Err}, nil
			}
		} else if err != nil && ctx.Err() == nil {
			s.parent.logger.Debug("Signature status poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.stop:
			return nil, context.Canceled
		case <-ticker.C:
		}
	}
}

func (s *pollingSignatureSub) Unsubscribe() {
	s.once.Do(func() { close(s.stop) })
}

var _ blockchain.Subscriber = (*PollingSubscriber)(nil)
