// internal/blockchain/solbc/ws.go
package solbc

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

// WSClient адаптирует websocket клиент solana-go к blockchain.Subscriber.
type WSClient struct {
	conn   *ws.Client
	logger *zap.Logger
}

// DialWS открывает websocket соединение с RPC узлом.
func DialWS(ctx context.Context, url string, logger *zap.Logger) (*WSClient, error) {
	conn, err := ws.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect websocket %s: %w", url, err)
	}
	return &WSClient{conn: conn, logger: logger.Named("solbc-ws")}, nil
}

// SignatureSubscribe подписывается на единственное уведомление по подписи.
func (c *WSClient) SignatureSubscribe(_ context.Context, signature solana.Signature, commitment solanarpc.CommitmentType) (blockchain.SignatureSubscription, error) {
	sub, err := c.conn.SignatureSubscribe(signature, commitment)
	if err != nil {
		return nil, fmt.Errorf("signatureSubscribe: %w", err)
	}
	return &signatureSub{sub: sub}, nil
}

// SlotsUpdatesSubscribe подписывается на поток событий слотов.
func (c *WSClient) SlotsUpdatesSubscribe(_ context.Context) (blockchain.SlotUpdateSubscription, error) {
	sub, err := c.conn.SlotsUpdatesSubscribe()
	if err != nil {
		return nil, fmt.Errorf("slotsUpdatesSubscribe: %w", err)
	}
	return &slotsSub{sub: sub}, nil
}

// Close закрывает соединение.
func (c *WSClient) Close() {
	c.conn.Close()
}

type signatureSub struct {
	sub  *ws.SignatureSubscription
	once sync.Once
}

func (s *signatureSub) Recv(ctx context.Context) (*blockchain.SignatureNotification, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("signature subscription closed")
	}
	return &blockchain.SignatureNotification{
		Slot: res.Context.Slot,
		Err:  res.Value.Err,
	}, nil
}

func (s *signatureSub) Unsubscribe() {
	s.once.Do(s.sub.Unsubscribe)
}

type slotsSub struct {
	sub  *ws.SlotsUpdatesSubscription
	once sync.Once
}

func (s *slotsSub) Recv(ctx context.Context) (*blockchain.SlotUpdate, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("slots updates subscription closed")
	}
	return &blockchain.SlotUpdate{
		Slot: res.Slot,
		Type: string(res.Type),
	}, nil
}

func (s *slotsSub) Unsubscribe() {
	s.once.Do(s.sub.Unsubscribe)
}

var _ blockchain.Subscriber = (*WSClient)(nil)
