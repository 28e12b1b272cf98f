// internal/blockchain/solbc/transaction/monitor.go
package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Status – снимок состояния подписи для вывода пользователю.
type Status struct {
	Signature     string
	Status        string
	Confirmations uint64
	Slot          uint64
	Error         string
	Timestamp     time.Time
}

type Monitor struct {
	client confirmRPC
	logger *zap.Logger
}

func NewMonitor(client confirmRPC, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger.Named("tx-monitor"),
	}
}

// GetTransactionStatus возвращает текущий статус подписи; неизвестная подпись – "pending".
func (m *Monitor) GetTransactionStatus(ctx context.Context, signature solana.Signature) (*Status, error) {
	statuses, err := m.client.GetSignatureStatuses(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction status: %w", err)
	}

	if len(statuses) == 0 || statuses[0] == nil {
		return &Status{
			Signature: signature.String(),
			Status:    "pending",
			Timestamp: time.Now(),
		}, nil
	}

	status := statuses[0]
	txStatus := &Status{
		Signature: signature.String(),
		Timestamp: time.Now(),
		Slot:      status.Slot,
	}

	if status.Confirmations != nil {
		txStatus.Confirmations = *status.Confirmations
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		txStatus.Status = "finalized"
	case rpc.ConfirmationStatusConfirmed:
		txStatus.Status = "confirmed"
	case rpc.ConfirmationStatusProcessed:
		txStatus.Status = "processed"
	default:
		txStatus.Status = "pending"
	}

	if status.Err != nil {
		txStatus.Error = fmt.Sprintf("%v", status.Err)
		txStatus.Status = "failed"
	}

	m.logger.Debug("Signature status",
		zap.String("signature", txStatus.Signature),
		zap.String("status", txStatus.Status),
		zap.Uint64("slot", txStatus.Slot))

	return txStatus, nil
}
