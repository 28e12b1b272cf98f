// internal/blockchain/types.go
package blockchain

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TransactionOptions определяет опции для отправки транзакций.
type TransactionOptions struct {
	SkipPreflight       bool
	PreflightCommitment rpc.CommitmentType
}

// Blockhash хранит blockhash и высоту блока, после которой транзакция истекает.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// SimulationResult представляет результат симуляции транзакции.
type SimulationResult struct {
	Err           interface{}
	Logs          []string
	UnitsConsumed uint64
}

// SignatureStatus представляет статус подписи, как его видит кластер.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64
	Err                interface{}
	ConfirmationStatus rpc.ConfirmationStatusType
}

// ClusterNode описывает узел кластера и его TPU-адрес (host:port), если он известен.
type ClusterNode struct {
	Pubkey solana.PublicKey
	TPU    string
}

// EpochInfo содержит параметры текущей эпохи.
type EpochInfo struct {
	Epoch        uint64
	AbsoluteSlot uint64
	SlotIndex    uint64
	SlotsInEpoch uint64
}

// EndSlot возвращает первый слот следующей эпохи.
func (e EpochInfo) EndSlot() uint64 {
	return e.AbsoluteSlot - e.SlotIndex + e.SlotsInEpoch
}

// Client определяет общий интерфейс для взаимодействия с блокчейном.
type Client interface {
	// Получить последний blockhash вместе с lastValidBlockHeight.
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*Blockhash, error)
	// Получить текущую высоту блока.
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	// Получить текущий слот.
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	// Получить статусы подписей транзакций.
	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*SignatureStatus, error)
	// Отправить сериализованную транзакцию.
	SendRawTransaction(ctx context.Context, raw []byte, opts TransactionOptions) (solana.Signature, error)
	// Симулировать транзакцию.
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, commitment rpc.CommitmentType) (*SimulationResult, error)
	// Получить логи подтвержденной транзакции.
	GetTransactionLogs(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) ([]string, error)
	// Получить аккаунты программы.
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	// Получить список узлов кластера.
	GetClusterNodes(ctx context.Context) ([]ClusterNode, error)
	// Получить лидеров слотов начиная со start.
	GetSlotLeaders(ctx context.Context, start, limit uint64) ([]solana.PublicKey, error)
	// Получить информацию об эпохе.
	GetEpochInfo(ctx context.Context, commitment rpc.CommitmentType) (*EpochInfo, error)
	// Получить баланс аккаунта.
	GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment rpc.CommitmentType) (uint64, error)
}

// SignatureNotification приходит, когда кластер обработал транзакцию.
type SignatureNotification struct {
	Slot uint64
	Err  interface{}
}

// SignatureSubscription одноразовая подписка на подпись.
type SignatureSubscription interface {
	Recv(ctx context.Context) (*SignatureNotification, error)
	Unsubscribe()
}

// SlotUpdate описывает событие слота (firstShredReceived, completed, ...).
type SlotUpdate struct {
	Slot uint64
	Type string
}

// SlotUpdateSubscription поток событий слотов.
type SlotUpdateSubscription interface {
	Recv(ctx context.Context) (*SlotUpdate, error)
	Unsubscribe()
}

// Subscriber открывает push-подписки кластера.
type Subscriber interface {
	SignatureSubscribe(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) (SignatureSubscription, error)
	SlotsUpdatesSubscribe(ctx context.Context) (SlotUpdateSubscription, error)
}
