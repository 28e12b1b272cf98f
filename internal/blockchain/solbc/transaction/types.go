// internal/blockchain/solbc/transaction/types.go
package transaction

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

// Значения по умолчанию для отправки и подтверждения.
const (
	DefaultRebroadcastInterval     = 500 * time.Millisecond
	DefaultSendTimeout             = 30 * time.Second
	DefaultBlockHeightPollInterval = time.Second
	DefaultInitialSendMaxElapsed   = 5 * time.Second
)

type Config struct {
	// Commitment, на котором транзакция считается подтвержденной.
	Commitment rpc.CommitmentType
	// Как часто повторно отправлять те же байты.
	RebroadcastInterval time.Duration
	// Сколько времени вообще разрешено повторно отправлять.
	SendTimeout time.Duration
	// Как часто опрашивать высоту блока.
	BlockHeightPollInterval time.Duration
	// Бюджет backoff для первой отправки.
	InitialSendMaxElapsed time.Duration
}

func DefaultConfig() Config {
	return Config{
		Commitment:              rpc.CommitmentConfirmed,
		RebroadcastInterval:     DefaultRebroadcastInterval,
		SendTimeout:             DefaultSendTimeout,
		BlockHeightPollInterval: DefaultBlockHeightPollInterval,
		InitialSendMaxElapsed:   DefaultInitialSendMaxElapsed,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Commitment == "" {
		c.Commitment = d.Commitment
	}
	if c.RebroadcastInterval <= 0 {
		c.RebroadcastInterval = d.RebroadcastInterval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.BlockHeightPollInterval <= 0 {
		c.BlockHeightPollInterval = d.BlockHeightPollInterval
	}
	if c.InitialSendMaxElapsed <= 0 {
		c.InitialSendMaxElapsed = d.InitialSendMaxElapsed
	}
	return c
}

// SequenceType определяет порядок отправки транзакций пакета.
type SequenceType int

const (
	// Sequential ждет каждую транзакцию по порядку и продолжает после ошибок.
	Sequential SequenceType = iota
	// Parallel отправляет все сразу и собирает результаты в конце.
	Parallel
	// StopOnFailure ждет каждую транзакцию и останавливается на первой ошибке.
	StopOnFailure
)

func (s SequenceType) String() string {
	switch s {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	case StopOnFailure:
		return "stop-on-failure"
	default:
		return "unknown"
	}
}

// ParseSequenceType разбирает имя стратегии (пустая строка = Parallel).
func ParseSequenceType(s string) (SequenceType, bool) {
	switch s {
	case "", "parallel":
		return Parallel, true
	case "sequential":
		return Sequential, true
	case "stop-on-failure", "stoponfailure":
		return StopOnFailure, true
	}
	return Parallel, false
}

// Result – подтвержденная транзакция.
type Result struct {
	Index     int
	Signature solana.Signature
	Slot      uint64
}

// Failure – транзакция пакета, которая не подтвердилась.
type Failure struct {
	Index int
	Err   error
}

// BatchResult – итог отправки пакета. Частичный провал описывается здесь, а не ошибкой.
type BatchResult struct {
	// Attempted – число непустых групп, для которых была построена транзакция.
	Attempted int
	// Results – подтвержденные транзакции в порядке индексов.
	Results []Result
	// Failures – неудачные транзакции в порядке индексов.
	Failures []Failure
	// ExpiryHeight – lastValidBlockHeight общего blockhash.
	ExpiryHeight uint64
	// FailedIndex – индекс первой ошибки при StopOnFailure, иначе -1.
	FailedIndex int
}

// Succeeded сообщает, подтвердились ли все попытки.
func (r *BatchResult) Succeeded() bool {
	return len(r.Failures) == 0 && len(r.Results) == r.Attempted
}

// Wallet – внешний подписант, который платит комиссию.
type Wallet interface {
	// PublicKey возвращает ключ кошелька; ok=false, если кошелек не подключен.
	PublicKey() (key solana.PublicKey, ok bool)
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
	// SignAllTransactions может вернуть nil на позиции транзакции, которую кошелек отклонил.
	SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error)
}

// RPC – методы кластера, нужные отправителю.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*blockchain.Blockhash, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*blockchain.SignatureStatus, error)
	SendRawTransaction(ctx context.Context, raw []byte, opts blockchain.TransactionOptions) (solana.Signature, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction, commitment rpc.CommitmentType) (*blockchain.SimulationResult, error)
	GetTransactionLogs(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) ([]string, error)
}

// RawSender доставляет сериализованную транзакцию в кластер.
type RawSender interface {
	SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
}

// rpcRelay отправляет через RPC узел без preflight-симуляции.
type rpcRelay struct {
	rpc        RPC
	commitment rpc.CommitmentType
}

// NewRPCRelay возвращает RawSender поверх RPC sendTransaction.
func NewRPCRelay(client RPC, commitment rpc.CommitmentType) RawSender {
	return &rpcRelay{rpc: client, commitment: commitment}
}

func (r *rpcRelay) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	return r.rpc.SendRawTransaction(ctx, raw, blockchain.TransactionOptions{
		SkipPreflight:       true,
		PreflightCommitment: r.commitment,
	})
}
