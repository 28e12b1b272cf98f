// internal/blockchain/solbc/transaction/sender.go
package transaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc"
	solbcrpc "github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/rpc"
)

// Sender отправляет подписанные транзакции, повторяет их отправку и ждет
// подтверждения или истечения blockhash.
type Sender struct {
	rpc       RPC
	transport RawSender
	confirmer *Confirmer
	validator *Validator
	analyzer  *solbc.ErrorAnalyzer
	metrics   *Metrics
	config    Config
	logger    *zap.Logger
}

type Option func(*senderOptions)

type senderOptions struct {
	transport  RawSender
	subscriber blockchain.Subscriber
	metrics    *Metrics
}

// WithTransport заменяет отправку через RPC (например, на прямую отправку лидерам).
func WithTransport(t RawSender) Option {
	return func(o *senderOptions) { o.transport = t }
}

// WithSubscriber задает источник уведомлений о подписях (websocket).
// Без него статус подписи опрашивается через RPC.
func WithSubscriber(s blockchain.Subscriber) Option {
	return func(o *senderOptions) { o.subscriber = s }
}

func WithMetrics(m *Metrics) Option {
	return func(o *senderOptions) { o.metrics = m }
}

func NewSender(client RPC, config Config, logger *zap.Logger, opts ...Option) *Sender {
	config = config.withDefaults()
	logger = logger.Named("tx-sender")

	var o senderOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = NewRPCRelay(client, config.Commitment)
	}
	if o.subscriber == nil {
		o.subscriber = NewPollingSubscriber(client, config.BlockHeightPollInterval, logger)
	}

	return &Sender{
		rpc:       client,
		transport: o.transport,
		confirmer: NewConfirmer(client, o.subscriber, config.BlockHeightPollInterval, logger),
		validator: NewValidator(logger),
		analyzer:  solbc.NewErrorAnalyzer(logger),
		metrics:   o.metrics,
		config:    config,
		logger:    logger,
	}
}

// SendOptions настраивает SendInstructions.
type SendOptions struct {
	// Block – заранее полученный blockhash; если nil, запрашивается новый.
	Block *blockchain.Blockhash
	// IncludesFeePayer: комиссию платит первый из signers, кошелек не подписывает.
	IncludesFeePayer bool
	// BeforeSend вызывается после подписи, непосредственно перед отправкой.
	BeforeSend func()
}

// SendInstructions строит одну транзакцию из инструкций, подписывает ее и
// отправляет через SendSigned.
func (s *Sender) SendInstructions(ctx context.Context, wallet Wallet, instructions []solana.Instruction, signers []solana.PrivateKey, opts SendOptions) (*Result, error) {
	payer, ok := wallet.PublicKey()
	if !ok {
		return nil, ErrWalletNotConnected
	}
	if opts.IncludesFeePayer && len(signers) > 0 {
		payer = signers[0].PublicKey()
	}

	block := opts.Block
	if block == nil {
		var err error
		block, err = s.rpc.GetLatestBlockhash(ctx, s.config.Commitment)
		if err != nil {
			return nil, fmt.Errorf("failed to get blockhash: %w", err)
		}
	}

	tx, err := BuildTransaction(instructions, signers, payer, block.Hash)
	if err != nil {
		return nil, err
	}

	if !opts.IncludesFeePayer {
		tx, err = wallet.SignTransaction(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("wallet failed to sign transaction: %w", err)
		}
		if tx == nil {
			return nil, ErrTransactionNotSigned
		}
	}

	if opts.BeforeSend != nil {
		opts.BeforeSend()
	}

	return s.SendSigned(ctx, tx, block.LastValidBlockHeight)
}

// SendSigned отправляет подписанную транзакцию, повторяет отправку тех же байтов
// каждые RebroadcastInterval (не дольше SendTimeout) и ждет исхода гонки подтверждения.
func (s *Sender) SendSigned(ctx context.Context, tx *solana.Transaction, lastValidBlockHeight uint64) (*Result, error) {
	start := time.Now()

	if err := s.validator.ValidateTransaction(tx); err != nil {
		return nil, err
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	signature := tx.Signatures[0]
	logger := s.logger.With(zap.String("signature", signature.String()))

	if err := s.submit(ctx, raw, logger); err != nil {
		s.metrics.trackOutcome("send_failed", start)
		return nil, fmt.Errorf("failed to send transaction %s: %w", signature, err)
	}
	s.metrics.trackSubmitted()
	logger.Debug("Transaction submitted", zap.Uint64("last_valid_block_height", lastValidBlockHeight))

	rebroadcastCtx, stopRebroadcast := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.rebroadcast(rebroadcastCtx, raw, logger)
	}()

	conf, err := s.confirmer.Await(ctx, signature, lastValidBlockHeight, s.config.Commitment)
	stopRebroadcast()
	wg.Wait()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.trackOutcome("timeout", start)
			return nil, fmt.Errorf("%w: %s: %v", ErrTransactionTimeout, signature, ctxErr)
		}
		logger.Warn("Confirmation failed, simulating transaction", zap.Error(err))
		s.metrics.trackOutcome("failed", start)
		return nil, s.explainFailure(ctx, tx, signature, err)
	}

	if conf.Status == StatusBlockheightExceeded {
		logger.Warn("Transaction expired before confirmation",
			zap.Uint64("last_valid_block_height", lastValidBlockHeight),
			zap.Bool("landed_late", conf.Final != nil && conf.Final.Err == nil))
		s.metrics.trackOutcome("expired", start)
		return nil, &BlockheightExceededError{
			Signature:            signature,
			LastValidBlockHeight: lastValidBlockHeight,
			Status:               conf.Final,
		}
	}

	if conf.Err != nil {
		s.metrics.trackOutcome("failed", start)
		return nil, s.explainFailure(ctx, tx, signature, conf.Err)
	}

	s.metrics.trackOutcome("confirmed", start)
	logger.Info("Transaction confirmed",
		zap.Uint64("slot", conf.Slot),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{Signature: signature, Slot: conf.Slot}, nil
}

// submit делает первую отправку; временные сетевые ошибки повторяются с backoff.
func (s *Sender) submit(ctx context.Context, raw []byte, logger *zap.Logger) error {
	operation := func() (solana.Signature, error) {
		sig, err := s.transport.SendRawTransaction(ctx, raw)
		if err != nil {
			if solbcrpc.IsRetryableError(err) {
				return sig, err
			}
			return sig, backoff.Permanent(err)
		}
		return sig, nil
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(s.config.InitialSendMaxElapsed),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Debug("Retrying submission", zap.Error(err), zap.Duration("backoff", d))
		}),
	)
	if err != nil {
		var rpcErr *solbcrpc.Error
		if errors.As(err, &rpcErr) {
			logger.Warn("Submission rejected",
				zap.String("analysis", s.analyzer.FormatErrorAnalysis(s.analyzer.AnalyzeRPCError(rpcErr.Err))))
		}
		return err
	}
	return nil
}

func (s *Sender) rebroadcast(ctx context.Context, raw []byte, logger *zap.Logger) {
	ticker := time.NewTicker(s.config.RebroadcastInterval)
	defer ticker.Stop()
	budget := time.NewTimer(s.config.SendTimeout)
	defer budget.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-budget.C:
			logger.Debug("Rebroadcast budget exhausted", zap.Duration("budget", s.config.SendTimeout))
			return
		case <-ticker.C:
			if _, err := s.transport.SendRawTransaction(ctx, raw); err != nil {
				if ctx.Err() == nil {
					logger.Debug("Rebroadcast failed", zap.Error(err))
				}
				continue
			}
			s.metrics.trackRebroadcast()
		}
	}
}

// explainFailure turns a failed outcome into the most specific error available:
// the program's own log line, then a fresh simulation, then the raw error.
func (s *Sender) explainFailure(ctx context.Context, tx *solana.Transaction, signature solana.Signature, rawErr interface{}) error {
	logs, err := s.rpc.GetTransactionLogs(ctx, signature, rpc.CommitmentConfirmed)
	if err == nil && len(logs) > 0 {
		if msg, ok := s.analyzer.ProgramMessage(logs); ok {
			return &ProgramExecutionError{Signature: signature, Message: msg, Logs: logs}
		}
	}

	sim, err := s.rpc.SimulateTransaction(ctx, tx, s.config.Commitment)
	if err != nil {
		s.logger.Warn("Simulation of failed transaction failed",
			zap.String("signature", signature.String()),
			zap.Error(err))
		return &TransactionError{Signature: signature, Err: rawErr}
	}
	if sim.Err != nil {
		if msg, ok := s.analyzer.ProgramMessage(sim.Logs); ok {
			return &ProgramExecutionError{Signature: signature, Message: msg, Logs: sim.Logs}
		}
		return &SimulationError{Signature: signature, Err: sim.Err, Logs: sim.Logs}
	}
	return &TransactionError{Signature: signature, Err: rawErr}
}
