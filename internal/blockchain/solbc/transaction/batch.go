// internal/blockchain/solbc/transaction/batch.go
package transaction

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

// BatchRequest описывает пакет: одна транзакция на каждую непустую группу инструкций.
type BatchRequest struct {
	Instructions [][]solana.Instruction
	// Signers[i] – дополнительные подписанты группы i.
	Signers  [][]solana.PrivateKey
	Sequence SequenceType
	// Block – общий blockhash пакета; если nil, запрашивается новый.
	Block    *blockchain.Blockhash
	Observer Observer
}

type batchOutcome struct {
	launched bool
	result   *Result
	err      error
}

// SendTransactions строит, подписывает (одним вызовом кошелька) и отправляет пакет.
// Ошибка возвращается только если пакет не удалось подготовить; провалы отдельных
// транзакций описываются в BatchResult.
func (s *Sender) SendTransactions(ctx context.Context, wallet Wallet, req BatchRequest) (*BatchResult, error) {
	payer, ok := wallet.PublicKey()
	if !ok {
		return nil, ErrWalletNotConnected
	}

	instructions, signers := FilterEmptyGroups(req.Instructions, req.Signers)
	if len(instructions) == 0 {
		return &BatchResult{FailedIndex: -1}, nil
	}

	block := req.Block
	if block == nil {
		var err error
		block, err = s.rpc.GetLatestBlockhash(ctx, s.config.Commitment)
		if err != nil {
			return nil, fmt.Errorf("failed to get blockhash: %w", err)
		}
	}

	unsigned := make([]*solana.Transaction, len(instructions))
	for i := range instructions {
		tx, err := BuildTransaction(instructions[i], signers[i], payer, block.Hash)
		if err != nil {
			return nil, fmt.Errorf("failed to build transaction %d: %w", i, err)
		}
		unsigned[i] = tx
	}

	signed, err := wallet.SignAllTransactions(ctx, unsigned)
	if err != nil {
		return nil, fmt.Errorf("wallet failed to sign transactions: %w", err)
	}
	if len(signed) != len(unsigned) {
		return nil, fmt.Errorf("wallet returned %d transactions for %d", len(signed), len(unsigned))
	}

	observer := req.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	expiry := block.LastValidBlockHeight
	outcomes := make([]batchOutcome, len(signed))
	send := func(i int) bool {
		outcomes[i].launched = true
		if signed[i] == nil {
			outcomes[i].err = ErrTransactionNotSigned
		} else {
			outcomes[i].result, outcomes[i].err = s.SendSigned(ctx, signed[i], expiry)
		}
		if outcomes[i].err != nil {
			observer.OnFailure(Failure{Index: i, Err: outcomes[i].err}, expiry)
			return false
		}
		outcomes[i].result.Index = i
		observer.OnSuccess(*outcomes[i].result, expiry)
		return true
	}

	result := &BatchResult{
		Attempted:    len(signed),
		ExpiryHeight: expiry,
		FailedIndex:  -1,
	}

	s.logger.Info("Sending transaction batch",
		zap.Int("count", len(signed)),
		zap.Stringer("sequence", req.Sequence),
		zap.Uint64("expiry_height", expiry))

	switch req.Sequence {
	case Parallel:
		var g errgroup.Group
		for i := range signed {
			g.Go(func() error {
				send(i)
				return nil
			})
		}
		_ = g.Wait()
	default:
		for i := range signed {
			if ok := send(i); !ok && req.Sequence == StopOnFailure {
				result.FailedIndex = i
				break
			}
		}
	}

	for i, o := range outcomes {
		if !o.launched {
			continue
		}
		if o.err != nil {
			result.Failures = append(result.Failures, Failure{Index: i, Err: o.err})
			continue
		}
		result.Results = append(result.Results, *o.result)
	}

	if len(result.Failures) > 0 {
		s.logger.Warn("Transaction batch finished with failures",
			zap.Int("confirmed", len(result.Results)),
			zap.Int("failed", len(result.Failures)),
			zap.Int("failed_index", result.FailedIndex))
	}

	return result, nil
}
