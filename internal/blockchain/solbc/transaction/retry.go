package transaction

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// MaxStalledPasses is how many passes in a row may fail on the same group
// before SendWithManualRetry gives up.
const MaxStalledPasses = 3

// SendWithManualRetry sends the groups with StopOnFailure and, after a failure,
// resubmits from the failing group with a fresh blockhash. Result indices refer
// to the filtered groups.
func (s *Sender) SendWithManualRetry(ctx context.Context, wallet Wallet, instructions [][]solana.Instruction, signers [][]solana.PrivateKey, observer Observer) (*BatchResult, error) {
	instructions, signers = FilterEmptyGroups(instructions, signers)

	total := &BatchResult{Attempted: len(instructions), FailedIndex: -1}
	offset, stalled := 0, 0

	for offset < len(instructions) {
		res, err := s.SendTransactions(ctx, wallet, BatchRequest{
			Instructions: instructions[offset:],
			Signers:      signers[offset:],
			Sequence:     StopOnFailure,
			Observer:     shiftedObserver{next: observer, offset: offset},
		})
		if err != nil {
			return total, err
		}

		total.ExpiryHeight = res.ExpiryHeight
		for _, r := range res.Results {
			r.Index += offset
			total.Results = append(total.Results, r)
		}

		if res.FailedIndex < 0 {
			return total, nil
		}

		if res.FailedIndex > 0 {
			stalled = 0
		} else {
			stalled++
		}
		offset += res.FailedIndex

		if stalled >= MaxStalledPasses || ctx.Err() != nil {
			failure := res.Failures[len(res.Failures)-1]
			failure.Index += offset - res.FailedIndex
			total.Failures = append(total.Failures, failure)
			total.FailedIndex = offset
			return total, nil
		}

		s.logger.Info("Resuming batch from failed transaction",
			zap.Int("index", offset),
			zap.Int("stalled_passes", stalled))
	}

	return total, nil
}

type shiftedObserver struct {
	next   Observer
	offset int
}

func (o shiftedObserver) OnSuccess(result Result, expiryHeight uint64) {
	if o.next == nil {
		return
	}
	result.Index += o.offset
	o.next.OnSuccess(result, expiryHeight)
}

func (o shiftedObserver) OnFailure(failure Failure, expiryHeight uint64) {
	if o.next == nil {
		return
	}
	failure.Index += o.offset
	o.next.OnFailure(failure, expiryHeight)
}
