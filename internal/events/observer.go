package events

import (
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/transaction"
)

// BusObserver turns batch outcomes into bus events.
type BusObserver struct {
	bus *Bus
}

func NewBusObserver(bus *Bus) *BusObserver {
	return &BusObserver{bus: bus}
}

func (o *BusObserver) OnSuccess(result transaction.Result, expiryHeight uint64) {
	_ = o.bus.Publish(&TransactionEvent{
		BaseEvent:    BaseEvent{EventType: TransactionConfirmed, EventTime: time.Now().UTC()},
		Index:        result.Index,
		Signature:    result.Signature.String(),
		Slot:         result.Slot,
		ExpiryHeight: expiryHeight,
	})
}

func (o *BusObserver) OnFailure(failure transaction.Failure, expiryHeight uint64) {
	event := &TransactionEvent{
		BaseEvent:    BaseEvent{EventType: TransactionFailed, EventTime: time.Now().UTC()},
		Index:        failure.Index,
		ExpiryHeight: expiryHeight,
	}
	if failure.Err != nil {
		event.Error = failure.Err.Error()
		if sig, ok := failedSignature(failure.Err); ok {
			event.Signature = sig.String()
		}
	}
	_ = o.bus.Publish(event)
}

// failedSignature digs the signature out of errors raised after submission.
// Failures before submission (unsigned, build errors) have none.
func failedSignature(err error) (solana.Signature, bool) {
	var (
		expired    *transaction.BlockheightExceededError
		program    *transaction.ProgramExecutionError
		simulation *transaction.SimulationError
		generic    *transaction.TransactionError
	)
	var sig solana.Signature
	switch {
	case errors.As(err, &expired):
		sig = expired.Signature
	case errors.As(err, &program):
		sig = program.Signature
	case errors.As(err, &simulation):
		sig = simulation.Signature
	case errors.As(err, &generic):
		sig = generic.Signature
	}
	return sig, sig != (solana.Signature{})
}

var _ transaction.Observer = (*BusObserver)(nil)
