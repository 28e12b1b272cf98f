package transaction

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

var (
	ErrWalletNotConnected   = errors.New("wallet not connected")
	ErrBlockheightExceeded  = errors.New("block height exceeded")
	ErrTransactionTimeout   = errors.New("transaction confirmation timed out")
	ErrTransactionFailed    = errors.New("transaction failed")
	ErrTransactionNotSigned = errors.New("transaction was not signed by wallet")
	ErrInvalidSignature     = errors.New("invalid transaction signature")
	ErrInvalidBlockhash     = errors.New("invalid blockhash")
	ErrInvalidInstruction   = errors.New("invalid instruction")
)

// BlockheightExceededError: the cluster moved past LastValidBlockHeight before
// the transaction was seen. Status is the result of the final lookup made
// after the race settled and may still show the transaction as landed.
type BlockheightExceededError struct {
	Signature            solana.Signature
	LastValidBlockHeight uint64
	Status               *blockchain.SignatureStatus
}

func (e *BlockheightExceededError) Error() string {
	return fmt.Sprintf("signature %s: block height exceeded %d", e.Signature, e.LastValidBlockHeight)
}

func (e *BlockheightExceededError) Is(target error) bool {
	return target == ErrBlockheightExceeded
}

// ProgramExecutionError carries the program's own log message for a failed transaction.
type ProgramExecutionError struct {
	Signature solana.Signature
	Message   string
	Logs      []string
}

func (e *ProgramExecutionError) Error() string {
	return fmt.Sprintf("program execution error: %s", e.Message)
}

func (e *ProgramExecutionError) Is(target error) bool {
	return target == ErrTransactionFailed
}

// SimulationError: simulation reported a failure without a program message.
type SimulationError struct {
	Signature solana.Signature
	Err       interface{}
	Logs      []string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed: %v", e.Err)
}

func (e *SimulationError) Is(target error) bool {
	return target == ErrTransactionFailed
}

// TransactionError is the generic failure when neither logs nor simulation explain it.
type TransactionError struct {
	Signature solana.Signature
	Err       interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailed
}

func (e *TransactionError) Unwrap() error {
	if err, ok := e.Err.(error); ok {
		return err
	}
	return nil
}
