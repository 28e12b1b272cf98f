// internal/blockchain/solbc/transaction/validator.go
package transaction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

type Validator struct {
	logger *zap.Logger
}

func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{
		logger: logger.Named("tx-validator"),
	}
}

// ValidateTransaction проверяет, что транзакция готова к отправке.
func (v *Validator) ValidateTransaction(tx *solana.Transaction) error {
	if tx == nil {
		return ErrTransactionNotSigned
	}

	if err := v.ValidateSignatures(tx); err != nil {
		return err
	}

	if err := v.ValidateBlockhash(tx); err != nil {
		return err
	}

	if err := v.ValidateInstructions(tx.Message.Instructions); err != nil {
		return err
	}

	return nil
}

// ValidateSignatures требует все подписи из заголовка сообщения.
func (v *Validator) ValidateSignatures(tx *solana.Transaction) error {
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) == 0 || len(tx.Signatures) < required {
		return ErrTransactionNotSigned
	}
	for i := 0; i < required; i++ {
		if tx.Signatures[i].IsZero() {
			if i == 0 {
				return ErrTransactionNotSigned
			}
			return fmt.Errorf("%w: missing signature for %s", ErrInvalidSignature, tx.Message.AccountKeys[i])
		}
	}
	return nil
}

func (v *Validator) ValidateBlockhash(tx *solana.Transaction) error {
	if tx.Message.RecentBlockhash.IsZero() {
		return ErrInvalidBlockhash
	}
	return nil
}

func (v *Validator) ValidateInstructions(instructions []solana.CompiledInstruction) error {
	if len(instructions) == 0 {
		return ErrInvalidInstruction
	}
	return nil
}
