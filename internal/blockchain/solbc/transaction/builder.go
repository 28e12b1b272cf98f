package transaction

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// FilterEmptyGroups drops empty instruction groups together with the signer
// group at the same index. Missing signer groups count as empty and surplus
// ones are dropped, so both results always have the same length.
func FilterEmptyGroups(instructions [][]solana.Instruction, signers [][]solana.PrivateKey) ([][]solana.Instruction, [][]solana.PrivateKey) {
	outInstr := make([][]solana.Instruction, 0, len(instructions))
	outSigners := make([][]solana.PrivateKey, 0, len(instructions))
	for i, group := range instructions {
		if len(group) == 0 {
			continue
		}
		var s []solana.PrivateKey
		if i < len(signers) {
			s = signers[i]
		}
		outInstr = append(outInstr, group)
		outSigners = append(outSigners, s)
	}
	return outInstr, outSigners
}

// BuildTransaction builds a transaction paid by payer and signs it with the
// extra signers. Signatures of other required signers stay empty.
func BuildTransaction(instructions []solana.Instruction, signers []solana.PrivateKey, payer solana.PublicKey, blockhash solana.Hash) (*solana.Transaction, error) {
	if len(instructions) == 0 {
		return nil, ErrInvalidInstruction
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	if len(signers) == 0 {
		return tx, nil
	}

	keys := make(map[solana.PublicKey]solana.PrivateKey, len(signers))
	for _, s := range signers {
		keys[s.PublicKey()] = s
	}
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if pk, ok := keys[key]; ok {
			return &pk
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return tx, nil
}
