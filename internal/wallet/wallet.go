// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var ErrNotConnected = errors.New("wallet not connected")

// Approver решает, подписывать ли транзакцию. Отклоненная транзакция
// возвращается из SignAllTransactions как nil.
type Approver func(tx *solana.Transaction) bool

// Wallet представляет кошелёк Solana с локальным ключом.
type Wallet struct {
	mu         sync.RWMutex
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
	connected  bool
	approve    Approver
}

// NewWallet создаёт новый кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	return FromPrivateKey(solana.PrivateKey(privateKeyBytes)), nil
}

// LoadKeypairFile читает ключ в формате solana-keygen (JSON-массив байт).
func LoadKeypairFile(path string) (*Wallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}
	return FromPrivateKey(key), nil
}

func FromPrivateKey(key solana.PrivateKey) *Wallet {
	return &Wallet{
		privateKey: key,
		publicKey:  key.PublicKey(),
		connected:  true,
	}
}

// SetApprover задает фильтр подписи; nil подписывает всё.
func (w *Wallet) SetApprover(approve Approver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.approve = approve
}

// PublicKey возвращает ключ; ok=false после Disconnect.
func (w *Wallet) PublicKey() (solana.PublicKey, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return solana.PublicKey{}, false
	}
	return w.publicKey, true
}

func (w *Wallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

// SignTransaction добавляет подпись кошелька, сохраняя уже имеющиеся подписи.
func (w *Wallet) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	signed, err := w.SignAllTransactions(ctx, []*solana.Transaction{tx})
	if err != nil {
		return nil, err
	}
	if signed[0] == nil {
		return nil, errors.New("transaction rejected by wallet")
	}
	return signed[0], nil
}

// SignAllTransactions подписывает пакет; позиции, которые Approver отклонил, равны nil.
func (w *Wallet) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return nil, ErrNotConnected
	}

	out := make([]*solana.Transaction, len(txs))
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if tx == nil || (w.approve != nil && !w.approve(tx)) {
			continue
		}
		if _, err := tx.PartialSign(w.signerFor); err != nil {
			return nil, fmt.Errorf("failed to sign transaction %d: %w", i, err)
		}
		out[i] = tx
	}
	return out, nil
}

func (w *Wallet) signerFor(key solana.PublicKey) *solana.PrivateKey {
	if key.Equals(w.publicKey) {
		return &w.privateKey
	}
	return nil
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.publicKey.String()
}
