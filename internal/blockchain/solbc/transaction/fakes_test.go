package transaction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

var testBlockhash = solana.Hash{1, 2, 3, 4, 5, 6, 7, 8}

func testConfig() Config {
	return Config{
		Commitment:              rpc.CommitmentConfirmed,
		RebroadcastInterval:     10 * time.Millisecond,
		SendTimeout:             2 * time.Second,
		BlockHeightPollInterval: 10 * time.Millisecond,
		InitialSendMaxElapsed:   100 * time.Millisecond,
	}
}

// fakeRPC records submissions per signature and answers lookups from fixed state.
type fakeRPC struct {
	mu sync.Mutex

	block          blockchain.Blockhash
	blockhashCalls int

	height    uint64
	heightErr error

	sends   map[solana.Signature]int
	sendErr error

	statuses    map[solana.Signature]*blockchain.SignatureStatus
	statusCalls int

	logs       []string
	simulation *blockchain.SimulationResult
	simErr     error
	simCalls   int
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		block:    blockchain.Blockhash{Hash: testBlockhash, LastValidBlockHeight: 1000},
		height:   900,
		sends:    make(map[solana.Signature]int),
		statuses: make(map[solana.Signature]*blockchain.SignatureStatus),
	}
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*blockchain.Blockhash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashCalls++
	b := f.block
	return &b, nil
}

func (f *fakeRPC) GetBlockHeight(context.Context, rpc.CommitmentType) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, f.heightErr
}

func (f *fakeRPC) setHeight(h uint64) {
	f.mu.Lock()
	f.height = h
	f.mu.Unlock()
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, sigs ...solana.Signature) ([]*blockchain.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	out := make([]*blockchain.SignatureStatus, len(sigs))
	for i, s := range sigs {
		out[i] = f.statuses[s]
	}
	return out, nil
}

func (f *fakeRPC) SendRawTransaction(_ context.Context, raw []byte, opts blockchain.TransactionOptions) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !opts.SkipPreflight {
		return solana.Signature{}, errors.New("preflight must be skipped")
	}
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	sig := solana.SignatureFromBytes(raw[1:65])
	f.sends[sig]++
	return sig, nil
}

func (f *fakeRPC) SimulateTransaction(context.Context, *solana.Transaction, rpc.CommitmentType) (*blockchain.SimulationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simCalls++
	if f.simErr != nil {
		return nil, f.simErr
	}
	if f.simulation == nil {
		return &blockchain.SimulationResult{}, nil
	}
	return f.simulation, nil
}

func (f *fakeRPC) GetTransactionLogs(context.Context, solana.Signature, rpc.CommitmentType) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logs, nil
}

func (f *fakeRPC) sendCount(sig solana.Signature) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[sig]
}

func (f *fakeRPC) sentSignatures() []solana.Signature {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]solana.Signature, 0, len(f.sends))
	for s := range f.sends {
		out = append(out, s)
	}
	return out
}

// fakeSubscriber delivers one notification per signature after a delay, or
// never when notify returns ok=false. It tracks live subscriptions.
type fakeSubscriber struct {
	mu         sync.Mutex
	active     int
	subscribed int
	subErr     error
	notify     func(sig solana.Signature) (n *blockchain.SignatureNotification, delay time.Duration, ok bool)
}

func landAt(slot uint64, delay time.Duration) func(solana.Signature) (*blockchain.SignatureNotification, time.Duration, bool) {
	return func(solana.Signature) (*blockchain.SignatureNotification, time.Duration, bool) {
		return &blockchain.SignatureNotification{Slot: slot}, delay, true
	}
}

func never(solana.Signature) (*blockchain.SignatureNotification, time.Duration, bool) {
	return nil, 0, false
}

func (f *fakeSubscriber) SignatureSubscribe(_ context.Context, sig solana.Signature, _ rpc.CommitmentType) (blockchain.SignatureSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.active++
	f.subscribed++
	return &fakeSigSub{parent: f, sig: sig}, nil
}

func (f *fakeSubscriber) SlotsUpdatesSubscribe(context.Context) (blockchain.SlotUpdateSubscription, error) {
	return nil, errors.New("not supported")
}

func (f *fakeSubscriber) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type fakeSigSub struct {
	parent *fakeSubscriber
	sig    solana.Signature
	once   sync.Once
}

func (s *fakeSigSub) Recv(ctx context.Context) (*blockchain.SignatureNotification, error) {
	n, delay, ok := s.parent.notify(s.sig)
	if !ok {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	select {
	case <-time.After(delay):
		return n, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSigSub) Unsubscribe() {
	s.once.Do(func() {
		s.parent.mu.Lock()
		s.parent.active--
		s.parent.mu.Unlock()
	})
}

// fakeWallet signs with a local key; decline reports which transactions of a
// SignAllTransactions call (numbered from 1) are refused.
type fakeWallet struct {
	mu           sync.Mutex
	key          solana.PrivateKey
	disconnected bool
	signAllErr   error
	signAllCalls int
	decline      func(call, index int) bool
}

func newFakeWallet(t *testing.T) *fakeWallet {
	t.Helper()
	return &fakeWallet{key: solana.NewWallet().PrivateKey}
}

func (w *fakeWallet) PublicKey() (solana.PublicKey, bool) {
	if w.disconnected {
		return solana.PublicKey{}, false
	}
	return w.key.PublicKey(), true
}

func (w *fakeWallet) SignTransaction(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	return tx, err
}

func (w *fakeWallet) SignAllTransactions(ctx context.Context, txs []*solana.Transaction) ([]*solana.Transaction, error) {
	w.mu.Lock()
	w.signAllCalls++
	call := w.signAllCalls
	w.mu.Unlock()

	if w.signAllErr != nil {
		return nil, w.signAllErr
	}
	out := make([]*solana.Transaction, len(txs))
	for i, tx := range txs {
		if w.decline != nil && w.decline(call, i) {
			continue
		}
		signed, err := w.SignTransaction(ctx, tx)
		if err != nil {
			return nil, err
		}
		out[i] = signed
	}
	return out, nil
}

func transferGroup(from solana.PublicKey, lamports uint64) []solana.Instruction {
	to := solana.NewWallet().PublicKey()
	return []solana.Instruction{
		system.NewTransferInstruction(lamports, from, to).Build(),
	}
}

func signedTransfer(t *testing.T, w *fakeWallet, lamports uint64) *solana.Transaction {
	t.Helper()
	payer, _ := w.PublicKey()
	tx, err := BuildTransaction(transferGroup(payer, lamports), nil, payer, testBlockhash)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := w.SignTransaction(context.Background(), tx); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

func newTestSender(client *fakeRPC, sub *fakeSubscriber) *Sender {
	return NewSender(client, testConfig(), zap.NewNop(), WithSubscriber(sub))
}
