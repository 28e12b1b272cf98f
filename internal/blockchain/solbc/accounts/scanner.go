package accounts

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const (
	DefaultCacheSize = 128
	DefaultCacheTTL  = 15 * time.Second
)

// RPC is the one cluster call the scanner needs.
type RPC interface {
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
}

// Filter matches Bytes at Offset of the account data (memcmp).
type Filter struct {
	Offset uint64
	Bytes  []byte
}

type Options struct {
	Commitment rpc.CommitmentType
	Filters    []Filter
	// DataSize, when non-zero, also requires the exact account data length.
	DataSize uint64
	// Fresh skips the result cache.
	Fresh bool
}

// Account is a decoded program account.
type Account struct {
	Owner      solana.PublicKey
	Executable bool
	Lamports   uint64
	Data       []byte
}

type KeyedAccount struct {
	Pubkey  solana.PublicKey
	Account Account
}

type Config struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Scanner lists program accounts matching byte filters. Successful results are
// cached for CacheTTL; failures are never cached.
type Scanner struct {
	rpc    RPC
	cache  *resultCache
	logger *zap.Logger
}

func NewScanner(client RPC, cfg Config, logger *zap.Logger) *Scanner {
	return &Scanner{
		rpc:    client,
		cache:  newResultCache(cfg.CacheSize, cfg.CacheTTL),
		logger: logger.Named("account-scanner"),
	}
}

// GetProgramAccounts returns every account owned by program that matches opts.
func (s *Scanner) GetProgramAccounts(ctx context.Context, program solana.PublicKey, opts Options) ([]KeyedAccount, error) {
	key := cacheKey(program, opts)
	if !opts.Fresh {
		if cached, ok := s.cache.get(key); ok {
			s.logger.Debug("Program accounts served from cache",
				zap.String("program", program.String()),
				zap.Int("count", len(cached)))
			return cached, nil
		}
	}

	res, err := s.rpc.GetProgramAccounts(ctx, program, buildOpts(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to get program accounts for %s: %w", program, err)
	}

	accounts := make([]KeyedAccount, 0, len(res))
	for _, ka := range res {
		if ka == nil || ka.Account == nil {
			continue
		}
		accounts = append(accounts, decodeAccount(ka))
	}

	s.cache.add(key, accounts)
	s.logger.Debug("Program accounts fetched",
		zap.String("program", program.String()),
		zap.Int("count", len(accounts)))

	return accounts, nil
}

func buildOpts(opts Options) *rpc.GetProgramAccountsOpts {
	out := &rpc.GetProgramAccountsOpts{
		Commitment: opts.Commitment,
		Encoding:   solana.EncodingBase64,
	}
	for _, f := range opts.Filters {
		out.Filters = append(out.Filters, rpc.RPCFilter{
			Memcmp: &rpc.RPCFilterMemcmp{
				Offset: f.Offset,
				Bytes:  f.Bytes,
			},
		})
	}
	if opts.DataSize > 0 {
		out.Filters = append(out.Filters, rpc.RPCFilter{DataSize: opts.DataSize})
	}
	return out
}

func decodeAccount(ka *rpc.KeyedAccount) KeyedAccount {
	acc := Account{
		Owner:      ka.Account.Owner,
		Executable: ka.Account.Executable,
		Lamports:   ka.Account.Lamports,
	}
	if ka.Account.Data != nil {
		acc.Data = ka.Account.Data.GetBinary()
	}
	return KeyedAccount{Pubkey: ka.Pubkey, Account: acc}
}

func cacheKey(program solana.PublicKey, opts Options) string {
	var b strings.Builder
	b.WriteString(program.String())
	b.WriteByte('|')
	b.WriteString(string(opts.Commitment))
	for _, f := range opts.Filters {
		fmt.Fprintf(&b, "|%d:%s", f.Offset, hex.EncodeToString(f.Bytes))
	}
	if opts.DataSize > 0 {
		fmt.Fprintf(&b, "|size:%d", opts.DataSize)
	}
	return b.String()
}
