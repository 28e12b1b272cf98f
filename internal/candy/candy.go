package candy

import (
	"context"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/accounts"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/transaction"
)

var (
	ProgramV1 = solana.MustPublicKeyFromBase58("cndyAnrLdpjq1Ssp1z8xxDsB8dxe7u4HL5Nxi2K5WXZ")
	ProgramV2 = solana.MustPublicKeyFromBase58("cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ")
)

// ConfigDiscriminatorV1 is the Anchor account discriminator of a V1 Config account,
// the account V1 withdraw_funds operates on.
var ConfigDiscriminatorV1 = []byte{155, 12, 170, 224, 30, 250, 204, 130}

// AuthorityOffset is where both versions store the machine authority.
const AuthorityOffset = 8

type Version int

const (
	V1 Version = 1
	V2 Version = 2
)

func (v Version) String() string {
	return fmt.Sprintf("v%d", int(v))
}

func (v Version) ProgramID() solana.PublicKey {
	if v == V1 {
		return ProgramV1
	}
	return ProgramV2
}

// Machine is a candy machine the authority may withdraw rent from.
type Machine struct {
	Address   solana.PublicKey
	Version   Version
	Lamports  uint64
	Authority solana.PublicKey
}

// Filters returns the getProgramAccounts filters selecting machines of authority.
func Filters(version Version, authority solana.PublicKey) []accounts.Filter {
	byAuthority := accounts.Filter{Offset: AuthorityOffset, Bytes: authority.Bytes()}
	if version == V1 {
		return []accounts.Filter{{Offset: 0, Bytes: ConfigDiscriminatorV1}, byAuthority}
	}
	return []accounts.Filter{byAuthority}
}

type Scanner interface {
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, opts accounts.Options) ([]accounts.KeyedAccount, error)
}

type Finder struct {
	scanner Scanner
	logger  *zap.Logger
}

func NewFinder(scanner Scanner, logger *zap.Logger) *Finder {
	return &Finder{scanner: scanner, logger: logger.Named("candy-finder")}
}

// FindWithdrawable lists V1 and V2 machines owned by authority, largest balance first.
// fresh bypasses the scan cache.
func (f *Finder) FindWithdrawable(ctx context.Context, authority solana.PublicKey, fresh bool) ([]Machine, error) {
	var machines []Machine
	for _, version := range []Version{V1, V2} {
		found, err := f.scanner.GetProgramAccounts(ctx, version.ProgramID(), accounts.Options{
			Commitment: rpc.CommitmentConfirmed,
			Filters:    Filters(version, authority),
			Fresh:      fresh,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s machines: %w", version, err)
		}
		for _, acc := range found {
			machines = append(machines, Machine{
				Address:   acc.Pubkey,
				Version:   version,
				Lamports:  acc.Account.Lamports,
				Authority: authority,
			})
		}
	}

	sort.SliceStable(machines, func(i, j int) bool {
		return machines[i].Lamports > machines[j].Lamports
	})

	f.logger.Info("Withdrawable machines found",
		zap.String("authority", authority.String()),
		zap.Int("count", len(machines)),
		zap.Uint64("lamports", TotalLamports(machines)))

	return machines, nil
}

func TotalLamports(machines []Machine) uint64 {
	var total uint64
	for _, m := range machines {
		total += m.Lamports
	}
	return total
}

// WithdrawInstruction builds the withdraw_funds call that closes machine and
// returns its lamports to authority.
func WithdrawInstruction(machine Machine) solana.Instruction {
	return solana.NewInstruction(
		machine.Version.ProgramID(),
		solana.AccountMetaSlice{
			solana.Meta(machine.Address).WRITE(),
			solana.Meta(machine.Authority).SIGNER().WRITE(),
		},
		solbc.AnchorInstructionDiscriminator("withdraw_funds"),
	)
}

type BatchSender interface {
	SendTransactions(ctx context.Context, wallet transaction.Wallet, req transaction.BatchRequest) (*transaction.BatchResult, error)
	SendWithManualRetry(ctx context.Context, wallet transaction.Wallet, instructions [][]solana.Instruction, signers [][]solana.PrivateKey, observer transaction.Observer) (*transaction.BatchResult, error)
}

type Withdrawer struct {
	sender BatchSender
	logger *zap.Logger
}

func NewWithdrawer(sender BatchSender, logger *zap.Logger) *Withdrawer {
	return &Withdrawer{sender: sender, logger: logger.Named("candy-withdrawer")}
}

// Withdraw sends one withdraw transaction per machine. Machines whose authority
// is not the wallet are rejected before anything is signed.
func (w *Withdrawer) Withdraw(ctx context.Context, wallet transaction.Wallet, machines []Machine, seq transaction.SequenceType, observer transaction.Observer) (*transaction.BatchResult, error) {
	groups, err := w.groups(wallet, machines)
	if err != nil {
		return nil, err
	}

	w.logger.Info("Withdrawing from machines",
		zap.Int("count", len(machines)),
		zap.Uint64("lamports", TotalLamports(machines)),
		zap.Stringer("sequence", seq))

	return w.sender.SendTransactions(ctx, wallet, transaction.BatchRequest{
		Instructions: groups,
		Sequence:     seq,
		Observer:     observer,
	})
}

// WithdrawWithRetry withdraws in order and resumes from the first failed
// machine with a fresh blockhash.
func (w *Withdrawer) WithdrawWithRetry(ctx context.Context, wallet transaction.Wallet, machines []Machine, observer transaction.Observer) (*transaction.BatchResult, error) {
	groups, err := w.groups(wallet, machines)
	if err != nil {
		return nil, err
	}

	w.logger.Info("Withdrawing from machines with retry",
		zap.Int("count", len(machines)),
		zap.Uint64("lamports", TotalLamports(machines)))

	return w.sender.SendWithManualRetry(ctx, wallet, groups, nil, observer)
}

func (w *Withdrawer) groups(wallet transaction.Wallet, machines []Machine) ([][]solana.Instruction, error) {
	key, ok := wallet.PublicKey()
	if !ok {
		return nil, transaction.ErrWalletNotConnected
	}

	groups := make([][]solana.Instruction, 0, len(machines))
	for _, m := range machines {
		if !m.Authority.Equals(key) {
			return nil, fmt.Errorf("machine %s belongs to %s, not %s", m.Address, m.Authority, key)
		}
		groups = append(groups, []solana.Instruction{WithdrawInstruction(m)})
	}
	return groups, nil
}
