package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/app"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/tpu"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/candy-wrapper/internal/candy"
	"github.com/rovshanmuradov/candy-wrapper/internal/ui/style"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:  "scan",
		Usage: "List candy machines the configured wallet can withdraw from",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "fresh", Usage: "Bypass the scan cache"},
		},
		Action: func(c *cli.Context) error {
			return withSession(c, app.Options{Wallet: true}, func(ctx context.Context, s *session) error {
				authority, _ := s.app.Wallet.PublicKey()

				balance, err := s.app.Client.GetBalance(ctx, authority, rpc.CommitmentConfirmed)
				if err != nil {
					s.log.Warn("Failed to get wallet balance", zap.Error(err))
				} else {
					fmt.Println(style.MutedStyle.Render("Wallet balance: " + style.FormatSOL(balance)))
				}

				machines, err := s.app.Finder.FindWithdrawable(ctx, authority, c.Bool("fresh"))
				if err != nil {
					return err
				}
				fmt.Println(style.RenderMachines(authority, machines))
				return nil
			})
		},
	}
}

func withdrawCommand() *cli.Command {
	return &cli.Command{
		Name:  "withdraw",
		Usage: "Withdraw rent from candy machines",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "machine", Aliases: []string{"m"}, Usage: "Machine address (repeatable)"},
			&cli.BoolFlag{Name: "all", Usage: "Withdraw from every machine found by scan"},
			&cli.StringFlag{Name: "sequence", Value: "parallel", Usage: "parallel | sequential | stop-on-failure"},
			&cli.BoolFlag{Name: "retry", Usage: "Send in order and resume from the first failure with a fresh blockhash"},
		},
		Action: func(c *cli.Context) error {
			seq, ok := transaction.ParseSequenceType(c.String("sequence"))
			if !ok {
				return fmt.Errorf("unknown sequence %q", c.String("sequence"))
			}
			if !c.Bool("all") && len(c.StringSlice("machine")) == 0 {
				return errors.New("either --machine or --all is required")
			}

			return withSession(c, app.Options{Wallet: true}, func(ctx context.Context, s *session) error {
				authority, _ := s.app.Wallet.PublicKey()
				found, err := s.app.Finder.FindWithdrawable(ctx, authority, true)
				if err != nil {
					return err
				}

				machines, err := selectMachines(found, c.Bool("all"), c.StringSlice("machine"))
				if err != nil {
					return err
				}
				if len(machines) == 0 {
					fmt.Println(style.MutedStyle.Render("Nothing to withdraw"))
					return nil
				}

				observer := transaction.MultiObserver{logObserver(s.log.WithComponent("withdraw"))}
				if s.app.Observer != nil {
					observer = append(observer, s.app.Observer)
				}

				var result *transaction.BatchResult
				if c.Bool("retry") {
					result, err = s.app.Withdrawer.WithdrawWithRetry(ctx, s.app.Wallet, machines, observer)
				} else {
					result, err = s.app.Withdrawer.Withdraw(ctx, s.app.Wallet, machines, seq, observer)
				}
				if err != nil {
					return err
				}

				fmt.Println(style.RenderBatch(result))
				if !result.Succeeded() {
					return fmt.Errorf("%d of %d withdrawals failed", len(result.Failures), result.Attempted)
				}
				return nil
			})
		},
	}
}

// selectMachines picks the requested machines out of the scan result.
func selectMachines(found []candy.Machine, all bool, addresses []string) ([]candy.Machine, error) {
	if all {
		return found, nil
	}
	byAddress := make(map[solana.PublicKey]candy.Machine, len(found))
	for _, m := range found {
		byAddress[m.Address] = m
	}

	out := make([]candy.Machine, 0, len(addresses))
	for _, raw := range addresses {
		key, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid machine address %q: %w", raw, err)
		}
		m, ok := byAddress[key]
		if !ok {
			return nil, fmt.Errorf("machine %s is not withdrawable by this wallet", key)
		}
		out = append(out, m)
	}
	return out, nil
}

func logObserver(log *zap.Logger) transaction.Observer {
	return transaction.ObserverFuncs{
		Success: func(r transaction.Result, expiry uint64) {
			log.Info("Withdrawal confirmed",
				zap.Int("index", r.Index),
				zap.String("signature", r.Signature.String()),
				zap.Uint64("slot", r.Slot))
		},
		Failure: func(f transaction.Failure, expiry uint64) {
			log.Warn("Withdrawal failed",
				zap.Int("index", f.Index),
				zap.Uint64("expiry_height", expiry),
				zap.Error(f.Err))
		},
	}
}

func leadersCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaders",
		Usage: "Show TPU sockets of the upcoming slot leaders",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "fanout", Value: tpu.DefaultFanoutSlots, Usage: "Number of upcoming leader slots"},
		},
		Action: func(c *cli.Context) error {
			return withSession(c, app.Options{Leaders: true}, func(ctx context.Context, s *session) error {
				slot, err := s.app.Leaders.EstimatedCurrentSlot()
				if err != nil {
					return err
				}
				fmt.Println(style.RenderLeaders(slot, s.app.Leaders.LeaderTpuSockets(tpu.ClampFanout(c.Int("fanout")))))
				return nil
			})
		},
	}
}

func sendRawCommand() *cli.Command {
	return &cli.Command{
		Name:  "send-raw",
		Usage: "Send an already signed transaction and wait for confirmation",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tx", Required: true, Usage: "Base64 serialized signed transaction"},
			&cli.Uint64Flag{Name: "last-valid-block-height", Required: true, Usage: "Expiry height of the transaction blockhash"},
		},
		Action: func(c *cli.Context) error {
			raw, err := base64.StdEncoding.DecodeString(c.String("tx"))
			if err != nil {
				return fmt.Errorf("invalid base64 transaction: %w", err)
			}
			tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
			if err != nil {
				return fmt.Errorf("invalid transaction: %w", err)
			}

			return withSession(c, app.Options{}, func(ctx context.Context, s *session) error {
				if err := transaction.NewValidator(s.log.Logger).ValidateTransaction(tx); err != nil {
					return err
				}
				res, err := s.app.Sender.SendSigned(ctx, tx, c.Uint64("last-valid-block-height"))
				if err != nil {
					return err
				}
				fmt.Println(style.SuccessStyle.Render(fmt.Sprintf("Confirmed %s in slot %d", res.Signature, res.Slot)))
				return nil
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the status of a transaction signature",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "signature", Aliases: []string{"s"}, Required: true},
		},
		Action: func(c *cli.Context) error {
			sig, err := solana.SignatureFromBase58(c.String("signature"))
			if err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}
			return withSession(c, app.Options{}, func(ctx context.Context, s *session) error {
				status, err := s.app.Monitor.GetTransactionStatus(ctx, sig)
				if err != nil {
					return err
				}
				fmt.Println(style.RenderStatus(status))
				return nil
			})
		},
	}
}
