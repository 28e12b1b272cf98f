// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/rpc"
)

// Client – тонкий адаптер над solana-go с переключением между RPC узлами.
type Client struct {
	rpc    *rpc.RPCClient
	logger *zap.Logger
}

// NewClient создаёт новый клиент, принимая список RPC URL и логгер через dependency injection.
func NewClient(urls []string, opts rpc.Options, logger *zap.Logger) (*Client, error) {
	pool, err := rpc.NewClient(urls, opts, logger)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpc:    pool,
		logger: logger.Named("solbc-client"),
	}, nil
}

// GetLatestBlockhash получает последний blockhash и lastValidBlockHeight.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*blockchain.Blockhash, error) {
	var out *blockchain.Blockhash
	err := c.rpc.ExecuteWithRetry(ctx, "getLatestBlockhash", func(ctx context.Context, node *solanarpc.Client) error {
		res, err := node.GetLatestBlockhash(ctx, commitment)
		if err != nil {
			return err
		}
		if res == nil || res.Value == nil {
			return fmt.Errorf("empty getLatestBlockhash response")
		}
		out = &blockchain.Blockhash{
			Hash:                 res.Value.Blockhash,
			LastValidBlockHeight: res.Value.LastValidBlockHeight,
		}
		return nil
	})
	if err != nil {
		c.logger.Error("GetLatestBlockhash error", zap.Error(err))
		return nil, err
	}
	return out, nil
}

// GetBlockHeight получает текущую высоту блока.
func (c *Client) GetBlockHeight(ctx context.Context, commitment solanarpc.CommitmentType) (uint64, error) {
	var height uint64
	err := c.rpc.ExecuteWithRetry(ctx, "getBlockHeight", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		height, err = node.GetBlockHeight(ctx, commitment)
		return err
	})
	return height, err
}

// GetSlot получает текущий слот.
func (c *Client) GetSlot(ctx context.Context, commitment solanarpc.CommitmentType) (uint64, error) {
	var slot uint64
	err := c.rpc.ExecuteWithRetry(ctx, "getSlot", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		slot, err = node.GetSlot(ctx, commitment)
		return err
	})
	return slot, err
}

// GetSignatureStatuses получает статусы подписей. Неизвестная подпись дает nil на своей позиции.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*blockchain.SignatureStatus, error) {
	var out []*blockchain.SignatureStatus
	err := c.rpc.ExecuteWithRetry(ctx, "getSignatureStatuses", func(ctx context.Context, node *solanarpc.Client) error {
		res, err := node.GetSignatureStatuses(ctx, true, signatures...)
		if err != nil {
			return err
		}
		out = make([]*blockchain.SignatureStatus, len(signatures))
		for i, st := range res.Value {
			if i >= len(out) || st == nil {
				continue
			}
			out[i] = &blockchain.SignatureStatus{
				Slot:               st.Slot,
				Confirmations:      st.Confirmations,
				Err:                st.Err,
				ConfirmationStatus: st.ConfirmationStatus,
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Debug("GetSignatureStatuses error", zap.Error(err))
		return nil, err
	}
	return out, nil
}

// SendRawTransaction отправляет уже подписанную транзакцию в сериализованном виде.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte, opts blockchain.TransactionOptions) (solana.Signature, error) {
	var sig solana.Signature
	err := c.rpc.ExecuteWithRetry(ctx, "sendTransaction", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		sig, err = node.SendRawTransactionWithOpts(ctx, raw, solanarpc.TransactionOpts{
			SkipPreflight:       opts.SkipPreflight,
			PreflightCommitment: opts.PreflightCommitment,
		})
		return err
	})
	return sig, err
}

// SimulateTransaction симулирует транзакцию без проверки подписей, подставляя свежий blockhash.
func (c *Client) SimulateTransaction(ctx context.Context, tx *solana.Transaction, commitment solanarpc.CommitmentType) (*blockchain.SimulationResult, error) {
	var out *blockchain.SimulationResult
	err := c.rpc.ExecuteWithRetry(ctx, "simulateTransaction", func(ctx context.Context, node *solanarpc.Client) error {
		res, err := node.SimulateTransactionWithOpts(ctx, tx, &solanarpc.SimulateTransactionOpts{
			SigVerify:              false,
			Commitment:             commitment,
			ReplaceRecentBlockhash: true,
		})
		if err != nil {
			return err
		}
		if res == nil || res.Value == nil {
			return fmt.Errorf("empty simulateTransaction response")
		}
		out = &blockchain.SimulationResult{
			Err:  res.Value.Err,
			Logs: res.Value.Logs,
		}
		if res.Value.UnitsConsumed != nil {
			out.UnitsConsumed = *res.Value.UnitsConsumed
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("SimulateTransaction error", zap.Error(err))
		return nil, err
	}
	return out, nil
}

// GetTransactionLogs получает логи подтвержденной транзакции.
func (c *Client) GetTransactionLogs(ctx context.Context, signature solana.Signature, commitment solanarpc.CommitmentType) ([]string, error) {
	var logs []string
	maxVersion := uint64(0)
	err := c.rpc.ExecuteWithRetry(ctx, "getTransaction", func(ctx context.Context, node *solanarpc.Client) error {
		res, err := node.GetTransaction(ctx, signature, &solanarpc.GetTransactionOpts{
			Commitment:                     commitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil {
			return err
		}
		if res != nil && res.Meta != nil {
			logs = res.Meta.LogMessages
		}
		return nil
	})
	return logs, err
}

// GetProgramAccounts получает аккаунты программы с фильтрами.
func (c *Client) GetProgramAccounts(ctx context.Context, program solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts) (solanarpc.GetProgramAccountsResult, error) {
	var out solanarpc.GetProgramAccountsResult
	err := c.rpc.ExecuteWithRetry(ctx, "getProgramAccounts", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		out, err = node.GetProgramAccountsWithOpts(ctx, program, opts)
		return err
	})
	if err != nil {
		c.logger.Error("GetProgramAccounts error",
			zap.String("program", program.String()),
			zap.Error(err))
		return nil, err
	}
	return out, nil
}

// GetClusterNodes получает узлы кластера с их TPU-адресами.
func (c *Client) GetClusterNodes(ctx context.Context) ([]blockchain.ClusterNode, error) {
	var out []blockchain.ClusterNode
	err := c.rpc.ExecuteWithRetry(ctx, "getClusterNodes", func(ctx context.Context, node *solanarpc.Client) error {
		res, err := node.GetClusterNodes(ctx)
		if err != nil {
			return err
		}
		out = make([]blockchain.ClusterNode, 0, len(res))
		for _, n := range res {
			if n == nil {
				continue
			}
			cn := blockchain.ClusterNode{Pubkey: n.Pubkey}
			if n.TPU != nil {
				cn.TPU = *n.TPU
			}
			out = append(out, cn)
		}
		return nil
	})
	return out, err
}

// GetSlotLeaders получает лидеров для limit слотов начиная со start.
func (c *Client) GetSlotLeaders(ctx context.Context, start, limit uint64) ([]solana.PublicKey, error) {
	var out []solana.PublicKey
	err := c.rpc.ExecuteWithRetry(ctx, "getSlotLeaders", func(ctx context.Context, node *solanarpc.Client) error {
		var err error
		out, err = node.GetSlotLeaders(ctx, start, limit)
		return err
	})
	return out, err
}

// GetEpochInfo получает информацию о текущей эпохе.
func (c *Client) GetEpochInfo(ctx context.Context, commitment solanarpc.CommitmentType) (*blockchain.EpochInfo, error) {
	var out *blockchain.EpochInfo
	err := c.rpc.ExecuteWithRetry(ctx, "getEpochInfo", func(ctx context.Context, node *solanarpc.Client) error {
		res, err := node.GetEpochInfo(ctx, commitment)
		if err != nil {
			return err
		}
		out = &blockchain.EpochInfo{
			Epoch:        res.Epoch,
			AbsoluteSlot: res.AbsoluteSlot,
			SlotIndex:    res.SlotIndex,
			SlotsInEpoch: res.SlotsInEpoch,
		}
		return nil
	})
	return out, err
}

// GetBalance получает баланс аккаунта в лампортах.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey, commitment solanarpc.CommitmentType) (uint64, error) {
	var balance uint64
	err := c.rpc.ExecuteWithRetry(ctx, "getBalance", func(ctx context.Context, node *solanarpc.Client) error {
		res, err := node.GetBalance(ctx, pubkey, commitment)
		if err != nil {
			return err
		}
		balance = res.Value
		return nil
	})
	return balance, err
}

var _ blockchain.Client = (*Client)(nil)
