package tpu

import (
	"context"
	"errors"
	"fmt"
	"net"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
)

// DefaultFanoutSlots is how many upcoming leaders receive each transaction by default.
const DefaultFanoutSlots = 12

var ErrNoLeaderSockets = errors.New("no leader TPU sockets known")

// SocketSource yields TPU sockets of upcoming leaders (LeaderService implements it).
type SocketSource interface {
	LeaderTpuSockets(fanout int) []string
}

// BlockhashSource supplies a fresh blockhash for SendTransaction.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*blockchain.Blockhash, error)
}

// ClampFanout maps 0 to DefaultFanoutSlots and clamps the rest to [1, MaxFanoutSlots].
func ClampFanout(fanout int) int {
	if fanout == 0 {
		return DefaultFanoutSlots
	}
	return max(1, min(fanout, MaxFanoutSlots))
}

// Client sends serialized transactions straight to the TPU ports of the next
// leaders over UDP, one datagram per leader with no framing.
type Client struct {
	conn        *net.UDPConn
	leaders     SocketSource
	blockhashes BlockhashSource
	fanout      int
	logger      *zap.Logger
}

func NewClient(leaders SocketSource, blockhashes BlockhashSource, fanout int, logger *zap.Logger) (*Client, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP socket: %w", err)
	}
	return &Client{
		conn:        conn,
		leaders:     leaders,
		blockhashes: blockhashes,
		fanout:      ClampFanout(fanout),
		logger:      logger.Named("tpu-client"),
	}, nil
}

func (c *Client) Fanout() int {
	return c.fanout
}

// SendRawTransaction sends raw to every known leader socket and returns the
// transaction's first signature once at least one datagram was written.
// The socket is shared by concurrent sends, so ctx is only checked between
// writes and never turned into a socket deadline.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	signature, err := signatureOf(raw)
	if err != nil {
		return solana.Signature{}, err
	}

	sockets := c.leaders.LeaderTpuSockets(c.fanout)
	if len(sockets) == 0 {
		return solana.Signature{}, ErrNoLeaderSockets
	}

	var errs []error
	sent := 0
	for _, socket := range sockets {
		if err := ctx.Err(); err != nil {
			return solana.Signature{}, err
		}
		addr, err := net.ResolveUDPAddr("udp", socket)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", socket, err))
			continue
		}
		if _, err := c.conn.WriteToUDP(raw, addr); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", socket, err))
			continue
		}
		sent++
	}

	if sent == 0 {
		return solana.Signature{}, fmt.Errorf("failed to send to any of %d leaders: %w", len(sockets), errors.Join(errs...))
	}

	c.logger.Debug("Transaction sent to leaders",
		zap.String("signature", signature.String()),
		zap.Int("sent", sent),
		zap.Int("failed", len(errs)))

	return signature, nil
}

// SendTransaction refreshes the blockhash, signs tx with signers and sends it.
// It returns the expiry height of the blockhash along with the signature.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction, signers []solana.PrivateKey) (solana.Signature, uint64, error) {
	block, err := c.blockhashes.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to get blockhash: %w", err)
	}
	tx.Message.RecentBlockhash = block.Hash
	tx.Signatures = nil

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	}); err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, 0, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	sig, err := c.SendRawTransaction(ctx, raw)
	return sig, block.LastValidBlockHeight, err
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func signatureOf(raw []byte) (solana.Signature, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("transaction has no signatures")
	}
	return tx.Signatures[0], nil
}
