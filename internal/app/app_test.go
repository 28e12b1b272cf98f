package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/config"
)

func TestShutdownHandler_LIFO(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), time.Second)
	var order []string
	sh.AddFunc("first", func() error { order = append(order, "first"); return nil })
	sh.AddFunc("second", func() error { order = append(order, "second"); return errors.New("boom") })

	err := sh.Shutdown(context.Background())
	assert.ErrorContains(t, err, "second: boom")
	assert.Equal(t, []string{"second", "first"}, order)

	assert.NoError(t, sh.Shutdown(context.Background()), "services are closed once")
}

func TestShutdownHandler_Timeout(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), 10*time.Millisecond)
	block := make(chan struct{})
	defer close(block)
	sh.AddFunc("stuck", func() error { <-block; return nil })

	assert.ErrorContains(t, sh.Shutdown(context.Background()), "stuck: shutdown timeout")
}

func TestLoadWallet(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	w, err := LoadWallet(&config.Config{PrivateKey: base58.Encode(key)})
	require.NoError(t, err)
	pub, _ := w.PublicKey()
	assert.Equal(t, key.PublicKey(), pub)

	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, _ := json.Marshal(ints)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	w, err = LoadWallet(&config.Config{KeypairPath: path, PrivateKey: "ignored"})
	require.NoError(t, err)
	pub, _ = w.PublicKey()
	assert.Equal(t, key.PublicKey(), pub)

	_, err = LoadWallet(&config.Config{})
	assert.ErrorIs(t, err, ErrNoWallet)
}

func TestSenderConfig(t *testing.T) {
	cfg := SenderConfig(&config.Config{
		Commitment:            "finalized",
		RebroadcastIntervalMs: 250,
		SendTimeoutMs:         10_000,
		BlockHeightPollMs:     2000,
	})
	assert.Equal(t, rpc.CommitmentFinalized, cfg.Commitment)
	assert.Equal(t, 250*time.Millisecond, cfg.RebroadcastInterval)
	assert.Equal(t, 10*time.Second, cfg.SendTimeout)
	assert.Equal(t, 2*time.Second, cfg.BlockHeightPollInterval)
}
