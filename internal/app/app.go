// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/accounts"
	solrpc "github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/tpu"
	"github.com/rovshanmuradov/candy-wrapper/internal/blockchain/solbc/transaction"
	"github.com/rovshanmuradov/candy-wrapper/internal/candy"
	"github.com/rovshanmuradov/candy-wrapper/internal/config"
	"github.com/rovshanmuradov/candy-wrapper/internal/events"
	"github.com/rovshanmuradov/candy-wrapper/internal/wallet"
)

var ErrNoWallet = errors.New("neither keypair_path nor private_key is configured")

// Options selects the optional parts New builds.
type Options struct {
	Wallet  bool
	Leaders bool
}

// App owns every long-lived component built from the configuration.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry

	Client     *solbc.Client
	Subscriber blockchain.Subscriber
	Leaders    *tpu.LeaderService
	Sender     *transaction.Sender
	Monitor    *transaction.Monitor
	Finder     *candy.Finder
	Withdrawer *candy.Withdrawer
	Wallet     *wallet.Wallet
	// Observer receives batch outcomes; nil unless nats_url is set.
	Observer transaction.Observer

	shutdown *ShutdownHandler
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		shutdown: NewShutdownHandler(logger.Named("shutdown"), 10*time.Second),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := a.build(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config
	client, err := solbc.NewClient(cfg.RPCList, solrpc.Options{Metrics: solrpc.NewMetrics(a.Registry)}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	a.Client = client

	if cfg.WebSocketURL != "" {
		ws, err := solbc.DialWS(ctx, cfg.WebSocketURL, a.Logger)
		if err != nil {
			return err
		}
		a.shutdown.AddFunc("websocket", func() error { ws.Close(); return nil })
		a.Subscriber = ws
	}

	if opts.Wallet {
		w, err := LoadWallet(cfg)
		if err != nil {
			return err
		}
		a.Wallet = w
	}

	senderOpts := []transaction.Option{
		transaction.WithMetrics(transaction.NewMetrics(a.Registry)),
	}
	if a.Subscriber != nil {
		senderOpts = append(senderOpts, transaction.WithSubscriber(a.Subscriber))
	}

	if opts.Leaders || cfg.Transport == config.TransportTPU {
		leaders, err := tpu.LoadLeaderService(ctx, client, a.Subscriber, tpu.ServiceConfig{
			ClusterRefreshInterval: cfg.ClusterRefreshInterval(),
		}, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to load leader schedule: %w", err)
		}
		leaders.Start(context.Background())
		a.shutdown.AddFunc("leader-service", func() error { leaders.Close(); return nil })
		a.Leaders = leaders
	}

	if cfg.Transport == config.TransportTPU {
		tpuClient, err := tpu.NewClient(a.Leaders, client, cfg.FanoutSlots, a.Logger)
		if err != nil {
			return err
		}
		a.shutdown.Add("tpu-client", tpuClient)
		senderOpts = append(senderOpts, transaction.WithTransport(tpuClient))
	}

	a.Sender = transaction.NewSender(client, SenderConfig(cfg), a.Logger, senderOpts...)
	a.Monitor = transaction.NewMonitor(client, a.Logger)

	scanner := accounts.NewScanner(client, accounts.Config{
		CacheSize: cfg.ScanCacheSize,
		CacheTTL:  cfg.ScanCacheTTL(),
	}, a.Logger)
	a.Finder = candy.NewFinder(scanner, a.Logger)
	a.Withdrawer = candy.NewWithdrawer(a.Sender, a.Logger)

	if cfg.NatsURL != "" {
		nc, err := events.ConnectNATS(cfg.NatsURL, a.Logger)
		if err != nil {
			return err
		}
		a.shutdown.AddFunc("nats", func() error { return nc.Drain() })

		bus := events.NewBus(a.Logger, 256)
		a.shutdown.AddFunc("event-bus", func() error { return bus.Shutdown(context.Background()) })
		events.NewNATSPublisher(nc, cfg.NatsSubject, a.Logger).Attach(bus)
		a.Observer = events.NewBusObserver(bus)
	}

	return nil
}

// SenderConfig maps configuration onto the transaction sender settings.
func SenderConfig(cfg *config.Config) transaction.Config {
	return transaction.Config{
		Commitment:              rpc.CommitmentType(cfg.Commitment),
		RebroadcastInterval:     cfg.RebroadcastInterval(),
		SendTimeout:             cfg.SendTimeout(),
		BlockHeightPollInterval: cfg.BlockHeightPollInterval(),
	}
}

// LoadWallet prefers keypair_path over private_key.
func LoadWallet(cfg *config.Config) (*wallet.Wallet, error) {
	switch {
	case cfg.KeypairPath != "":
		return wallet.LoadKeypairFile(cfg.KeypairPath)
	case cfg.PrivateKey != "":
		return wallet.NewWallet(cfg.PrivateKey)
	default:
		return nil, ErrNoWallet
	}
}

// Close releases network resources in reverse order of creation.
func (a *App) Close() error {
	return a.shutdown.Shutdown(context.Background())
}
