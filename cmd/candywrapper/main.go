// ====================================
// File: cmd/candywrapper/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candy-wrapper/internal/app"
	"github.com/rovshanmuradov/candy-wrapper/internal/config"
	"github.com/rovshanmuradov/candy-wrapper/internal/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cliApp := &cli.App{
		Name:    "candywrapper",
		Usage:   "Find candy machines you own and withdraw their rent",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a JSON/YAML config file",
				EnvVars: []string{"CANDY_WRAPPER_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address (e.g. :9102)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			scanCommand(),
			withdrawCommand(),
			leadersCommand(),
			sendRawCommand(),
			statusCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session is what every command runs with: config, logger and the wired app.
type session struct {
	cfg *config.Config
	log *logger.Logger
	app *app.App
}

// withSession loads config, builds the app and cancels on SIGINT/SIGTERM.
func withSession(c *cli.Context, opts app.Options, run func(ctx context.Context, s *session) error) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.DebugLogging || c.Bool("debug"),
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opLog := log.WithOperation(c.Command.Name)
	a, err := app.New(ctx, cfg, opLog, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			opLog.Warn("Shutdown finished with errors", zap.Error(err))
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, a, opLog)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return run(ctx, &session{cfg: cfg, log: log, app: a})
}

func serveMetrics(addr string, a *app.App, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()
	log.Info("Serving metrics", zap.String("addr", addr))
	return srv
}
