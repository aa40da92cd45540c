package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mandalnilabja/latchway/internal/app"
	"github.com/mandalnilabja/latchway/internal/config"
	"github.com/mandalnilabja/latchway/internal/metrics"
	"github.com/mandalnilabja/latchway/internal/provider"
	"github.com/mandalnilabja/latchway/internal/router"
	"github.com/mandalnilabja/latchway/internal/state"
	"github.com/mandalnilabja/latchway/internal/storage"
	"github.com/mandalnilabja/latchway/internal/tokenizer"
	"github.com/mandalnilabja/latchway/internal/transport/http/handler"
)

type serveOptions struct {
	addr           string
	reloadInterval time.Duration
}

func serveDefaults() serveOptions {
	return serveOptions{reloadInterval: 5 * time.Second}
}

func newServeCommand(opts *options) *cobra.Command {
	so := serveDefaults()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, so)
		},
	}
	cmd.Flags().StringVar(&so.addr, "addr", "", "listen address, overrides SERVER_PORT")
	cmd.Flags().DurationVar(&so.reloadInterval, "reload-interval", so.reloadInterval, "re-read the config file at least this often (0 = only on change)")
	return cmd
}

func runServe(ctx context.Context, opts *options, so serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load(opts.configPath)
	if so.addr != "" {
		cfg.ServerPort = so.addr
	}
	logger := setupLogger(levelFor(cfg.LogLevel, opts.debug), cfg.LogFormat)

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	source, err := config.NewSource(cfg.ConfigPath, so.reloadInterval, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	store, err := storage.Open(ctx, cfg.State)
	if err != nil {
		return fmt.Errorf("open %s state store: %w", cfg.State.Backend, err)
	}
	manager := state.NewManager(store)
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("closing state store", "error", err)
		}
	}()

	m := metrics.New()
	invoker := provider.NewInvoker()
	defer invoker.CloseIdleConnections()

	engine := router.New(source, invoker, manager,
		router.WithLogger(logger),
		router.WithMetrics(m),
	)

	repo := handler.NewRepo(handler.Deps{
		Config:    source,
		Engine:    engine,
		State:     manager,
		Tokenizer: tokenizer.New(),
		Metrics:   m,
		Logger:    logger,
	})
	h := app.NewRouter(repo, &app.RouterOptions{Logger: logger})

	snap := source.Snapshot()
	logger.Info("routing table loaded",
		"config", cfg.ConfigPath,
		"backends", len(snap.Backends),
		"categories", len(snap.Categories()),
		"state", cfg.State.Backend,
	)
	printStartupBanner(cfg)

	return app.NewServer(cfg.ServerPort, h, logger, source).Run(ctx)
}
