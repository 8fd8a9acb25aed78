package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/config"
	"github.com/fyrsmithlabs/snipd/internal/server"
	"github.com/fyrsmithlabs/snipd/internal/source"
	"github.com/fyrsmithlabs/snipd/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the snipd daemon",
	Long: `Run the snipd daemon: the HTTP API, the optional NATS capture feed,
and the processing pipeline. Shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	tel, err := telemetry.Setup(nil)
	if err != nil {
		return err
	}
	metrics := telemetry.NewPipelineMetrics(nil)

	a, err := buildApp(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	srv, err := server.NewServer(a.repo, a.state, a.exec, a.coord, tel.Handler(), logger, server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return err
	}

	var sub *source.Subscriber
	if cfg.NATS.Enabled {
		nc, err := source.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		sub = source.NewSubscriber(nc, a.repo, a.coord, logger)
		if err := sub.Start(ctx); err != nil {
			return err
		}
		defer sub.Close()
	}

	go func() {
		if err := a.coord.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("pipeline stopped", zap.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			return err
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
	return nil
}
