package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovehq/grove/pkg/api"
	"github.com/grovehq/grove/pkg/config"
	"github.com/grovehq/grove/pkg/events"
	"github.com/grovehq/grove/pkg/garden"
	"github.com/grovehq/grove/pkg/log"
	"github.com/grovehq/grove/pkg/reconcile"
	"github.com/grovehq/grove/pkg/router"
	"github.com/grovehq/grove/pkg/storage"
	"github.com/grovehq/grove/pkg/types"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the grove server",
	Long: `Run the grove server: open the federation store, ensure the local
garden record exists, and serve the HTTP API plus the event loop that
reconciles reports from child gardens.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		logger := log.WithComponent("server")

		if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := storage.NewBoltStore(cfg.Data.Dir)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}

		broker := events.NewBroker()
		broker.Start()

		rec, err := reconcile.New(cfg.ConnectionDefaults())
		if err != nil {
			return err
		}

		svc := garden.NewService(store, broker, rec, cfg.Garden.Name)
		table := router.NewTable(cfg.Garden.Name, svc)
		table.Handle(types.OperationGardenSync, func(ctx context.Context, op *types.Operation) error {
			return svc.Sync(ctx, op.StringArg("sync_target"))
		})
		svc.SetRouter(table)

		if err := svc.EnsureLocal(); err != nil {
			return fmt.Errorf("failed to ensure local garden: %w", err)
		}

		// Event loop: every published event runs through the garden
		// reconciler; events it does not care about are ignored there.
		sub := broker.Subscribe()
		go func() {
			for ev := range sub {
				if err := svc.HandleEvent(ev); err != nil {
					logger.Error().Err(err).Str("event", string(ev.Name)).Msg("Failed to handle event")
				}
			}
		}()

		apiServer := api.NewServer(svc, table)
		errCh := make(chan error, 1)
		go func() {
			if err := apiServer.Start(cfg.ListenAddr()); err != nil {
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()

		if _, err := svc.UpdateStatus(cfg.Garden.Name, types.StatusRunning); err != nil {
			logger.Warn().Err(err).Msg("Failed to mark local garden running")
		}
		if _, err := svc.PublishLocal(types.StatusRunning); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish startup sync")
		}

		logger.Info().Str("garden", cfg.Garden.Name).Msg("Grove is running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigCh:
			logger.Info().Msg("Shutting down")
		case err := <-errCh:
			return err
		}

		// Tell the parent we're going away before tearing anything down.
		if _, err := svc.PublishLocal(types.StatusStopped); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish shutdown sync")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop API server")
		}
		broker.Unsubscribe(sub)
		broker.Stop()
		return store.Close()
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to the grove config file")
}
