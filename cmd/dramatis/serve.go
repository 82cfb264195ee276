package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rowanlight/dramatis/internal/characters"
	"github.com/rowanlight/dramatis/internal/config"
	"github.com/rowanlight/dramatis/internal/intake"
	"github.com/rowanlight/dramatis/internal/notify"
	"github.com/rowanlight/dramatis/internal/runs"
	"github.com/rowanlight/dramatis/internal/server"
	"github.com/rowanlight/dramatis/internal/store"
	"github.com/rowanlight/dramatis/internal/svcctx"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dramatis server",
	Long: `Start the dramatis server.

This starts the Redis queue consumer and the admin HTTP API. Submissions
arrive on the task queue; each one becomes a run that flows through the
analysis pipeline while events stream out on the Redis pub/sub channel.

On shutdown (Ctrl+C or SIGTERM) live runs get a grace period to observe
cancellation before being abandoned.

Examples:
  dramatis serve                    # Start on default port 8080
  dramatis serve --port 3000        # Start on custom port
  dramatis serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()
		cm.OnChange(func(c *config.Config) {
			logger.Info("configuration reloaded")
		})
		cm.WatchConfig()

		norm := characters.NewNormalizer(cfg.Analysis.Honorifics)
		st, err := store.Open(store.Config{
			SQLitePath:  cfg.Storage.SQLitePath,
			PostgresDSN: cfg.Storage.PostgresDSN,
			Normalizer:  norm,
			Logger:      logger,
		})
		if err != nil {
			return err
		}

		publisher, err := notify.NewRedisPublisher(notify.RedisConfig{
			Addr:    cfg.Redis.Addr,
			Channel: cfg.Redis.EventsChannel,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()

		analyzer, err := newAnalyzer(cfg, logger)
		if err != nil {
			return err
		}

		executor := newExecutor(cfg, analyzer, st, publisher, norm, logger)
		registry := runs.NewRegistry(cfg.Shutdown.RunRetention)
		launcher := intake.NewLauncher(registry, executor, st, publisher, logger)

		consumer, err := intake.NewConsumer(intake.ConsumerConfig{
			Addr:     cfg.Redis.Addr,
			Queue:    cfg.Redis.Queue,
			Launcher: launcher,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := consumer.Run(ctx); err != nil {
				logger.Error("queue consumer stopped", "error", err)
			}
		}()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		srv, err := server.New(server.Config{
			Host:     host,
			Port:     port,
			Registry: registry,
			Services: &svcctx.Services{
				Config:    cm,
				Settings:  config.NewStore(cfg.Storage.SettingsPath),
				Store:     st,
				Registry:  registry,
				Publisher: publisher,
				Analyzer:  analyzer,
				Launcher:  launcher,
				Logger:    logger,
			},
			Logger: logger,
		})
		if err != nil {
			return err
		}

		// Blocks until the signal context is cancelled.
		serveErr := srv.Start(ctx)

		// Cancel live runs and give them the grace period to wind down.
		registry.Shutdown(cfg.Shutdown.GracePeriod, logger)
		if err := consumer.Close(); err != nil {
			logger.Warn("closing consumer", "error", err)
		}
		return serveErr
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
