package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crestline-labs/duework/internal/calllog"
	"github.com/crestline-labs/duework/internal/completion"
	"github.com/crestline-labs/duework/internal/config"
	"github.com/crestline-labs/duework/internal/domains"
	"github.com/crestline-labs/duework/internal/home"
	"github.com/crestline-labs/duework/internal/store"
	"github.com/crestline-labs/duework/internal/worker"
)

var workerQueues []string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a job worker",
	Long: `Start a worker that polls job queues and runs claimed jobs.

Workers connect straight to Postgres; the HTTP server does not need to
be running, but the database does (duework serve or duework db up).
Multiple workers can run against the same database: atomic claiming
guarantees each job is picked up exactly once.

Examples:
  duework worker                       # Work all queues
  duework worker --queue extraction    # Work a single queue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()
		cfg := cm.Get()

		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = store.LocalDSN(cfg.Database.Port)
		}
		pool, err := store.Open(ctx, store.Config{
			DSN:      dsn,
			MaxConns: cfg.Database.MaxConns,
		}, logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		// Migrations are idempotent, so a worker can start before the
		// server has ever run.
		if err := store.Migrate(ctx, pool, logger); err != nil {
			return err
		}
		st := store.NewPG(pool)

		registry := completion.NewRegistry()
		registry.SetLogger(logger)
		registry.Reload(cfg.ToRegistryConfig())
		cm.OnChange(func(c *config.Config) {
			registry.Reload(c.ToRegistryConfig())
		})

		client, err := registry.Default()
		if err != nil {
			return fmt.Errorf("no usable completion provider: %w", err)
		}

		sink := calllog.NewSink(st, logger)
		defer sink.Close()

		gateway := completion.NewGateway(completion.GatewayConfig{
			Client:   client,
			Recorder: sink,
			Logger:   logger,
		})

		queues, err := selectQueues(cfg.Worker.Queues, workerQueues)
		if err != nil {
			return err
		}

		w, err := worker.New(worker.Config{
			Store:    st,
			Gateway:  gateway,
			Loader:   home.NewLoader(h),
			Queues:   queues,
			Interval: time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		if err := w.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// selectQueues filters the registered queue descriptors. The --queue flag
// wins over the config; empty means all queues.
func selectQueues(fromConfig, fromFlag []string) ([]worker.QueueDescriptor, error) {
	all := domains.Queues()

	names := fromFlag
	if len(names) == 0 {
		names = fromConfig
	}
	if len(names) == 0 {
		return all, nil
	}

	byName := make(map[string]worker.QueueDescriptor, len(all))
	for _, q := range all {
		byName[q.Queue] = q
	}

	var selected []worker.QueueDescriptor
	for _, name := range names {
		q, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown queue %q", name)
		}
		selected = append(selected, q)
	}
	return selected, nil
}

func init() {
	workerCmd.Flags().StringSliceVar(&workerQueues, "queue", nil, "queues to work (default: all)")

	rootCmd.AddCommand(workerCmd)
}
