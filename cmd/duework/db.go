package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crestline-labs/duework/internal/config"
	"github.com/crestline-labs/duework/internal/home"
	"github.com/crestline-labs/duework/internal/store"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local Postgres container",
}

var dbUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the local Postgres container and apply migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

		m, err := dbManager()
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Start(ctx); err != nil {
			return err
		}

		pool, err := store.Open(ctx, store.Config{DSN: m.DSN()}, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := store.Migrate(ctx, pool, logger); err != nil {
			return err
		}

		fmt.Printf("postgres running\n  dsn: %s\n", m.DSN())
		return nil
	},
}

var dbDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the local Postgres container",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := dbManager()
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Stop(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("postgres stopped")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local Postgres container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := dbManager()
		if err != nil {
			return err
		}
		defer m.Close()

		status, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("container: %s\n", status)
		if status == store.StatusContainerRunning {
			fmt.Printf("dsn:       %s\n", m.DSN())
		}
		return nil
	},
}

// dbManager builds a container manager from config plus the home data dir.
func dbManager() (*store.DockerManager, error) {
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := cm.Get()

	var dataPath string
	if h, err := home.New(homeDir); err == nil {
		if err := h.EnsureExists(); err != nil {
			return nil, err
		}
		dataPath = h.PostgresDataPath()
	}

	return store.NewDockerManager(store.DockerConfig{
		ContainerName: cfg.Database.ContainerName,
		Image:         cfg.Database.Image,
		HostPort:      cfg.Database.Port,
		DataPath:      dataPath,
	})
}

func init() {
	dbCmd.AddCommand(dbUpCmd)
	dbCmd.AddCommand(dbDownCmd)
	dbCmd.AddCommand(dbStatusCmd)
	rootCmd.AddCommand(dbCmd)
}
