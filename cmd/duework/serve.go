package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crestline-labs/duework/internal/config"
	"github.com/crestline-labs/duework/internal/home"
	"github.com/crestline-labs/duework/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the duework server",
	Long: `Start the duework HTTP server.

When no external database DSN is configured this also starts the local
Postgres container and stops it again on shutdown (Ctrl+C or SIGTERM).

The server provides:
  - /health - Basic server health check
  - /ready  - Readiness check (includes database status)
  - /api/*  - Job management API

Examples:
  duework serve                  # Start on default port 8080
  duework serve --port 3000      # Start on custom port
  duework serve --host 0.0.0.0   # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		host := serveHost
		if host == "" {
			host = cm.Get().Server.Host
		}
		port := servePort
		if port == "" {
			port = cm.Get().Server.Port
		}

		srv, err := server.New(server.Config{
			Host:          host,
			Port:          port,
			ConfigManager: cm,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default from config)")

	rootCmd.AddCommand(serveCmd)
}
