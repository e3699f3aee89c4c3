package main

import (
	"github.com/crestline-labs/duework/internal/api"
	"github.com/crestline-labs/duework/internal/server/endpoints"
)

var serverURL string

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	reg := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		reg.Register(ep)
	}

	apiCmd := reg.BuildCommands(getServerURL)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	rootCmd.AddCommand(apiCmd)
}
