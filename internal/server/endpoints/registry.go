package endpoints

import (
	"github.com/crestline-labs/duework/internal/api"
	"github.com/crestline-labs/duework/internal/store"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// DBManager is the local Postgres container manager, nil when
	// running against an external database.
	DBManager *store.DockerManager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DBManager: cfg.DBManager},

		// Job endpoints
		&CreateJobEndpoint{},
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&RetryJobEndpoint{},
		&JobStatusEndpoint{},
	}
}
