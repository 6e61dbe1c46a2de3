package endpoints

import (
	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/store"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	StoreManager    *store.DockerManager
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{StoreManager: cfg.StoreManager},

		// Book endpoints
		&IngestBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&ListPagesEndpoint{},
		&AnalyzeSplitsEndpoint{},
		&CalibrateSplitsEndpoint{},

		// Job endpoints
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&UpdateJobEndpoint{},

		// Batch endpoints
		&SubmitBatchEndpoint{},
		&PollBatchEndpoint{},

		// Pipeline endpoints
		&StartPipelineEndpoint{},
		&StepPipelineEndpoint{},
		&GetPipelineEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}

// BookCommands returns endpoints whose commands group under "books".
func BookCommands() []api.Endpoint {
	return []api.Endpoint{
		&IngestBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&ListPagesEndpoint{},
		&AnalyzeSplitsEndpoint{},
		&CalibrateSplitsEndpoint{},
	}
}

// JobCommands returns endpoints whose commands group under "jobs".
func JobCommands() []api.Endpoint {
	return []api.Endpoint{
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&UpdateJobEndpoint{},
	}
}

// BatchCommands returns endpoints whose commands group under "batch".
func BatchCommands() []api.Endpoint {
	return []api.Endpoint{
		&SubmitBatchEndpoint{},
		&PollBatchEndpoint{},
	}
}

// PipelineCommands returns endpoints whose commands group under "pipeline".
func PipelineCommands() []api.Endpoint {
	return []api.Endpoint{
		&StartPipelineEndpoint{},
		&StepPipelineEndpoint{},
		&GetPipelineEndpoint{},
	}
}
