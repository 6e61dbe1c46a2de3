// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/folio/internal/batch"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/gutter"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/pipeline"
	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store        *store.Client
	Books        *store.Books
	Pages        *store.Pages
	JobManager   *jobs.Manager
	BatchRecords *batch.Records
	Submitter    *batch.Submitter
	Reconciler   *batch.Reconciler
	Orchestrator *pipeline.Orchestrator
	Splitter     *gutter.Service
	Provider     provider.Provider
	Config       *config.Manager
	Logger       *slog.Logger
	Home         *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the document store client from context.
func StoreFrom(ctx context.Context) *store.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// BooksFrom extracts the book repository from context.
func BooksFrom(ctx context.Context) *store.Books {
	if s := ServicesFrom(ctx); s != nil {
		return s.Books
	}
	return nil
}

// PagesFrom extracts the page repository from context.
func PagesFrom(ctx context.Context) *store.Pages {
	if s := ServicesFrom(ctx); s != nil {
		return s.Pages
	}
	return nil
}

// JobManagerFrom extracts the job manager from context.
func JobManagerFrom(ctx context.Context) *jobs.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.JobManager
	}
	return nil
}

// BatchRecordsFrom extracts the batch job repository from context.
func BatchRecordsFrom(ctx context.Context) *batch.Records {
	if s := ServicesFrom(ctx); s != nil {
		return s.BatchRecords
	}
	return nil
}

// SubmitterFrom extracts the batch submitter from context.
func SubmitterFrom(ctx context.Context) *batch.Submitter {
	if s := ServicesFrom(ctx); s != nil {
		return s.Submitter
	}
	return nil
}

// ReconcilerFrom extracts the batch reconciler from context.
func ReconcilerFrom(ctx context.Context) *batch.Reconciler {
	if s := ServicesFrom(ctx); s != nil {
		return s.Reconciler
	}
	return nil
}

// OrchestratorFrom extracts the pipeline orchestrator from context.
func OrchestratorFrom(ctx context.Context) *pipeline.Orchestrator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Orchestrator
	}
	return nil
}

// SplitterFrom extracts the split analysis service from context.
func SplitterFrom(ctx context.Context) *gutter.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Splitter
	}
	return nil
}

// ProviderFrom extracts the inference provider from context.
func ProviderFrom(ctx context.Context) provider.Provider {
	if s := ServicesFrom(ctx); s != nil {
		return s.Provider
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
