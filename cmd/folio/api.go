package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Folio server via HTTP.

These commands require a running server (folio serve).
Use --server to specify a custom server URL.

Examples:
  folio api health                      # Check server health
  folio api books list                  # List books
  folio api batch submit <id> batch_ocr # Submit an OCR batch
  folio api pipeline start <id>         # Start the pipeline for a book`,
}

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "Book management commands",
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job management commands",
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch submission and polling commands",
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Pipeline orchestration commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerUIEndpoint{}).Command(getServerURL))

	for _, ep := range endpoints.BookCommands() {
		booksCmd.AddCommand(ep.Command(getServerURL))
	}
	for _, ep := range endpoints.JobCommands() {
		jobsCmd.AddCommand(ep.Command(getServerURL))
	}
	for _, ep := range endpoints.BatchCommands() {
		batchCmd.AddCommand(ep.Command(getServerURL))
	}
	for _, ep := range endpoints.PipelineCommands() {
		pipelineCmd.AddCommand(ep.Command(getServerURL))
	}

	apiCmd.AddCommand(booksCmd)
	apiCmd.AddCommand(jobsCmd)
	apiCmd.AddCommand(batchCmd)
	apiCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(apiCmd)
}
