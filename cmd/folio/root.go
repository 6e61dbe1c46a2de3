package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Batch digitization engine for scanned historical books",
	Long: `Folio digitizes scanned historical book pages using provider batch
inference. Pages move through a fixed pipeline:

  - Split check for two-page spreads
  - Batch OCR of page images
  - Batch translation of OCR text
  - Book summarization
  - Edition publication

Jobs are durable records in DefraDB; submissions run asynchronously on
the provider's batch API and results are collected exactly once.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
