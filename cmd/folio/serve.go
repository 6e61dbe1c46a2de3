package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/server"
	"github.com/jackzampolin/folio/internal/store"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Folio server",
	Long: `Start the Folio HTTP server.

This starts both the HTTP API server and the DefraDB container.
When the server shuts down (via Ctrl+C or SIGTERM), DefraDB is also stopped.

Examples:
  folio serve                    # Start on default port 8080
  folio serve --port 3000        # Start on custom port
  folio serve --host 0.0.0.0     # Bind to all interfaces`,
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

		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()
		cfg := cfgMgr.Get()

		// Ensure defradb data directory exists
		storeDataPath := filepath.Join(h.Path(), "defradb")
		if err := os.MkdirAll(storeDataPath, 0o755); err != nil {
			return err
		}

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			StoreDataPath: storeDataPath,
			StoreConfig: store.DockerConfig{
				ContainerName: cfg.Defra.ContainerName,
				Image:         cfg.Defra.Image,
				HostPort:      cfg.Defra.Port,
			},
			ConfigManager: cfgMgr,
			HomeDir:       h,
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
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
