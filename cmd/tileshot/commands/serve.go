package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/api"
	"github.com/bryanchriswhite/TileShot/internal/job"
	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/bryanchriswhite/TileShot/internal/output"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TileShot server",
	Long: `Start the TileShot HTTP server.

The server accepts capture jobs over a REST API, streams job progress over a
WebSocket, serves the capture history and, for debug jobs, a live MJPEG
preview of the image being stitched.`,
	Example: `  # Start server on default port (8080)
  tileshot serve

  # Start server on custom port
  tileshot serve --port 9090

  # Keep a page open for jobs that do not name a URL
  tileshot serve --url https://example.com

  # Start with debug logging
  tileshot serve --log-level debug`,
	RunE: runServe,
}

var (
	serveURL           string
	servePreviewWidth  int
	servePreviewHeight int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveURL, "url", "", "open this page and use it for jobs without a URL")
	serveCmd.Flags().IntVar(&servePreviewWidth, "preview-width", output.DefaultPreviewWidth, "maximum preview frame width")
	serveCmd.Flags().IntVar(&servePreviewHeight, "preview-height", output.DefaultPreviewHeight, "maximum preview frame height")
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("cli")
	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	ctx := context.Background()

	log.Info().Bool("headless", cfg.Browser.Headless).Str("remote", cfg.Browser.RemoteURL).Msg("Starting browser")
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if serveURL != "" {
		page, err := a.open(ctx, serveURL)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", serveURL, err)
		}
		defer page.Close()
		a.runner.Attach(page)
	}

	preview := output.NewMJPEGOutput(output.Config{
		MaxWidth:  servePreviewWidth,
		MaxHeight: servePreviewHeight,
	})
	if err := preview.Start(); err != nil {
		return fmt.Errorf("failed to start preview: %w", err)
	}
	defer preview.Stop()
	a.runner.SetPreview(job.NewPreview(preview))

	var hist api.History
	if a.store != nil {
		hist = a.store
	}
	server := api.NewServer(a.runner, configMgr, hist, preview)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Str("api", fmt.Sprintf("http://localhost:%d/api", cfg.ServerPort)).
		Str("preview", fmt.Sprintf("http://localhost:%d/api/preview", cfg.ServerPort)).
		Msg("TileShot is running, press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
