package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/TileShot/internal/config"
	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "tileshot",
		Short: "TileShot - Full page and element screenshots of web pages",
		Long: `TileShot captures any region of a web page, including regions larger
than the browser viewport, by scrolling the page, grabbing one viewport-sized
tile at a time and stitching the tiles into a single image.

Features:
  • Element, viewport, full page and explicit region captures
  • Correct output on high-DPI (device pixel ratio > 1) pages
  • PNG, JPEG, TIFF, BMP and PDF output
  • Delivery to a directory, the clipboard or memory
  • Capture history in a local SQLite database
  • REST and WebSocket API with a live stitching preview`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/tileshot/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file, applies the --port and --log-level
// overrides (flag or environment) without saving them, and sets up logging
func loadConfig() (*config.Manager, *config.Config, error) {
	// configure logging from the environment before the config file logs
	logger.Init(viper.GetString("log_level"), logger.IsTerminal())

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := configMgr.Get()

	// Override port from flag if provided
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			cfg.ServerPort = port
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			cfg.LogLevel = level
		}
	}

	logger.Init(cfg.LogLevel, logger.IsTerminal())
	return configMgr, cfg, nil
}
