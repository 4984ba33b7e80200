package main

import (
	"fmt"
	"os"

	"github.com/labstack/gommon/log"
	"github.com/spf13/cobra"

	"github.com/metascrub/backend/internal/config"
	"github.com/metascrub/backend/internal/logger"
	"github.com/metascrub/backend/internal/metadata"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.AppConfig
	appLog  *log.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "metascrub",
		Short: "Inspect and remove file metadata",
		Long: `metascrub reads and strips embedded metadata (EXIF, PDF document info,
DOCX core properties and audio tags). Without a subcommand it starts the web server.`,
		PersistentPreRunE: setup,
		RunE:              runServe,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newServeCmd(), newAnalyzeCmd(), newStripCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the shared logger
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Advanced.LogLevel
	if verbose {
		level = "debug"
	}

	appLog, err = logger.New("metascrub", level, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

// newDispatcher builds the metadata dispatcher from the processing settings
func newDispatcher(tempDir string) *metadata.Dispatcher {
	return metadata.NewDispatcher(appLog, metadata.Options{
		TempDir:     tempDir,
		JPEGQuality: cfg.Processing.JPEGQuality,
		AutoOrient:  cfg.Processing.AutoOrient,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Printing the version must not depend on a readable config file
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "metascrub %s (built %s)\n", Version, BuildTime)
		},
	}
}
