// Package cmd provides the CLI commands for AskDocs.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/askdocs/askdocs/internal/config"
	"github.com/askdocs/askdocs/internal/logging"
	"github.com/askdocs/askdocs/pkg/version"
)

var (
	configPath string
	dataDir    string
	debugMode  bool

	cfg            *config.Config
	loggingCleanup func()
)

// Execute runs the root command, cancelling on interrupt.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd creates the root command for the askdocs CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "askdocs",
		Short: "Ask questions about your documents",
		Long: `AskDocs answers questions about your own documents.

Add text, Markdown, or PDF files to build a searchable corpus, then ask
questions in plain language. Answers are generated strictly from your
documents and cite the passages they came from.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("askdocs version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <data-dir>/askdocs.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Corpus data directory (default: ~/.askdocs)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupEnvironment
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupEnvironment loads .env, resolves configuration, and wires logging.
func setupEnvironment(_ *cobra.Command, _ []string) error {
	// A missing .env file is fine
	_ = godotenv.Load()

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		loaded.DataDir = dataDir
	}
	cfg = loaded

	level := cfg.LogLevel
	if debugMode {
		level = "debug"
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.WriteToStderr = debugMode
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}
