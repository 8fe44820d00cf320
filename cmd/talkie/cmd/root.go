// Package cmd provides the CLI commands for the talkie retrieval
// engine.
package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungtweek/tweek.ninja-talkie/internal/logging"
	"github.com/yungtweek/tweek.ninja-talkie/pkg/version"
)

// Persistent flags shared by all commands.
var (
	cfgPath        string
	logLevel       string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the talkie CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "talkie",
		Short: "Hybrid retrieval and context assembly engine",
		Long: `Talkie answers natural-language queries over a document-chunk
index by fusing keyword (BM25) and vector search with a
keyword-strength-aware policy, then packs the results into a bounded
context for a language model.

Korean and English queries are both supported; spelled-out Korean
technical terms ("챗지피티") are folded into their acronyms.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("talkie version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Minimum log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.talkie/logs/")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newPackCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if debugMode {
		logCfg.Level = "debug"
		logCfg.FilePath = logging.DefaultLogPath()
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("command_failed", slog.String("error", err.Error()))
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return err
	}
	return nil
}
