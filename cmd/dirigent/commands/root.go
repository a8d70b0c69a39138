package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tosin2013/dirigent/pkg/telemetry"
)

var (
	// Global flags
	logLevel   string
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dirigent",
		Short: "Dirigent - Sandboxed directive execution engine",
		Long: `Dirigent executes declarative directives: ordered plans of bounded
operations produced by tool servers and run inside a resource-constrained
sandbox.

Features:
  - JSON/YAML directive decoding with schema validation
  - Dependency resolution and conditional operations
  - Resource limits (timeout, memory, filesystem, network)
  - Result composition with transforms
  - State-machine execution with retry/skip/abort policies
  - Whole-directive result caching (in-memory or SQLite)`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newLintCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newCacheCommand())

	return rootCmd
}

func newCLILogger() (*telemetry.Logger, error) {
	format := "console"
	if jsonOutput {
		format = "json"
	}
	return telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  logLevel,
		Format: format,
		Output: "stderr",
	})
}
