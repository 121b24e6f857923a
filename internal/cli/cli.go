// Package cli implements the orchestrator command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/thuduc/fan-out-fan-in/pkg/buildinfo"
)

// =============================================================================
// Constants
// =============================================================================

const appName = "orchestrator"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
		}),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Orchestrator drives XML valuation requests through hydration and task fan-out",
		Long:         `Orchestrator hydrates an XML valuation request, dispatches its groups of tasks to an external worker pool via Redis, collects their results, and assembles the final response document.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.runCommand())
	root.AddCommand(c.watchCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.rescacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
