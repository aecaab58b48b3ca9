// Command oxbot is a terminal code interpreter. A language model proposes
// code, the user approves it, and oxbot runs it locally and feeds the output
// back to the model.
//
// # Basic Usage
//
// Start an interactive chat:
//
//	oxbot chat
//
// Ask a single question and print the answer:
//
//	oxbot run "how much disk space is free?"
//
// Inspect and change settings:
//
//	oxbot config show
//	oxbot config set provider.kind remote
//
// # Environment Variables
//
//   - XDG_CONFIG_HOME: base directory for oxbot/config.yaml
//   - Any ${VAR} referenced from config.yaml, e.g. ${OPENROUTER_API_KEY}
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

// globalFlags are the persistent flags shared by all subcommands.
type globalFlags struct {
	configPath  string
	metricsAddr string
	logLevel    string
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	flags := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:   "oxbot",
		Short: "Chat with a model that writes and runs code on your machine",
		Long: `oxbot connects to a local or hosted language model. When the model proposes
code, oxbot shows it and asks before running it.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to the settings file (default $XDG_CONFIG_HOME/oxbot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override logging.level from the settings file")

	rootCmd.AddCommand(
		buildChatCmd(flags),
		buildRunCmd(flags),
		buildConfigCmd(flags),
		buildHealthCmd(flags),
		buildHistoryCmd(flags),
	)
	return rootCmd
}
