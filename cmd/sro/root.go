package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	workspaceDir string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sro",
	Short: "Sovereign Research Orchestrator",
	Long: `sro drives a single research session: an LLM-backed tree-of-thoughts
search over a question, backed by a tiered SPO fact store.

Commands:
  run     Run a research session on a question
  stats   Print a session's accumulated statistics
  export  Export a session's tree and fact store as JSON`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "sro.yaml", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&workspaceDir, "workspace", "", "workspace directory for logs (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}
