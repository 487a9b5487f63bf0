package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/distill/internal/api"
	"github.com/jackzampolin/distill/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "distill",
	Short: "Book distillation pipeline powered by staged LLM calls",
	Long: `Distill condenses non-fiction books into compact markdown documents
using staged, checkpointed LLM calls.

Two pipelines are available:
  - claims:   extract atomic claims, filter for substance, cluster into
              core ideas, and reconstruct a distilled document
  - chapters: compress each chapter toward a target ratio and assemble
              the results in reading order`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.distill/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "distill home directory (default: ~/.distill)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Load .env (if present) and set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
