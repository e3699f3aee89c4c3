package main

import (
	"github.com/spf13/cobra"

	"github.com/crestline-labs/duework/internal/api"
	"github.com/crestline-labs/duework/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "duework",
	Short: "Durable multi-phase AI analysis pipeline",
	Long: `Duework runs long multi-phase AI analysis jobs against a Postgres-backed
queue. Each phase's output is checkpointed, so interrupted jobs resume
from where they left off instead of repeating completed work.

Built-in job types:
  - panel       Multi-angle risk panel over uploaded documents
  - extraction  Multi-pass structured data extraction with merge
  - debate      Adversarial specialist debate with a final verdict
  - screening   Criteria screening and scorecard`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.duework/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "duework home directory (default: ~/.duework)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
