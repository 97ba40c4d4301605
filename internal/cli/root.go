package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cspgate",
	Short: "Policy gateway for agent tool invocations",
	Long:  "Authenticates, authorizes, and preflights every tool call, brokers upstream credentials, and emits a hash-chained receipt for each decision. Fail closed, receipt everything.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
