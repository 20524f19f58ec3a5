package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldops-platform/apps/api/internal/ingest"
)

var classifyCmd = &cobra.Command{
	Use:   "classify FILE...",
	Short: "Print the ingestion strategy each file name selects",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", ingest.Classify(name), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
