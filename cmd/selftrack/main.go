package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:     "selftrack",
	Short:   "selftrack — session-scoped personal tracking: datasets, goals, journal, skills",
	Version: version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(goalCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(skillCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
