package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-preview"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "stylejsx",
		Short: "stylejsx - scoped component styles for Go",
		Long: `stylejsx stores, deduplicates and serializes scoped component styles.
It renders pre-rendered <style> markup for server responses, inspects the
styles a page carries and serves a live preview of a style manifest.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newFlushCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newDevCommand())
	rootCmd.AddCommand(newBenchCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
