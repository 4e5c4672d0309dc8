// Package main implements supplierctl, a CLI for the supplierd HTTP API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set via ldflags during build.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	cli := &client{}

	root := &cobra.Command{
		Use:   "supplierctl",
		Short: "CLI for supplierd HTTP server operations",
		Long: `supplierctl talks to a running supplierd server. It extracts and
deduplicates suppliers, manages the ignore list and cache, and shows
extraction history and statistics.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&cli.serverURL, "server", "http://localhost:8000", "supplierd server URL")
	root.PersistentFlags().BoolVar(&cli.jsonOutput, "json", false, "print raw JSON responses")
	root.PersistentFlags().DurationVar(&cli.timeout, "timeout", defaultTimeout, "request timeout")

	root.AddCommand(
		newExtractCmd(cli),
		newDedupeCmd(cli),
		newHistoryCmd(cli),
		newStatsCmd(cli),
		newIgnoreCmd(cli),
		newCacheCmd(cli),
		newHealthCmd(cli),
	)
	return root
}
