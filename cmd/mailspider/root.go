package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for mailspider.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailspider",
		Short: "Crawl a website and collect email addresses",
		Long: `mailspider crawls a website starting from a seed URL, follows links that
stay on the seed's host, and collects every email address it finds.

Crawls are bounded by depth, page count, and the number of concurrent
fetches. Results can be printed, written to files, stored in a local
history database, or served over HTTP.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
