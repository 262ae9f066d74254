package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var buildVersion = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	server string
	json   bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "livelogctl",
		Short:         "Report, follow and inspect livelog errors",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  livelogctl report "TypeError: x is undefined" --source app.js --line 12
  livelogctl tail
  livelogctl session create demo --password
  livelogctl tail --session <token>`,
	}
	root.PersistentFlags().StringVar(&flags.server, "server", "", "livelog server URL (default from config or http://localhost:3000)")
	root.PersistentFlags().BoolVar(&flags.json, "json", false, "print raw JSON")

	root.AddCommand(
		newReportCommand(flags),
		newTailCommand(flags),
		newArchiveCommand(flags),
		newRecentCommand(flags),
		newStatusCommand(flags),
		newSessionCommand(flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print the CLI version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(buildVersion))
			},
		},
	)
	return root
}
