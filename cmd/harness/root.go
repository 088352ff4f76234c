package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// errSuiteFailed is returned by run when a step or setup failed. The report
// already explains why, so main only sets the exit code.
var errSuiteFailed = errors.New("suite failed")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "harness",
		Short: "End-to-end harness for the Detector Gadget web application",
		Long: `harness drives the Detector Gadget registration, login, dashboard,
job submission and job stats workflows over HTTP and reports a pass, fail
or skip outcome for every step. Configuration comes from the environment
(APP_URL, HARNESS_*, TWIN_*).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	root.SetVersionTemplate(`{{printf "harness version %s\n" .Version}}`)

	root.AddCommand(newRunCmd())
	root.AddCommand(newFixtureCmd())
	root.AddCommand(newTwinCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of harness",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("harness version %s\n", version)
		},
	}
}
