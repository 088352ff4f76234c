package main

import (
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/detector-gadget-e2e/internal/config"
	"github.com/fairyhunter13/detector-gadget-e2e/internal/fixture"
)

func newFixtureCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Create the upload fixture if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("path") {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				path = cfg.FixturePath
			}
			p, err := fixture.Ensure(path)
			if err != nil {
				return err
			}
			cmd.Println(p)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "fixture path (default HARNESS_FIXTURE_PATH)")
	return cmd
}
