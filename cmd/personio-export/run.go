package main

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single export and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, err := newRunner()
		if err != nil {
			return err
		}

		// Fatal error kinds (authentication, API, file write) propagate
		// here and exit non-zero with no partial CSV output.
		_, err = runner.Run(cmd.Context())
		return err
	},
}
