package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/arpositioning/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "arpos %s (%s, built %s)\n",
				version.Version, version.GitSHA, version.BuildTime)
			return err
		},
	}
}
