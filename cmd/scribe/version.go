package main

import (
	"fmt"

	"github.com/alvmarrod/site-scribe/internal/version"
	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "scribe version %s\n", version.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  user agent: %s\n", version.UserAgent())
		},
	}
}
