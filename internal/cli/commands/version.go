package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/cadac/pkg/adapter"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display CADAC version, build information and the registered dialects.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "cadac v%s\n", version)
			_, _ = fmt.Fprintf(out, "commit %s, built %s with %s\n", commit, date, runtime.Version())
			_, _ = fmt.Fprintf(out, "dialects: %s\n", joinOrDash(adapter.ListAdapters()))
		},
	}
}
