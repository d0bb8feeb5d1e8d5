package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pokt-foundation/pocket-gateway/version"
)

// VersionCmd returns the command that prints build information.
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Println(version.Info())
		},
	}
}
