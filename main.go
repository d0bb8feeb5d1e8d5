package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pokt-foundation/pocket-gateway/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pocket-gateway",
		Short: "Pocket Network relay gateway",
		Long: `Relay gateway for the Pocket Network.

The gateway multiplexes client applications onto a shared pool of service
nodes, continuously verifying that nodes are synced with their chain's tip
and statistically reliable:

- Cherry-picked node selection from rolling performance statistics
- Consensus-driven sync and chain-id health filtering
- Retries with node exclusion and an optional fallback backend
- Shared state via Redis for horizontal scaling`,
	}

	rootCmd.AddCommand(cmd.GatewayCmd())
	rootCmd.AddCommand(cmd.RedisDebugCmd())
	rootCmd.AddCommand(cmd.VersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
