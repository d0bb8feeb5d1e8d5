package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pokt-foundation/pocket-gateway/cache"
	redistransport "github.com/pokt-foundation/pocket-gateway/transport/redis"
)

const (
	flagRedisURL = "redis-url"
	flagChain    = "chain"
)

// RedisDebugCmd returns the operational command for inspecting the
// gateway's Redis state: per-node service logs and verified node sets.
func RedisDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redis-debug",
		Short: "Inspect gateway Redis state",
	}

	cmd.PersistentFlags().String(flagRedisURL, "redis://localhost:6379", "Redis connection URL")
	cmd.PersistentFlags().String(flagChain, "", "Hex chain ID to inspect (required)")

	cmd.AddCommand(serviceLogsCmd())
	cmd.AddCommand(syncedNodesCmd())

	return cmd
}

func serviceLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "service-logs",
		Short: "Dump per-node service logs for a chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, chainID, err := debugClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx := cmd.Context()
			pattern := client.KB().ServiceLogPattern(chainID)

			type row struct {
				Key string           `json:"key"`
				Log cache.ServiceLog `json:"log"`
			}
			var rows []row

			iter := client.Scan(ctx, 0, pattern, 0).Iterator()
			for iter.Next(ctx) {
				fields, err := client.HGetAll(ctx, iter.Val()).Result()
				if err != nil {
					continue
				}
				rows = append(rows, row{Key: iter.Val(), Log: cache.ParseServiceLog(fields)})
			}
			if err := iter.Err(); err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
			return printJSON(rows)
		},
	}
}

func syncedNodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "synced-nodes",
		Short: "Dump verified in-sync node sets for a chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, chainID, err := debugClient(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx := cmd.Context()
			pattern := client.KB().SyncedNodesPattern(chainID)

			out := map[string][]string{}

			iter := client.Scan(ctx, 0, pattern, 0).Iterator()
			for iter.Next(ctx) {
				data, err := client.Get(ctx, iter.Val()).Result()
				if err != nil {
					continue
				}
				var keys []string
				if err := json.Unmarshal([]byte(data), &keys); err != nil {
					continue
				}
				out[iter.Val()] = keys
			}
			if err := iter.Err(); err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			return printJSON(out)
		},
	}
}

func debugClient(cmd *cobra.Command) (*redistransport.Client, string, error) {
	chainID, _ := cmd.Flags().GetString(flagChain)
	if chainID == "" {
		return nil, "", fmt.Errorf("--chain is required")
	}

	url, _ := cmd.Flags().GetString(flagRedisURL)
	client, err := redistransport.NewClient(context.Background(), redistransport.ClientConfig{URL: url})
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, chainID, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
