package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	pond "github.com/alitto/pond/v2"
	"github.com/spf13/cobra"

	"github.com/pokt-foundation/pocket-gateway/cache"
	"github.com/pokt-foundation/pocket-gateway/client"
	"github.com/pokt-foundation/pocket-gateway/config"
	"github.com/pokt-foundation/pocket-gateway/gateway"
	"github.com/pokt-foundation/pocket-gateway/logging"
	"github.com/pokt-foundation/pocket-gateway/metrics"
	"github.com/pokt-foundation/pocket-gateway/observability"
	"github.com/pokt-foundation/pocket-gateway/query"
	"github.com/pokt-foundation/pocket-gateway/relayer"
	redistransport "github.com/pokt-foundation/pocket-gateway/transport/redis"
	"github.com/pokt-foundation/pocket-gateway/version"
)

const (
	flagGatewayConfig = "config"
	flagClientKey     = "client-key"

	// Worker pool sizing. Probes dominate: every uncached session costs up
	// to two probe passes across all of its nodes.
	masterPoolSize  = 200
	probePoolSize   = 50
	metricsPoolSize = 10
)

// GatewayCmd returns the command for starting the gateway.
func GatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Start the relay gateway",
		Long: `Start the relay gateway.

The gateway accepts client JSON-RPC requests, resolves the target
application and blockchain, filters the session's nodes by sync and chain
checks, cherry-picks the best node, and relays with retries and an
optional fallback backend.

Example:
  pocket-gateway gateway --config /etc/pocket-gateway/config.yaml
`,
		RunE: runGateway,
	}

	cmd.Flags().String(flagGatewayConfig, "", "Path to gateway config file (required)")
	cmd.Flags().String(flagClientKey, "", "Hex-encoded client private key for relay proof signing")

	_ = cmd.MarkFlagRequired(flagGatewayConfig)

	return cmd
}

func runGateway(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath, _ := cmd.Flags().GetString(flagGatewayConfig)
	cfg, err := config.LoadGatewayConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLoggerFromConfig(cfg.Logging)
	logger.Info().Str("process_uid", cfg.ProcessUID).Msg("starting gateway")

	observability.ProcessInfo.WithLabelValues(version.Short(), cfg.ProcessUID).Set(1)

	// Observability first so startup is visible.
	obsServer := observability.NewServer(logger, observability.ServerConfig{
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsAddr:    cfg.Metrics.Addr,
		PprofEnabled:   cfg.Pprof.Enabled,
		PprofAddr:      cfg.Pprof.Addr,
	})
	if err := obsServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start observability server: %w", err)
	}

	redisClient, err := redistransport.NewClient(ctx, redistransport.ClientConfig{
		URL:                    cfg.Redis.URL,
		PoolSize:               cfg.Redis.PoolSize,
		MinIdleConns:           cfg.Redis.MinIdleConns,
		PoolTimeoutSeconds:     cfg.Redis.PoolTimeoutSeconds,
		ConnMaxIdleTimeSeconds: cfg.Redis.ConnMaxIdleTimeSeconds,
		Namespace:              cfg.Redis.Namespace,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	obsServer.SetReadinessCheck(func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	cacheAdapter := cache.NewRedisCache(logger, redisClient)

	store, err := query.NewStore(logger, query.ClientConfig{
		BaseURL:  cfg.Store.URL,
		APIKey:   cfg.Store.APIKey,
		RetryMax: cfg.Store.RetryMax,
	})
	if err != nil {
		return fmt.Errorf("failed to create record store client: %w", err)
	}

	apps := cache.NewApplicationCache(logger, cacheAdapter, store)
	lbs := cache.NewLoadBalancerCache(logger, cacheAdapter, store)

	chains := cache.NewBlockchainRegistry(logger, store)
	if err := chains.Load(ctx); err != nil {
		return fmt.Errorf("failed to load blockchains: %w", err)
	}

	sink, err := metrics.NewPostgresSink(ctx, logger, cfg.MetricsDB.ConnectionURL)
	if err != nil {
		return fmt.Errorf("failed to connect to metrics database: %w", err)
	}
	defer func() { _ = sink.Close() }()

	pool := pond.NewPool(masterPoolSize)
	defer pool.StopAndWait()

	recorder := metrics.NewRecorder(logger, metrics.RecorderConfig{
		BufferSize:    cfg.MetricsDB.BufferSize,
		FlushInterval: time.Duration(cfg.MetricsDB.FlushIntervalSeconds) * time.Second,
		MaxBatchSize:  cfg.MetricsDB.MaxBatchSize,
	}, cacheAdapter, sink, pool.NewSubpool(metricsPoolSize))
	recorder.Start(ctx)
	defer recorder.Close()

	var signer *client.Signer
	if keyHex, _ := cmd.Flags().GetString(flagClientKey); keyHex != "" {
		signer, err = client.NewSignerFromHex(keyHex)
		if err != nil {
			return fmt.Errorf("failed to create relay signer: %w", err)
		}
	}

	sender, err := client.NewRelayClient(logger, cfg.Pocket, signer)
	if err != nil {
		return fmt.Errorf("failed to create relay client: %w", err)
	}

	tuner := relayer.NewTuner(cfg.Pocket)
	probePool := pool.NewSubpool(probePoolSize)

	dispatcher := relayer.NewRelayer(
		logger,
		relayer.Config{
			MaxRelayAttempts:         cfg.MaxRelayAttempts,
			MaxPayloadBytes:          cfg.HTTP.MaxPayloadBytes,
			MaxSessionRefreshRetries: cfg.Pocket.MaxSessionRefreshRetries,
			SecretKey:                cfg.SecretKey,
		},
		apps,
		lbs,
		chains,
		sender,
		relayer.NewCherryPicker(logger, cacheAdapter),
		relayer.NewSyncChecker(logger, cacheAdapter, recorder, tuner, probePool),
		relayer.NewChainChecker(logger, cacheAdapter, recorder, tuner, probePool),
		recorder,
		tuner,
		relayer.NewAltruist(logger),
	)

	server := gateway.NewServer(logger, gateway.ServerConfig{
		ListenAddr:             cfg.HTTP.ListenAddr,
		MaxPayloadBytes:        cfg.HTTP.MaxPayloadBytes,
		AliasOverrideWhitelist: cfg.HTTP.AliasOverrideWhitelist,
	}, dispatcher)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("relay server failed: %w", err)
	}

	logger.Info().Msg("gateway stopped")

	return nil
}
