package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammKit/internal/chain"
	"ammKit/internal/config"
	"ammKit/internal/oracle"
	"ammKit/internal/storage"
	"ammKit/internal/storage/postgres"
)

func newTwapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "twap",
		Short: "Maintain a fixed-window TWAP oracle against a live pair",
		RunE:  runTwap,
	}

	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("pair", "", "pair address (or use --factory with --token-a/--token-b)")
	cmd.Flags().String("factory", "", "factory address used to look up the pair")
	cmd.Flags().String("token-a", "", "first token of the pair")
	cmd.Flags().String("token-b", "", "second token of the pair")
	cmd.Flags().Duration("min-period", 24*time.Hour, "minimum window between oracle updates")
	cmd.Flags().Duration("interval", time.Hour, "poll interval")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("out", "./data/observations.jsonl", "observations JSONL path (empty disables)")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for observations")
	cmd.Flags().String("state-file", "./data/oracle_state.json", "oracle state file")
	cmd.Flags().Bool("state-enabled", true, "persist oracle state between runs")
	cmd.Flags().String("metrics-addr", "", "prometheus listen address, e.g. :9102")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runTwap(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadTwap(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	pairAddress, err := resolvePair(ctx, chainClient, cfg)
	if err != nil {
		return err
	}

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	twap, err := oracle.New(ctx, chain.NewPairContract(chainClient, pairAddress), chainClient, cfg.MinPeriod)
	if err != nil {
		return err
	}

	var sinks storage.MultiSink
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		sinks = append(sinks, store)
	}

	serveMetrics(ctx, cfg.MetricsAddr, logger)

	poller := oracle.NewPoller(oracle.PollConfig{
		ChainID:      chainID.Uint64(),
		Interval:     cfg.Interval,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		StatePath:    cfg.StateFile,
		StateEnabled: cfg.StateEnabled,
	}, twap, sinks, logger)

	logger.Info("twap start",
		zap.String("pair", pairAddress.Hex()),
		zap.Uint64("chain_id", chainID.Uint64()),
		zap.Duration("min_period", twap.MinPeriod()),
		zap.Duration("interval", cfg.Interval),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("state_enabled", cfg.StateEnabled),
	)

	err = poller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func resolvePair(ctx context.Context, client *chain.Client, cfg config.TwapConfig) (common.Address, error) {
	if cfg.Pair != "" {
		if !common.IsHexAddress(cfg.Pair) {
			return common.Address{}, fmt.Errorf("invalid pair address: %s", cfg.Pair)
		}
		return common.HexToAddress(cfg.Pair), nil
	}

	for name, value := range map[string]string{"factory": cfg.Factory, "token-a": cfg.TokenA, "token-b": cfg.TokenB} {
		if !common.IsHexAddress(value) {
			return common.Address{}, fmt.Errorf("pair or a valid %s is required", name)
		}
	}

	factory := chain.NewFactoryContract(client, common.HexToAddress(cfg.Factory))
	pair, err := factory.GetPair(ctx, common.HexToAddress(cfg.TokenA), common.HexToAddress(cfg.TokenB))
	if err != nil {
		return common.Address{}, fmt.Errorf("factory getPair: %w", err)
	}
	if pair == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no pair for %s/%s", cfg.TokenA, cfg.TokenB)
	}
	return pair, nil
}
