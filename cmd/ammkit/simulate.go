package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammKit/internal/config"
	"ammKit/internal/dex"
	"ammKit/internal/indexer"
	"ammKit/internal/scenario"
	"ammKit/internal/storage"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario file against a simulated chain",
		RunE:  runSimulate,
	}

	cmd.Flags().String("scenario", "", "scenario YAML file")
	cmd.Flags().String("logs-out", "", "optional raw logs JSONL path for the simulated chain")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	box, outcomes, runErr := runScenario(ctx, cfg.Scenario, logger)
	if box == nil {
		return runErr
	}

	out := cmd.OutOrStdout()
	printOutcomes(out, outcomes)

	if err := printEvents(ctx, out, box); err != nil {
		return err
	}

	balances, err := box.Balances(ctx)
	if err != nil {
		return err
	}
	printBalances(out, box, balances)

	if cfg.LogsOut != "" {
		if err := indexSandbox(ctx, box, cfg.LogsOut, logger); err != nil {
			return err
		}
	}
	return runErr
}

// runScenario builds and runs a scenario file. The sandbox is returned
// with the outcomes even when a step fails, so callers can report state.
func runScenario(ctx context.Context, path string, logger *zap.Logger) (*scenario.Sandbox, []scenario.Outcome, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, nil, err
	}
	box, err := scenario.Build(ctx, sc, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build scenario: %w", err)
	}

	logger.Info("scenario start",
		zap.String("scenario", path),
		zap.Uint64("chain_id", sc.ChainID),
		zap.Int("actions", len(sc.Actions)),
	)
	outcomes, err := box.Run(ctx)
	if err != nil {
		logger.Error("scenario failed", zap.Error(err))
	}
	return box, outcomes, err
}

// indexSandbox writes every log the sandbox's contracts emitted to path.
func indexSandbox(ctx context.Context, box *scenario.Sandbox, path string, logger *zap.Logger) error {
	runner := indexer.NewRunner(indexer.RunConfig{
		Addresses: box.Addresses(),
		BatchSize: 2000,
	}, box.World(), storage.NewJsonlStorage(path), logger)
	return runner.Run(ctx)
}

func printOutcomes(w io.Writer, outcomes []scenario.Outcome) {
	for _, o := range outcomes {
		keys := make([]string, 0, len(o.Values))
		for k := range o.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+o.Values[k])
		}
		line := fmt.Sprintf("step %d %-16s %s", o.Step, o.Type, strings.Join(parts, " "))
		if o.Err != "" {
			line += " error=" + o.Err
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

func printEvents(ctx context.Context, w io.Writer, box *scenario.Sandbox) error {
	world := box.World()
	latest, err := world.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}
	logs, err := world.FilterLogs(ctx, 0, latest, box.Addresses(), nil)
	if err != nil {
		return err
	}

	decoders, err := dex.NewDecoders(dex.DecoderConfig{})
	if err != nil {
		return err
	}
	decodeCtx := dex.DecodeContext{Context: ctx}

	chainID, err := world.GetChainID(ctx)
	if err != nil {
		return err
	}
	records, err := indexer.LogRecords(ctx, chainID.Uint64(), logs, world.BlockTimestamp, nil, time.Now())
	if err != nil {
		return err
	}
	for _, record := range records {
		event, ok, err := dex.DecodeAny(decoders, record, decodeCtx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fmt.Fprintf(w, "block %d log %d %-28s %s\n", event.BlockNumber, event.LogIndex, event.EventName, event.Address)
	}
	return nil
}

func printBalances(w io.Writer, box *scenario.Sandbox, balances []scenario.AccountBalance) {
	for _, b := range balances {
		amount := decimal.NewFromBigInt(b.Amount, 0)
		if token, ok := box.Token(b.Token); ok {
			amount = decimal.NewFromBigInt(b.Amount, -int32(token.Decimals()))
		}
		fmt.Fprintf(w, "balance %-12s %-8s %s\n", b.Account, b.Token, amount.String())
	}
}
