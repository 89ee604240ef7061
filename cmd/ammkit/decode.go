package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammKit/internal/chain"
	"ammKit/internal/config"
	"ammKit/internal/dex"
	"ammKit/internal/model"
	"ammKit/internal/storage"
	"ammKit/internal/storage/postgres"
)

const eventBatchSize = 500

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed pair and helper events",
		RunE:  runDecode,
	}

	cmd.Flags().String("rpc", "", "RPC URL for pair and token metadata (optional)")
	cmd.Flags().String("in", "", "input raw logs JSONL")
	cmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	cmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	cmd.Flags().Bool("include-reserves", false, "attach pair reserves at each log's block (requires archive RPC for history)")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the audit_events table")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	decodeCtx := dex.DecodeContext{
		Context:         ctx,
		PairMetaCache:   dex.NewPairMetaCache(),
		TokenMetaCache:  dex.NewTokenMetaCache(),
		Logger:          logger,
		IncludeReserves: cfg.IncludeReserves,
	}
	if cfg.RPCURL != "" {
		chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer chainClient.Close()
		decodeCtx.Chain = chainClient
	}

	outStore := storage.NewJsonlStorage(cfg.Out)
	errStore := storage.NewJsonlStorage(cfg.Errors)
	for _, target := range []*storage.JsonlStorage{outStore, errStore} {
		if err := target.Truncate(); err != nil {
			return err
		}
	}
	sinks := []storage.EventSink{outStore}

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

	decoders, err := dex.NewDecoders(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	logger.Info("decode start",
		zap.Bool("rpc", decodeCtx.Chain != nil),
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Bool("include_reserves", cfg.IncludeReserves),
	)

	scanner := bufio.NewScanner(inputFile)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var (
		events   []model.TypedEvent
		failures []model.DecodeError
	)
	flush := func() error {
		for _, sink := range sinks {
			if err := sink.PutEvents(ctx, events); err != nil {
				return fmt.Errorf("store events: %w", err)
			}
		}
		if err := errStore.PutDecodeErrors(failures); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}
		events, failures = events[:0], failures[:0]
		return nil
	}

	var total, decoded, skipped int
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			failures = append(failures, model.DecodeError{Error: err.Error()})
			continue
		}
		if len(record.Topics) == 0 {
			failures = append(failures, model.NewDecodeError(record, fmt.Errorf("missing topic0")))
			continue
		}

		event, ok, err := dex.DecodeAny(decoders, record, decodeCtx)
		switch {
		case !ok:
			skipped++
			continue
		case err != nil:
			failures = append(failures, model.NewDecodeError(record, err))
			continue
		}
		events = append(events, *event)
		decoded++

		if len(events) >= eventBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	failed := total - decoded - skipped
	if err := flush(); err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)

	return nil
}
