package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadIndexPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "ammkit.yaml")
	if err := os.WriteFile(cfgFile, []byte("batch-size: 50\nout: ./from-file.jsonl\naddress: [\"0x01\", \" 0x02 \"]\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AMMKIT_MAX_RETRIES", "9")

	flags := pflag.NewFlagSet("index", pflag.ContinueOnError)
	flags.String("out", "./data/logs.jsonl", "")
	if err := flags.Parse([]string{"--out", "./from-flag.jsonl"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := LoadIndex(cfgFile, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BatchSize != 50 {
		t.Fatalf("expected batch size from file, got %d", cfg.BatchSize)
	}
	if cfg.Out != "./from-flag.jsonl" {
		t.Fatalf("expected flag to win, got %s", cfg.Out)
	}
	if cfg.MaxRetries != 9 {
		t.Fatalf("expected env max retries, got %d", cfg.MaxRetries)
	}
	if !reflect.DeepEqual(cfg.Addresses, []string{"0x01", "0x02"}) {
		t.Fatalf("unexpected addresses: %v", cfg.Addresses)
	}
	if cfg.RetryBackoff != 500*time.Millisecond || !cfg.CheckpointEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadTwapEnvAliases(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("UNISWAPV2_FACTORY", "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	t.Setenv("DAI", "0x6B175474E89094C44Da98b954EedeAC495271d0F")
	t.Setenv("WETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	t.Setenv("AMMKIT_MIN_PERIOD", "10m")

	cfg, err := LoadTwap("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Factory != "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f" {
		t.Fatalf("factory alias not applied: %q", cfg.Factory)
	}
	if cfg.TokenA != "0x6B175474E89094C44Da98b954EedeAC495271d0F" || cfg.TokenB != "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2" {
		t.Fatalf("token aliases not applied: %q %q", cfg.TokenA, cfg.TokenB)
	}
	if cfg.MinPeriod != 10*time.Minute || cfg.Interval != time.Hour {
		t.Fatalf("unexpected periods: %v %v", cfg.MinPeriod, cfg.Interval)
	}
}

func TestLoadDecodeTopicMap(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AMMKIT_TOPIC0_MAP", "0xaa=Swap, bad, 0xbb=Sync")

	cfg, err := LoadDecode("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[string]string{"0xaa": "Swap", "0xbb": "Sync"}
	if !reflect.DeepEqual(cfg.Topic0Map, want) {
		t.Fatalf("topic map mismatch: %v", cfg.Topic0Map)
	}
	if cfg.Out != "./data/typed_events.jsonl" || cfg.IncludeReserves {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]uint64{
		"":                     0,
		"1700000000":           1700000000,
		"2023-11-14T22:13:20Z": 1700000000,
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %d %v want %d", in, got, err, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
