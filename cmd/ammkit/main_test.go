package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestQuoteCommand(t *testing.T) {
	out, err := execute(t, "quote",
		"--amount-in", "1000000000000000000",
		"--amount-out", "996006981039903216493",
		"--reserve-in", "1000000000000000000000",
		"--reserve-out", "1000000000000000000000000",
	)
	if err != nil {
		t.Fatalf("quote: %v\n%s", err, out)
	}
	for _, want := range []string{
		"amount_out    996006981039903216493 (996.006981039903216493)",
		"amount_in     1000000000000000000 (1)",
		"optimal_swap",
		"optimal_keep",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}

	if _, err := execute(t, "quote", "--reserve-in", "1", "--reserve-out", "1"); err == nil {
		t.Fatalf("expected missing amount error")
	}
}

const cliScenario = `
tokens:
  - {symbol: DAI}
  - {symbol: WETH}
accounts: [lp, alice]
balances:
  - {account: alice, token: WETH, amount: "10"}
pools:
  - {tokenA: DAI, tokenB: WETH, amountA: "1000000", amountB: "1000", provider: lp}
actions:
  - {type: swap, account: alice, tokenIn: WETH, tokenOut: DAI, amount: "1"}
`

func TestSimulateCommand(t *testing.T) {
	dir := t.TempDir()
	scenarioPath := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(scenarioPath, []byte(cliScenario), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	logsPath := filepath.Join(dir, "logs.jsonl")

	out, err := execute(t, "simulate", "--scenario", scenarioPath, "--logs-out", logsPath, "--log-level", "error")
	if err != nil {
		t.Fatalf("simulate: %v\n%s", err, out)
	}
	for _, want := range []string{
		"amountOut=996006981039903216493",
		"Swap",
		"AddedLiquidity",
		"balance alice        DAI      996.006981039903216493",
		"balance alice        WETH     9",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(logsPath)
	if err != nil {
		t.Fatalf("read logs: %v", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		t.Fatalf("expected indexed logs")
	}
}
