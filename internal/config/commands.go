package config

import (
	"time"

	"github.com/spf13/pflag"
)

// SimulateConfig holds configuration for the simulate command.
type SimulateConfig struct {
	Scenario string
	LogsOut  string
	LogLevel string
}

func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return SimulateConfig{}, err
	}
	return SimulateConfig{
		Scenario: v.GetString("scenario"),
		LogsOut:  v.GetString("logs-out"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// QuoteConfig holds configuration for the quote command. Amounts are
// integers in base units; Decimals only affects display.
type QuoteConfig struct {
	AmountIn   string
	AmountOut  string
	ReserveIn  string
	ReserveOut string
	Decimals   int32
	LogLevel   string
}

func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"decimals": 18,
	})
	if err != nil {
		return QuoteConfig{}, err
	}
	return QuoteConfig{
		AmountIn:   v.GetString("amount-in"),
		AmountOut:  v.GetString("amount-out"),
		ReserveIn:  v.GetString("reserve-in"),
		ReserveOut: v.GetString("reserve-out"),
		Decimals:   v.GetInt32("decimals"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}

// TwapConfig holds configuration for the twap command. Pair may be empty
// when Factory, TokenA and TokenB identify it.
type TwapConfig struct {
	RPCURL       string
	Pair         string
	Factory      string
	TokenA       string
	TokenB       string
	MinPeriod    time.Duration
	Interval     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Out          string
	PGDSN        string
	StateFile    string
	StateEnabled bool
	MetricsAddr  string
	LogLevel     string
}

func LoadTwap(cfgFile string, flags *pflag.FlagSet) (TwapConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"min-period":    24 * time.Hour,
		"interval":      time.Hour,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
		"out":           "./data/observations.jsonl",
		"state-file":    "./data/oracle_state.json",
		"state-enabled": true,
	})
	if err != nil {
		return TwapConfig{}, err
	}
	return TwapConfig{
		RPCURL:       v.GetString("rpc"),
		Pair:         v.GetString("pair"),
		Factory:      v.GetString("factory"),
		TokenA:       v.GetString("token-a"),
		TokenB:       v.GetString("token-b"),
		MinPeriod:    v.GetDuration("min-period"),
		Interval:     v.GetDuration("interval"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		StateFile:    v.GetString("state-file"),
		StateEnabled: v.GetBool("state-enabled"),
		MetricsAddr:  v.GetString("metrics-addr"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
