// Package scenario loads YAML files that describe a simulated Uniswap V2
// world (tokens, funded accounts, seeded pools) and a list of actions to
// run against it.
package scenario

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Action types.
const (
	ActionMint            = "mint"
	ActionSwap            = "swap"
	ActionAddLiquidity    = "addLiquidity"
	ActionRemoveLiquidity = "removeLiquidity"
	ActionOptimalSwap     = "optimalSwap"
	ActionNonOptimalSwap  = "nonOptimalSwap"
	ActionFlashSwap       = "flashSwap"
	ActionAdvanceTime     = "advanceTime"
	ActionOracleUpdate    = "oracleUpdate"
	ActionConsult         = "consult"
)

// Scenario is the root of a scenario file.
type Scenario struct {
	ChainID   uint64        `yaml:"chainId"`
	StartTime uint64        `yaml:"startTime"`
	Base      string        `yaml:"base"` // symbol of the asset every zap and flash pair must contain
	Oracle    OracleConfig  `yaml:"oracle"`
	Tokens    []TokenConfig `yaml:"tokens"`
	Accounts  []string      `yaml:"accounts"`
	Balances  []Balance     `yaml:"balances"`
	Pools     []Pool        `yaml:"pools"`
	Actions   []Action      `yaml:"actions"`
}

type OracleConfig struct {
	MinPeriod time.Duration `yaml:"minPeriod"`
}

type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals uint8  `yaml:"decimals"`
}

// Balance mints Amount whole tokens to Account.
type Balance struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
}

// Pool is seeded by Provider through the router.
type Pool struct {
	TokenA   string `yaml:"tokenA"`
	TokenB   string `yaml:"tokenB"`
	AmountA  string `yaml:"amountA"`
	AmountB  string `yaml:"amountB"`
	Provider string `yaml:"provider"`
}

// Action is one step. Which fields apply depends on Type. Amounts are in
// whole tokens and may carry a fraction up to the token's decimals.
type Action struct {
	Type     string         `yaml:"type"`
	Account  string         `yaml:"account"`
	Token    string         `yaml:"token"`
	TokenIn  string         `yaml:"tokenIn"`
	TokenOut string         `yaml:"tokenOut"`
	TokenA   string         `yaml:"tokenA"`
	TokenB   string         `yaml:"tokenB"`
	Amount   string         `yaml:"amount"`
	AmountB  string         `yaml:"amountB"`
	Duration time.Duration  `yaml:"duration"`
	Deadline *time.Duration `yaml:"deadline"` // relative to the current block time
	// ExpectError makes the step pass only if it fails with an error
	// containing this text.
	ExpectError string `yaml:"expectError"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates scenario YAML.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	sc.setDefaults()
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func (s *Scenario) setDefaults() {
	if s.ChainID == 0 {
		s.ChainID = 31337
	}
	if s.Oracle.MinPeriod == 0 {
		s.Oracle.MinPeriod = 24 * time.Hour
	}
	for i := range s.Tokens {
		if s.Tokens[i].Decimals == 0 {
			s.Tokens[i].Decimals = 18
		}
		if s.Tokens[i].Name == "" {
			s.Tokens[i].Name = s.Tokens[i].Symbol
		}
	}
}

// Validate checks every reference in the file resolves.
func (s *Scenario) Validate() error {
	tokens := make(map[string]bool, len(s.Tokens))
	for i, token := range s.Tokens {
		if token.Symbol == "" {
			return fmt.Errorf("tokens[%d].symbol is required", i)
		}
		if tokens[token.Symbol] {
			return fmt.Errorf("duplicate token %s", token.Symbol)
		}
		tokens[token.Symbol] = true
	}
	accounts := make(map[string]bool, len(s.Accounts))
	for _, name := range s.Accounts {
		if name == "" {
			return fmt.Errorf("account name is required")
		}
		if accounts[name] {
			return fmt.Errorf("duplicate account %s", name)
		}
		accounts[name] = true
	}

	if s.Base != "" && !tokens[s.Base] {
		return fmt.Errorf("base token %s is not declared", s.Base)
	}
	for i, b := range s.Balances {
		if !accounts[b.Account] {
			return fmt.Errorf("balances[%d]: unknown account %q", i, b.Account)
		}
		if !tokens[b.Token] {
			return fmt.Errorf("balances[%d]: unknown token %q", i, b.Token)
		}
	}
	for i, p := range s.Pools {
		if !tokens[p.TokenA] || !tokens[p.TokenB] || p.TokenA == p.TokenB {
			return fmt.Errorf("pools[%d]: invalid token pair %s/%s", i, p.TokenA, p.TokenB)
		}
		if !accounts[p.Provider] {
			return fmt.Errorf("pools[%d]: unknown provider %q", i, p.Provider)
		}
	}
	for i, a := range s.Actions {
		switch a.Type {
		case ActionMint, ActionSwap, ActionAddLiquidity, ActionRemoveLiquidity,
			ActionOptimalSwap, ActionNonOptimalSwap, ActionFlashSwap,
			ActionAdvanceTime, ActionOracleUpdate, ActionConsult:
		default:
			return fmt.Errorf("actions[%d]: unknown type %q", i, a.Type)
		}
		if a.Account != "" && !accounts[a.Account] {
			return fmt.Errorf("actions[%d]: unknown account %q", i, a.Account)
		}
		for _, symbol := range []string{a.Token, a.TokenIn, a.TokenOut, a.TokenA, a.TokenB} {
			if symbol != "" && !tokens[symbol] {
				return fmt.Errorf("actions[%d]: unknown token %q", i, symbol)
			}
		}
	}
	return nil
}

// ParseAmount converts a whole-token amount into base units.
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	if scaled.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", amount)
	}
	return scaled.BigInt(), nil
}
