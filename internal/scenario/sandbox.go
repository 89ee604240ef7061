package scenario

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"ammKit/internal/amm"
	"ammKit/internal/flash"
	"ammKit/internal/optimal"
	"ammKit/internal/oracle"
	"ammKit/internal/router"
	"ammKit/internal/sim"
)

const defaultDeadline = 20 * time.Minute

var ErrNoOracle = errors.New("no oracle for pair")

// Outcome is the result of one action. Amounts are in base units.
type Outcome struct {
	Step   int
	Type   string
	Values map[string]string
	Err    string
}

// AccountBalance is one account's holding of one token, in base units.
type AccountBalance struct {
	Account string
	Token   string
	Amount  *big.Int
}

// Sandbox is a simulated world built from a Scenario.
type Sandbox struct {
	sc       *Scenario
	world    *sim.World
	router   *router.Router
	logger   *zap.Logger
	tokens   map[string]*sim.Token
	accounts map[string]common.Address

	calculator *optimal.Calculator
	borrowers  map[common.Address]*flash.Borrower
	oracles    map[common.Address]*oracle.Oracle
	pairs      []common.Address
}

// Build deploys the scenario's tokens and factory, funds its accounts and
// seeds its pools.
func Build(ctx context.Context, sc *Scenario, logger *zap.Logger) (*Sandbox, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []sim.Option{sim.WithChainID(sc.ChainID), sim.WithLogger(logger)}
	if sc.StartTime > 0 {
		opts = append(opts, sim.WithTimestamp(sc.StartTime))
	}
	world := sim.NewWorld(opts...)

	s := &Sandbox{
		sc:        sc,
		world:     world,
		router:    router.New(world, world.DeployFactory(), logger),
		logger:    logger,
		tokens:    make(map[string]*sim.Token, len(sc.Tokens)),
		accounts:  make(map[string]common.Address, len(sc.Accounts)),
		borrowers: make(map[common.Address]*flash.Borrower),
		oracles:   make(map[common.Address]*oracle.Oracle),
	}
	for _, cfg := range sc.Tokens {
		s.tokens[cfg.Symbol] = world.DeployToken(cfg.Name, cfg.Symbol, cfg.Decimals)
	}
	for _, name := range sc.Accounts {
		s.accounts[name] = world.NewAccount()
	}

	for i, b := range sc.Balances {
		token := s.tokens[b.Token]
		amount, err := ParseAmount(b.Amount, token.Decimals())
		if err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
		if err := token.Mint(ctx, s.accounts[b.Account], amount); err != nil {
			return nil, fmt.Errorf("balances[%d]: %w", i, err)
		}
	}

	for i, p := range sc.Pools {
		provider := s.accounts[p.Provider]
		tokenA, tokenB := s.tokens[p.TokenA], s.tokens[p.TokenB]
		amountA, err := ParseAmount(p.AmountA, tokenA.Decimals())
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		amountB, err := ParseAmount(p.AmountB, tokenB.Decimals())
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		for _, seed := range []struct {
			token  *sim.Token
			amount *big.Int
		}{{tokenA, amountA}, {tokenB, amountB}} {
			if err := seed.token.Mint(ctx, provider, seed.amount); err != nil {
				return nil, fmt.Errorf("pools[%d]: %w", i, err)
			}
		}
		if _, err := s.addLiquidity(ctx, provider, tokenA, tokenB, amountA, amountB, s.deadline(ctx, nil)); err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
	}

	logger.Info("scenario built",
		zap.Int("tokens", len(s.tokens)),
		zap.Int("accounts", len(s.accounts)),
		zap.Int("pools", len(sc.Pools)),
	)
	return s, nil
}

func (s *Sandbox) World() *sim.World      { return s.world }
func (s *Sandbox) Router() *router.Router { return s.router }

// Token returns the token deployed for symbol.
func (s *Sandbox) Token(symbol string) (*sim.Token, bool) {
	t, ok := s.tokens[symbol]
	return t, ok
}

// Account returns the address assigned to name.
func (s *Sandbox) Account(name string) (common.Address, bool) {
	a, ok := s.accounts[name]
	return a, ok
}

// Addresses lists every pair and helper contract that emits logs.
func (s *Sandbox) Addresses() []common.Address {
	out := append([]common.Address{s.router.Address()}, s.pairs...)
	if s.calculator != nil {
		out = append(out, s.calculator.Address())
	}
	for _, b := range s.borrowers {
		out = append(out, b.Address())
	}
	return out
}

// Run executes every action in order. It stops at the first action that
// fails unexpectedly, or that succeeds when an error was expected.
func (s *Sandbox) Run(ctx context.Context) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(s.sc.Actions))
	for i, action := range s.sc.Actions {
		values, err := s.apply(ctx, action)
		outcome := Outcome{Step: i, Type: action.Type, Values: values}
		if err != nil {
			outcome.Err = err.Error()
		}
		outcomes = append(outcomes, outcome)

		switch {
		case action.ExpectError == "" && err != nil:
			return outcomes, fmt.Errorf("step %d (%s): %w", i, action.Type, err)
		case action.ExpectError != "" && err == nil:
			return outcomes, fmt.Errorf("step %d (%s): expected error %q, got success", i, action.Type, action.ExpectError)
		case action.ExpectError != "" && !strings.Contains(err.Error(), action.ExpectError):
			return outcomes, fmt.Errorf("step %d (%s): expected error %q, got %w", i, action.Type, action.ExpectError, err)
		}
		s.logger.Debug("scenario step", zap.Int("step", i), zap.String("type", action.Type), zap.String("error", outcome.Err))
	}
	return outcomes, nil
}

// Balances reports every account's balance of every token, sorted by
// account then token.
func (s *Sandbox) Balances(ctx context.Context) ([]AccountBalance, error) {
	var out []AccountBalance
	for _, name := range s.sc.Accounts {
		for _, cfg := range s.sc.Tokens {
			amount, err := s.tokens[cfg.Symbol].BalanceOf(ctx, s.accounts[name])
			if err != nil {
				return nil, err
			}
			out = append(out, AccountBalance{Account: name, Token: cfg.Symbol, Amount: amount})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out, nil
}

func (s *Sandbox) apply(ctx context.Context, a Action) (map[string]string, error) {
	account := s.accounts[a.Account]

	switch a.Type {
	case ActionAdvanceTime:
		s.world.AdvanceTime(a.Duration)
		now, _ := s.world.Timestamp(ctx)
		return map[string]string{"timestamp": fmt.Sprint(now)}, nil

	case ActionMint:
		token := s.tokens[a.Token]
		amount, err := ParseAmount(a.Amount, token.Decimals())
		if err != nil {
			return nil, err
		}
		if err := token.Mint(ctx, account, amount); err != nil {
			return nil, err
		}
		return map[string]string{"amount": amount.String()}, nil

	case ActionSwap:
		tokenIn, tokenOut := s.tokens[a.TokenIn], s.tokens[a.TokenOut]
		amount, err := s.amount(a.Amount, tokenIn)
		if err != nil {
			return nil, err
		}
		if err := tokenIn.Approve(ctx, account, s.router.Address(), amount); err != nil {
			return nil, err
		}
		out, err := s.router.Swap(ctx, account, tokenIn.Address(), tokenOut.Address(), amount, account, s.deadline(ctx, a.Deadline))
		if err != nil {
			return nil, err
		}
		return map[string]string{"amountIn": amount.String(), "amountOut": out.String()}, nil

	case ActionAddLiquidity:
		tokenA, tokenB := s.tokens[a.TokenA], s.tokens[a.TokenB]
		amountA, err := s.amount(a.Amount, tokenA)
		if err != nil {
			return nil, err
		}
		amountB, err := s.amount(a.AmountB, tokenB)
		if err != nil {
			return nil, err
		}
		res, err := s.addLiquidity(ctx, account, tokenA, tokenB, amountA, amountB, s.deadline(ctx, a.Deadline))
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"pair":      res.Pair.Hex(),
			"amountA":   res.AmountA.String(),
			"amountB":   res.AmountB.String(),
			"liquidity": res.Liquidity.String(),
		}, nil

	case ActionRemoveLiquidity:
		tokenA, tokenB := s.tokens[a.TokenA], s.tokens[a.TokenB]
		pair, err := s.router.PairFor(ctx, tokenA.Address(), tokenB.Address())
		if err != nil {
			return nil, err
		}
		lp, err := pair.BalanceOf(ctx, account)
		if err != nil {
			return nil, err
		}
		if err := pair.Approve(ctx, account, s.router.Address(), lp); err != nil {
			return nil, err
		}
		res, err := s.router.RemoveLiquidity(ctx, account, tokenA.Address(), tokenB.Address())
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"amountA":   res.AmountA.String(),
			"amountB":   res.AmountB.String(),
			"liquidity": res.Liquidity.String(),
		}, nil

	case ActionOptimalSwap, ActionNonOptimalSwap:
		calc, err := s.calculatorFor()
		if err != nil {
			return nil, err
		}
		tokenIn, tokenOut := s.tokens[a.TokenIn], s.tokens[a.TokenOut]
		amount, err := s.amount(a.Amount, tokenIn)
		if err != nil {
			return nil, err
		}
		if err := tokenIn.Approve(ctx, account, calc.Address(), amount); err != nil {
			return nil, err
		}
		deposit := calc.OptimalSwap
		if a.Type == ActionNonOptimalSwap {
			deposit = calc.NonOptimalSwap
		}
		res, err := deposit(ctx, account, tokenIn.Address(), tokenOut.Address(), amount)
		if err != nil {
			return nil, err
		}
		return map[string]string{
			"swapAmount":  res.SwapAmount.String(),
			"amountOut":   res.AmountOut.String(),
			"liquidity":   res.Liquidity.String(),
			"leftoverIn":  res.LeftoverIn.String(),
			"leftoverOut": res.LeftoverOut.String(),
		}, nil

	case ActionFlashSwap:
		borrower, err := s.borrowerFor(ctx, a.TokenA, a.TokenB)
		if err != nil {
			return nil, err
		}
		token := s.tokens[a.Token]
		amount, err := s.amount(a.Amount, token)
		if err != nil {
			return nil, err
		}
		fee := flash.Fee(amount)
		if err := token.Approve(ctx, account, borrower.Address(), fee); err != nil {
			return nil, err
		}
		if err := borrower.FlashSwap(ctx, account, token.Address(), amount); err != nil {
			return nil, err
		}
		return map[string]string{"amount": amount.String(), "fee": fee.String()}, nil

	case ActionOracleUpdate:
		o, err := s.oracleFor(ctx, a.TokenA, a.TokenB, true)
		if err != nil {
			return nil, err
		}
		if err := o.Update(ctx); err != nil {
			return nil, err
		}
		st := o.Snapshot()
		return map[string]string{
			"status":    st.Status.String(),
			"timestamp": fmt.Sprint(st.BlockTimestampLast),
		}, nil

	case ActionConsult:
		o, err := s.oracleFor(ctx, a.TokenA, a.TokenB, false)
		if err != nil {
			return nil, err
		}
		token := s.tokens[a.Token]
		amount, err := s.amount(a.Amount, token)
		if err != nil {
			return nil, err
		}
		out, err := o.Consult(token.Address(), amount)
		if err != nil {
			return nil, err
		}
		return map[string]string{"amountOut": out.String()}, nil
	}
	return nil, fmt.Errorf("unknown action %q", a.Type)
}

// amount allows an empty value so that zero-amount reverts can be scripted.
func (s *Sandbox) amount(value string, token *sim.Token) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	return ParseAmount(value, token.Decimals())
}

func (s *Sandbox) addLiquidity(ctx context.Context, account common.Address, tokenA, tokenB *sim.Token, amountA, amountB *big.Int, deadline uint64) (router.LiquidityResult, error) {
	if err := tokenA.Approve(ctx, account, s.router.Address(), amountA); err != nil {
		return router.LiquidityResult{}, err
	}
	if err := tokenB.Approve(ctx, account, s.router.Address(), amountB); err != nil {
		return router.LiquidityResult{}, err
	}
	res, err := s.router.AddLiquidity(ctx, account, tokenA.Address(), tokenB.Address(), amountA, amountB, deadline)
	if err != nil {
		return router.LiquidityResult{}, err
	}
	s.trackPair(res.Pair)
	return res, nil
}

func (s *Sandbox) trackPair(pair common.Address) {
	for _, known := range s.pairs {
		if known == pair {
			return
		}
	}
	s.pairs = append(s.pairs, pair)
}

func (s *Sandbox) deadline(ctx context.Context, offset *time.Duration) uint64 {
	now, _ := s.world.Timestamp(ctx)
	d := defaultDeadline
	if offset != nil {
		d = *offset
	}
	deadline := int64(now) + int64(d/time.Second)
	if deadline < 0 {
		return 0
	}
	return uint64(deadline)
}

func (s *Sandbox) base() (*sim.Token, error) {
	token, ok := s.tokens[s.sc.Base]
	if !ok {
		return nil, fmt.Errorf("scenario has no base token")
	}
	return token, nil
}

func (s *Sandbox) calculatorFor() (*optimal.Calculator, error) {
	if s.calculator != nil {
		return s.calculator, nil
	}
	base, err := s.base()
	if err != nil {
		return nil, err
	}
	s.calculator = optimal.New(s.world, s.router, base.Address(), s.logger)
	return s.calculator, nil
}

func (s *Sandbox) pairFor(ctx context.Context, symbolA, symbolB string) (amm.Pair, error) {
	tokenA, okA := s.tokens[symbolA]
	tokenB, okB := s.tokens[symbolB]
	if !okA || !okB {
		return nil, fmt.Errorf("tokenA and tokenB are required")
	}
	return s.router.PairFor(ctx, tokenA.Address(), tokenB.Address())
}

func (s *Sandbox) borrowerFor(ctx context.Context, symbolA, symbolB string) (*flash.Borrower, error) {
	pair, err := s.pairFor(ctx, symbolA, symbolB)
	if err != nil {
		return nil, err
	}
	if b, ok := s.borrowers[pair.Address()]; ok {
		return b, nil
	}
	base, err := s.base()
	if err != nil {
		return nil, err
	}
	b, err := flash.New(s.world, pair.Address(), base.Address(), flash.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.borrowers[pair.Address()] = b
	return b, nil
}

func (s *Sandbox) oracleFor(ctx context.Context, symbolA, symbolB string, create bool) (*oracle.Oracle, error) {
	pair, err := s.pairFor(ctx, symbolA, symbolB)
	if err != nil {
		return nil, err
	}
	if o, ok := s.oracles[pair.Address()]; ok {
		return o, nil
	}
	if !create {
		return nil, fmt.Errorf("%w %s", ErrNoOracle, pair.Address().Hex())
	}
	o, err := oracle.New(ctx, pair, s.world, s.sc.Oracle.MinPeriod)
	if err != nil {
		return nil, err
	}
	s.oracles[pair.Address()] = o
	return o, nil
}
