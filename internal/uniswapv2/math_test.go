package uniswapv2

import (
	"errors"
	"math/big"
	"testing"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func mustBig(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("bad int %q", s)
	}
	return v
}

func TestGetAmountOutDaiWeth(t *testing.T) {
	// 1_000 DAI into (1_000_000 DAI, 1_000 WETH) in whole units rounds to zero.
	got, err := GetAmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected 0, got %s", got)
	}

	got, err = GetAmountOut(ether(1000), ether(1_000_000), ether(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := mustBig(t, "996006981039903216"); got.Cmp(want) != 0 {
		t.Fatalf("amount out mismatch: %s != %s", got, want)
	}
}

func TestGetAmountOutInvalid(t *testing.T) {
	if _, err := GetAmountOut(big.NewInt(0), ether(1), ether(1)); !errors.Is(err, ErrInsufficientInputAmount) {
		t.Fatalf("expected input amount error, got %v", err)
	}
	if _, err := GetAmountOut(ether(1), big.NewInt(0), ether(1)); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected liquidity error, got %v", err)
	}
}

func TestGetAmountInInvertsOut(t *testing.T) {
	reserveIn, reserveOut := ether(1_000_000), ether(1000)
	out, err := GetAmountOut(ether(1000), reserveIn, reserveOut)
	if err != nil {
		t.Fatalf("amount out: %v", err)
	}
	in, err := GetAmountIn(out, reserveIn, reserveOut)
	if err != nil {
		t.Fatalf("amount in: %v", err)
	}
	if want := mustBig(t, "999999999999999999505"); in.Cmp(want) != 0 {
		t.Fatalf("amount in mismatch: %s != %s", in, want)
	}
	if in.Cmp(ether(1000)) > 0 {
		t.Fatalf("amount in exceeds original input: %s", in)
	}
	if _, err := GetAmountIn(reserveOut, reserveIn, reserveOut); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected liquidity error, got %v", err)
	}
}

func TestSqrt(t *testing.T) {
	cases := map[string]string{
		"0":                   "0",
		"1":                   "1",
		"3":                   "1",
		"4":                   "2",
		"1000000000000000000": "1000000000",
		"1000000000000000000000000000000000000000000000": "31622776601683793319988",
	}
	for in, want := range cases {
		got := Sqrt(mustBig(t, in))
		if got.String() != want {
			t.Fatalf("sqrt(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestOptimalSwapAmount(t *testing.T) {
	got, err := OptimalSwapAmount(ether(1_000_000), ether(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := mustBig(t, "500751001502598493"); got.Cmp(want) != 0 {
		t.Fatalf("swap amount mismatch: %s != %s", got, want)
	}
}

func TestOptimalSwapLeavesNoRemainder(t *testing.T) {
	reserveIn, reserveOut, amountIn := ether(1_000_000), ether(1000), ether(1)

	s, err := OptimalSwapAmount(reserveIn, amountIn)
	if err != nil {
		t.Fatalf("swap amount: %v", err)
	}
	out, err := GetAmountOut(s, reserveIn, reserveOut)
	if err != nil {
		t.Fatalf("amount out: %v", err)
	}

	rest := new(big.Int).Sub(amountIn, s)
	newIn := new(big.Int).Add(reserveIn, s)
	newOut := new(big.Int).Sub(reserveOut, out)
	usedA, usedB, err := DepositAmounts(rest, out, newIn, newOut)
	if err != nil {
		t.Fatalf("deposit amounts: %v", err)
	}
	if usedA.Cmp(rest) != 0 || usedB.Cmp(out) != 0 {
		t.Fatalf("expected full deposit, used %s/%s of %s/%s", usedA, usedB, rest, out)
	}
}

func TestQuote(t *testing.T) {
	got, err := Quote(ether(1), ether(1_000_000), ether(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(big.NewInt(1e15)) != 0 {
		t.Fatalf("quote mismatch: %s", got)
	}
	if _, err := Quote(big.NewInt(0), ether(1), ether(1)); !errors.Is(err, ErrInsufficientAmount) {
		t.Fatalf("expected amount error, got %v", err)
	}
}
