package main

import (
	"fmt"
	"io"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ammKit/internal/config"
	"ammKit/internal/uniswapv2"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap and the optimal single-sided split against given reserves",
		RunE:  runQuote,
	}

	cmd.Flags().String("amount-in", "", "input amount in base units")
	cmd.Flags().String("amount-out", "", "desired output amount in base units (optional)")
	cmd.Flags().String("reserve-in", "", "reserve of the input token in base units")
	cmd.Flags().String("reserve-out", "", "reserve of the output token in base units")
	cmd.Flags().Int32("decimals", 18, "decimals used to display amounts")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	if cfg.AmountIn == "" && cfg.AmountOut == "" {
		return fmt.Errorf("amount-in or amount-out is required")
	}

	reserveIn, err := parseBaseUnits("reserve-in", cfg.ReserveIn)
	if err != nil {
		return err
	}
	reserveOut, err := parseBaseUnits("reserve-out", cfg.ReserveOut)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if cfg.AmountIn != "" {
		amountIn, err := parseBaseUnits("amount-in", cfg.AmountIn)
		if err != nil {
			return err
		}
		amountOut, err := uniswapv2.GetAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		printAmount(out, "amount_out", amountOut, cfg.Decimals)

		swap, err := uniswapv2.OptimalSwapAmount(reserveIn, amountIn)
		if err != nil {
			return err
		}
		printAmount(out, "optimal_swap", swap, cfg.Decimals)
		printAmount(out, "optimal_keep", new(big.Int).Sub(amountIn, swap), cfg.Decimals)
	}
	if cfg.AmountOut != "" {
		amountOut, err := parseBaseUnits("amount-out", cfg.AmountOut)
		if err != nil {
			return err
		}
		amountIn, err := uniswapv2.GetAmountIn(amountOut, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		printAmount(out, "amount_in", amountIn, cfg.Decimals)
	}
	return nil
}

func parseBaseUnits(name, value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s: %s", name, value)
	}
	return v, nil
}

func printAmount(w io.Writer, label string, v *big.Int, decimals int32) {
	fmt.Fprintf(w, "%-13s %s (%s)\n", label, v.String(), decimal.NewFromBigInt(v, -decimals).String())
}
