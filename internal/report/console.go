// Package report prints decision cycles for an operator watching the terminal.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
)

const nativeDecimals = 18

// places shown for a quote token priced in base
const priceDigits = 12

const rule = "---------------------------------------------------------------------------"

// Console implements arbitrage.Reporter
type Console struct {
	mu  sync.Mutex
	out io.Writer
	// print cycles that found nothing
	verbose bool
}

func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter is for tests
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// Report prints one cycle. Table and write failures are returned, not swallowed.
func (c *Console) Report(_ context.Context, r *arbitrage.CycleReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := &errWriter{w: c.out}
	pair := r.Base.Symbol + "/" + r.Quote.Symbol

	if r.Divergence == nil || r.Divergence.Intent == nil {
		if c.verbose {
			pct := "n/a"
			if r.Divergence != nil {
				pct = r.Divergence.Display.String() + "%"
			}
			fmt.Fprintf(w, "[%s] %s difference %s: %s\n",
				r.StartedAt.Format("15:04:05"), pair, pct, r.Reason())
		}
		return w.err
	}

	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "[%s] arbitrage opportunity, difference %s%%\n",
		r.StartedAt.Format("15:04:05"), r.Divergence.Display.String())
	tableErr := printPrices(w, r, pair)

	intent := r.Divergence.Intent
	fmt.Fprintf(w, "  buy  --> %s\n  sell --> %s\n", intent.BuyVenue.Name, intent.SellVenue.Name)

	if d := r.Decision; d != nil {
		fmt.Fprintf(w, "  net multiplier %s", d.NetMultiplier.StringFixed(6))
		if d.Required != nil {
			fmt.Fprintf(w, " | required %s", formatUnits(d.Required, r.Base.Decimals))
		}
		if d.Returned != nil {
			fmt.Fprintf(w, " | returned %s", formatUnits(d.Returned, r.Base.Decimals))
		}
		fmt.Fprintln(w)
	}

	if r.Trade != nil {
		tableErr = errors.Join(tableErr, printBalances(w, r))
	}

	fmt.Fprintf(w, "  outcome: %s (%s)\n%s\n", r.Outcome, r.Reason(), rule)
	return errors.Join(tableErr, w.err)
}

// printPrices shows the pool price next to what one quote token costs in base,
// the figure the buy venue is chosen on
func printPrices(w io.Writer, r *arbitrage.CycleReport, pair string) error {
	table := tablewriter.NewWriter(w)
	table.Header("Venue", "Pair", "Pool price", r.Quote.Symbol+" in "+r.Base.Symbol)
	for _, p := range r.Prices {
		if p == nil {
			continue
		}
		pool := "-"
		if p.PoolRate.Sign() > 0 {
			pool = p.PoolRate.StringFixed(8)
		}
		if err := table.Append(p.Venue.Name, pair, pool, p.Rate.Round(priceDigits).String()); err != nil {
			return fmt.Errorf("price table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("price table: %w", err)
	}
	return nil
}

func printBalances(w io.Writer, r *arbitrage.CycleReport) error {
	t := r.Trade
	table := tablewriter.NewWriter(w)
	table.Header("Asset", "Before", "After", "Change")
	rows := [][]string{
		{"native",
			formatUnits(t.NativeBefore, nativeDecimals),
			formatUnits(t.NativeAfter, nativeDecimals),
			formatUnits(negate(t.GasSpent), nativeDecimals)},
		{r.Base.Symbol,
			formatUnits(t.BaseBefore, r.Base.Decimals),
			formatUnits(t.BaseAfter, r.Base.Decimals),
			formatUnits(t.NetPnL, r.Base.Decimals)},
	}
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("balance table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("balance table: %w", err)
	}

	if t.Receipt != nil {
		fmt.Fprintf(w, "  tx %s block %d gas %d\n", t.Receipt.TxHash.Hex(), t.Receipt.BlockNumber, t.Receipt.GasUsed)
	}
	return nil
}

// errWriter keeps the first write error and drops everything after it
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

func formatUnits(v *big.Int, decimals int) string {
	if v == nil {
		return "-"
	}
	return arbitrage.FromUnits(v, decimals).String()
}

func negate(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Neg(v)
}
