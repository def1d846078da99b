package backtest

import (
	"fmt"
	"io"
	"math/big"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
	"github.com/shopspring/decimal"
)

// BlockResult is one replayed cycle. Err is set when the block could not be replayed at all.
type BlockResult struct {
	BlockNumber uint64
	Cycle       *arbitrage.CycleReport
	Err         error
}

// BacktestMetrics aggregates results across the range
type BacktestMetrics struct {
	BlocksAnalyzed int
	BlocksFailed   int
	// blocks where the divergence crossed the threshold
	Opportunities int
	// opportunities that survived quoting
	Accepted int
	Outcomes map[arbitrage.Outcome]int

	MaxDivergence decimal.Decimal
	AvgDivergence decimal.Decimal
	// sum of Returned - Required over accepted blocks, base units
	TotalMargin *big.Int
	// accepted / opportunities
	HitRate float64
}

type BacktestReport struct {
	StartBlock uint64
	EndBlock   uint64
	Results    []*BlockResult
	Metrics    BacktestMetrics
}

func (r *BacktestReport) CalculateMetrics() {
	m := BacktestMetrics{
		Outcomes:    make(map[arbitrage.Outcome]int),
		TotalMargin: new(big.Int),
	}

	sum := decimal.Zero
	priced := 0
	for _, res := range r.Results {
		if res.Err != nil || res.Cycle == nil {
			m.BlocksFailed++
			continue
		}
		m.BlocksAnalyzed++
		c := res.Cycle
		m.Outcomes[c.Outcome]++

		if c.Divergence != nil {
			abs := c.Divergence.AbsPct()
			sum = sum.Add(abs)
			priced++
			if abs.GreaterThan(m.MaxDivergence) {
				m.MaxDivergence = abs
			}
			if c.Divergence.Intent != nil {
				m.Opportunities++
			}
		}
		if c.Outcome == arbitrage.OutcomeAccepted || c.Outcome == arbitrage.OutcomeExecuted {
			m.Accepted++
			if c.Decision != nil {
				if margin := c.Decision.Margin(); margin != nil {
					m.TotalMargin.Add(m.TotalMargin, margin)
				}
			}
		}
	}

	if priced > 0 {
		m.AvgDivergence = sum.Div(decimal.NewFromInt(int64(priced)))
	}
	if m.Opportunities > 0 {
		m.HitRate = float64(m.Accepted) / float64(m.Opportunities)
	}
	r.Metrics = m
}

// Print writes the summary and the accepted blocks
func (r *BacktestReport) Print(out io.Writer) error {
	w := &errWriter{w: out}
	m := r.Metrics
	fmt.Fprintf(w, "\n=== backtest %d-%d ===\n", r.StartBlock, r.EndBlock)
	fmt.Fprintf(w, "blocks analyzed: %d (failed %d)\n", m.BlocksAnalyzed, m.BlocksFailed)
	fmt.Fprintf(w, "opportunities:   %d\n", m.Opportunities)
	fmt.Fprintf(w, "accepted:        %d (hit rate %.1f%%)\n", m.Accepted, m.HitRate*100)
	fmt.Fprintf(w, "divergence:      avg %s%% max %s%%\n", m.AvgDivergence.StringFixed(4), m.MaxDivergence.StringFixed(4))

	outcomes := make([]string, 0, len(m.Outcomes))
	for o := range m.Outcomes {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)

	table := tablewriter.NewWriter(w)
	table.Header("Outcome", "Blocks")
	for _, o := range outcomes {
		if err := table.Append(o, fmt.Sprint(m.Outcomes[arbitrage.Outcome(o)])); err != nil {
			return fmt.Errorf("outcome table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("outcome table: %w", err)
	}

	accepted := r.accepted()
	if len(accepted) == 0 {
		return w.err
	}
	base := accepted[0].Cycle.Base
	fmt.Fprintf(w, "total margin: %s %s\n", arbitrage.FromUnits(m.TotalMargin, base.Decimals), base.Symbol)

	table = tablewriter.NewWriter(w)
	table.Header("Block", "Difference", "Buy", "Sell", "Amount", "Margin")
	for _, res := range accepted {
		c := res.Cycle
		intent := c.Divergence.Intent
		err := table.Append(
			fmt.Sprint(res.BlockNumber),
			c.Divergence.Display.String()+"%",
			intent.BuyVenue.Name,
			intent.SellVenue.Name,
			arbitrage.FromUnits(c.Decision.Amount, c.Base.Decimals).String(),
			arbitrage.FromUnits(c.Decision.Margin(), c.Base.Decimals).String(),
		)
		if err != nil {
			return fmt.Errorf("block table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("block table: %w", err)
	}
	return w.err
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

func (r *BacktestReport) accepted() []*BlockResult {
	var out []*BlockResult
	for _, res := range r.Results {
		if res.Cycle == nil || res.Cycle.Decision == nil || !res.Cycle.Decision.Profitable {
			continue
		}
		out = append(out, res)
	}
	return out
}
