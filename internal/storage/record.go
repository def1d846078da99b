package storage

import (
	"math/big"
	"time"

	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"
)

// CycleRecord is one journal row. Amounts are decimal strings in raw token units so
// nothing is lost to float conversion. The parquet tags drive the export schema.
type CycleRecord struct {
	ID            string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartedAt     int64  `parquet:"name=started_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	DurationMs    int64  `parquet:"name=duration_ms, type=INT64"`
	Trigger       string `parquet:"name=trigger, type=BYTE_ARRAY, convertedtype=UTF8"`
	Pair          string `parquet:"name=pair, type=BYTE_ARRAY, convertedtype=UTF8"`
	Venue1        string `parquet:"name=venue1, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price1        string `parquet:"name=price1, type=BYTE_ARRAY, convertedtype=UTF8"`
	Venue2        string `parquet:"name=venue2, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price2        string `parquet:"name=price2, type=BYTE_ARRAY, convertedtype=UTF8"`
	DivergencePct string `parquet:"name=divergence_pct, type=BYTE_ARRAY, convertedtype=UTF8"`
	Direction     string `parquet:"name=direction, type=BYTE_ARRAY, convertedtype=UTF8"`
	Size          string `parquet:"name=size, type=BYTE_ARRAY, convertedtype=UTF8"`
	NetMultiplier string `parquet:"name=net_multiplier, type=BYTE_ARRAY, convertedtype=UTF8"`
	Required      string `parquet:"name=required, type=BYTE_ARRAY, convertedtype=UTF8"`
	Returned      string `parquet:"name=returned, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount        string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	TxHash        string `parquet:"name=tx_hash, type=BYTE_ARRAY, convertedtype=UTF8"`
	GasUsed       int64  `parquet:"name=gas_used, type=INT64"`
	GasSpent      string `parquet:"name=gas_spent, type=BYTE_ARRAY, convertedtype=UTF8"`
	NetPnL        string `parquet:"name=net_pnl, type=BYTE_ARRAY, convertedtype=UTF8"`
	Outcome       string `parquet:"name=outcome, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason        string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func NewCycleRecord(r *arbitrage.CycleReport) CycleRecord {
	rec := CycleRecord{
		ID:         r.ID.String(),
		StartedAt:  r.StartedAt.UnixMilli(),
		DurationMs: r.Duration.Milliseconds(),
		Trigger:    r.Trigger,
		Pair:       r.Base.Symbol + "/" + r.Quote.Symbol,
		Outcome:    string(r.Outcome),
	}
	if r.Err != nil {
		rec.Reason = r.Err.Error()
	}

	if p := r.Prices[0]; p != nil {
		rec.Venue1, rec.Price1 = p.Venue.Name, p.Rate.String()
	}
	if p := r.Prices[1]; p != nil {
		rec.Venue2, rec.Price2 = p.Venue.Name, p.Rate.String()
	}
	if d := r.Divergence; d != nil {
		rec.DivergencePct = d.Pct.StringFixed(8)
		if d.Intent != nil {
			rec.Direction = d.Intent.Direction.String()
		}
	}
	if !r.Size.IsZero() {
		rec.Size = r.Size.String()
	}
	if d := r.Decision; d != nil {
		rec.NetMultiplier = d.NetMultiplier.String()
		rec.Required = bigString(d.Required)
		rec.Returned = bigString(d.Returned)
		rec.Amount = bigString(d.Amount)
	}
	if t := r.Trade; t != nil {
		rec.GasSpent = bigString(t.GasSpent)
		rec.NetPnL = bigString(t.NetPnL)
		if t.Receipt != nil {
			rec.TxHash = t.Receipt.TxHash.Hex()
			rec.GasUsed = int64(t.Receipt.GasUsed)
		}
	}
	return rec
}

func (r CycleRecord) Time() time.Time {
	return time.UnixMilli(r.StartedAt)
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
