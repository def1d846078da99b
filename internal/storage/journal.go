package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pulkyeet/flashloan-arb/internal/arbitrage"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

const cycleColumns = `id, started_at, duration_ms, trigger, pair, venue1, price1, venue2, price2,
	divergence_pct, direction, size, net_multiplier, required, returned, amount,
	tx_hash, gas_used, gas_spent, net_pnl, outcome, reason`

// Journal persists every decision cycle to sqlite. It implements arbitrage.Reporter.
type Journal struct {
	db *sql.DB
}

func NewJournal(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) Report(ctx context.Context, r *arbitrage.CycleReport) error {
	return j.Insert(ctx, NewCycleRecord(r))
}

func (j *Journal) Insert(ctx context.Context, rec CycleRecord) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cycles ("+cycleColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		rec.ID, rec.StartedAt, rec.DurationMs, rec.Trigger, rec.Pair,
		rec.Venue1, rec.Price1, rec.Venue2, rec.Price2,
		rec.DivergencePct, rec.Direction, rec.Size, rec.NetMultiplier,
		rec.Required, rec.Returned, rec.Amount,
		rec.TxHash, rec.GasUsed, rec.GasSpent, rec.NetPnL, rec.Outcome, rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert cycle %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the newest cycles first
func (j *Journal) Recent(ctx context.Context, limit int) ([]CycleRecord, error) {
	return j.query(ctx,
		"SELECT "+cycleColumns+" FROM cycles ORDER BY started_at DESC LIMIT ?", limit)
}

// Between returns cycles started in [from, to), oldest first
func (j *Journal) Between(ctx context.Context, from, to time.Time) ([]CycleRecord, error) {
	return j.query(ctx,
		"SELECT "+cycleColumns+" FROM cycles WHERE started_at >= ? AND started_at < ? ORDER BY started_at",
		from.UnixMilli(), to.UnixMilli())
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]CycleRecord, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var r CycleRecord
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &r.DurationMs, &r.Trigger, &r.Pair,
			&r.Venue1, &r.Price1, &r.Venue2, &r.Price2,
			&r.DivergencePct, &r.Direction, &r.Size, &r.NetMultiplier,
			&r.Required, &r.Returned, &r.Amount,
			&r.TxHash, &r.GasUsed, &r.GasSpent, &r.NetPnL, &r.Outcome, &r.Reason,
		); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetStats counts cycles in total and per outcome
func (j *Journal) GetStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)

	var total int64
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cycles").Scan(&total); err != nil {
		return nil, err
	}
	stats["total"] = total

	rows, err := j.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM cycles GROUP BY outcome")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		stats[outcome] = n
	}
	return stats, rows.Err()
}
