package collector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"tempedge/internal/scan"
)

// Collector stores every scan for reporting and replay.
type Collector struct {
	db *sql.DB
}

func NewCollector(db *sql.DB) *Collector {
	return &Collector{db: db}
}

// Record writes the scan row, its forecasts, a snapshot of every bucket and
// the opportunities found, in one transaction. A failed scan is stored with
// its error and nothing else.
func (c *Collector) Record(ctx context.Context, res scan.Result, scanErr error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var errText *string
	if scanErr != nil {
		s := scanErr.Error()
		errText = &s
	}
	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (id, started_at, finished_at, markets, opportunities, skipped, stale_prices, forecast_errors, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.StartedAt.UTC().Format(time.RFC3339), finished.UTC().Format(time.RFC3339),
		len(res.Markets), len(res.Opportunities), res.Skipped, res.StalePrices, res.ForecastErrors, errText,
	)
	if err != nil {
		return fmt.Errorf("inserting scan: %w", err)
	}

	if scanErr == nil {
		if err := insertDetails(ctx, tx, res); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scan: %w", err)
	}

	slog.Info("scan recorded",
		"scan", res.ID,
		"forecasts", len(res.Forecasts),
		"markets", len(res.Markets),
		"opportunities", len(res.Opportunities),
	)
	return nil
}

func insertDetails(ctx context.Context, tx *sql.Tx, res scan.Result) error {
	for _, fc := range res.Forecasts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO forecasts (scan_id, city, target_date, high, low, confidence, lead_hours, summary)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			res.ID, fc.City, fc.Date, fc.High, fc.Low, fc.Confidence.String(), fc.LeadHours, fc.Summary,
		)
		if err != nil {
			return fmt.Errorf("inserting forecast %s/%s: %w", fc.City, fc.Date, err)
		}
	}

	for seq, m := range res.Markets {
		for _, b := range m.Buckets {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO bucket_snapshots (scan_id, market_seq, market_id, source, city, target_date, token_id, label, lo, hi, price)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				res.ID, seq, m.ID, m.Source, m.City, m.TargetDate, b.TokenID, b.Label, b.Lo, b.Hi, b.Price,
			)
			if err != nil {
				return fmt.Errorf("inserting bucket snapshot %s/%s: %w", m.ID, b.TokenID, err)
			}
		}
	}

	for _, o := range res.Opportunities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO opportunities (scan_id, market_id, source, city, target_date, token_id, label, side, price, fair_prob, edge, confidence, forecast_high)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			res.ID, o.MarketID, o.Source, o.City, o.TargetDate, o.TokenID, o.Label, string(o.Side),
			o.Price, o.FairProb, o.Edge, o.Confidence, o.ForecastHigh,
		)
		if err != nil {
			return fmt.Errorf("inserting opportunity %s: %w", o.TokenID, err)
		}
	}
	return nil
}
