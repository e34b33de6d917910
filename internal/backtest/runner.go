// Package backtest replays recorded scans through a detector, so threshold
// and sigma changes can be judged against history.
package backtest

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"tempedge/internal/edge"
	"tempedge/internal/market"
	"tempedge/internal/weather"
)

const dateLayout = "2006-01-02"

// Runner replays stored bucket snapshots and forecasts.
type Runner struct {
	db       *sql.DB
	detector *edge.Detector
	now      func() time.Time
}

func NewRunner(db *sql.DB, detector *edge.Detector) *Runner {
	return &Runner{db: db, detector: detector, now: time.Now}
}

// Summary compares replayed opportunities with the ones recorded live.
type Summary struct {
	Scans         int
	Markets       int
	Opportunities int
	Recorded      int
	AvgEdge       float64
	ByCity        map[string]int
}

// Run replays every successful scan started within [from, to] (inclusive
// dates, YYYY-MM-DD). Empty bounds default to the last 30 days.
func (r *Runner) Run(fromStr, toStr string) (*Summary, error) {
	from, to, err := r.parseDateRange(fromStr, toStr)
	if err != nil {
		return nil, err
	}

	slog.Info("replay starting", "from", from.Format(dateLayout), "to", to.Format(dateLayout),
		"min_edge", r.detector.MinEdge())

	scans, err := r.loadScans(from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("loading scans: %w", err)
	}
	if len(scans) == 0 {
		return nil, fmt.Errorf("no recorded scans in range %s to %s", from.Format(dateLayout), to.Format(dateLayout))
	}

	s := &Summary{Scans: len(scans), ByCity: make(map[string]int)}
	var edgeSum float64
	for _, sc := range scans {
		s.Recorded += sc.recorded

		forecasts, err := r.loadForecasts(sc.id)
		if err != nil {
			slog.Warn("failed to load forecasts", "scan", sc.id, "error", err)
			continue
		}
		markets, err := r.loadMarkets(sc.id)
		if err != nil {
			slog.Warn("failed to load bucket snapshots", "scan", sc.id, "error", err)
			continue
		}

		for _, m := range markets {
			fc, ok := forecasts[m.City+"/"+m.TargetDate]
			if !ok {
				continue
			}
			s.Markets++
			for _, o := range r.detector.Detect(m, fc) {
				s.Opportunities++
				s.ByCity[o.City]++
				edgeSum += o.Edge
			}
		}
	}
	if s.Opportunities > 0 {
		s.AvgEdge = edgeSum / float64(s.Opportunities)
	}

	slog.Info("=== REPLAY RESULTS ===",
		"period", fmt.Sprintf("%s to %s", from.Format(dateLayout), to.Format(dateLayout)),
		"scans", s.Scans,
		"markets", s.Markets,
		"opportunities", s.Opportunities,
		"recorded_opportunities", s.Recorded,
		"avg_edge", s.AvgEdge,
	)
	return s, nil
}

func (r *Runner) parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := r.now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	var err error
	if fromStr != "" {
		if from, err = time.Parse(dateLayout, fromStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing from date: %w", err)
		}
	}
	if toStr != "" {
		if to, err = time.Parse(dateLayout, toStr); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing to date: %w", err)
		}
	}
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date %s is before from date %s", to.Format(dateLayout), from.Format(dateLayout))
	}
	return from, to, nil
}

type scanRow struct {
	id       string
	recorded int
}

func (r *Runner) loadScans(from, until time.Time) ([]scanRow, error) {
	rows, err := r.db.Query(`
		SELECT id, opportunities FROM scans
		WHERE error IS NULL AND started_at >= ? AND started_at < ?
		ORDER BY started_at`,
		from.Format(dateLayout), until.Format(dateLayout),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []scanRow
	for rows.Next() {
		var sc scanRow
		if err := rows.Scan(&sc.id, &sc.recorded); err != nil {
			return nil, err
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

func (r *Runner) loadForecasts(scanID string) (map[string]weather.DailyForecast, error) {
	rows, err := r.db.Query(`
		SELECT city, target_date, high, low, confidence, lead_hours
		FROM forecasts WHERE scan_id = ?`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]weather.DailyForecast)
	for rows.Next() {
		var (
			fc   weather.DailyForecast
			conf string
		)
		if err := rows.Scan(&fc.City, &fc.Date, &fc.High, &fc.Low, &conf, &fc.LeadHours); err != nil {
			return nil, err
		}
		if fc.Confidence, err = weather.ParseConfidence(conf); err != nil {
			slog.Warn("skipping forecast with unknown confidence", "scan", scanID, "city", fc.City, "error", err)
			continue
		}
		out[fc.City+"/"+fc.Date] = fc
	}
	return out, rows.Err()
}

// loadMarkets rebuilds markets from bucket snapshots, keeping market and
// bucket order. Markets are told apart by their position in the scan, so
// equal or empty IDs across venues never merge.
func (r *Runner) loadMarkets(scanID string) ([]market.Market, error) {
	rows, err := r.db.Query(`
		SELECT market_seq, market_id, source, city, target_date, token_id, label, lo, hi, price
		FROM bucket_snapshots WHERE scan_id = ? ORDER BY market_seq, id`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []market.Market
	index := make(map[int]int)
	for rows.Next() {
		var (
			seq                    int
			id, source, city, date string
			b                      market.Bucket
			lo, hi                 sql.NullFloat64
		)
		if err := rows.Scan(&seq, &id, &source, &city, &date, &b.TokenID, &b.Label, &lo, &hi, &b.Price); err != nil {
			return nil, err
		}
		if lo.Valid {
			b.Lo = market.Bound(lo.Float64)
		}
		if hi.Valid {
			b.Hi = market.Bound(hi.Float64)
		}

		i, ok := index[seq]
		if !ok {
			i = len(markets)
			index[seq] = i
			markets = append(markets, market.Market{ID: id, Source: source, City: city, TargetDate: date})
		}
		markets[i].Buckets = append(markets[i].Buckets, b)
	}
	return markets, rows.Err()
}
