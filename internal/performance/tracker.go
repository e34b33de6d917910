package performance

import (
	"database/sql"
	"fmt"
)

// Tracker computes summary statistics from recorded scans.
type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// Report summarizes scan history.
type Report struct {
	TotalScans         int
	FailedScans        int
	TotalOpportunities int
	AvgEdge            float64
	MaxEdge            float64
	StalePrices        int
	ForecastErrors     int
	CityStats          map[string]CityStats
}

// CityStats contains per-city opportunity statistics.
type CityStats struct {
	Opportunities int
	AvgEdge       float64
	MaxEdge       float64
	AvgFairProb   float64
}

// Generate computes the full report.
func (t *Tracker) Generate() (*Report, error) {
	r := &Report{
		CityStats: make(map[string]CityStats),
	}

	if err := t.computeScans(r); err != nil {
		return nil, fmt.Errorf("computing scan stats: %w", err)
	}
	if err := t.computeOpportunities(r); err != nil {
		return nil, fmt.Errorf("computing opportunity stats: %w", err)
	}
	if err := t.computeCityStats(r); err != nil {
		return nil, fmt.Errorf("computing city stats: %w", err)
	}

	return r, nil
}

func (t *Tracker) computeScans(r *Report) error {
	row := t.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(stale_prices), 0),
		       COALESCE(SUM(forecast_errors), 0)
		FROM scans`)
	return row.Scan(&r.TotalScans, &r.FailedScans, &r.StalePrices, &r.ForecastErrors)
}

func (t *Tracker) computeOpportunities(r *Report) error {
	row := t.db.QueryRow(`
		SELECT COUNT(*), COALESCE(AVG(edge), 0), COALESCE(MAX(edge), 0)
		FROM opportunities`)
	return row.Scan(&r.TotalOpportunities, &r.AvgEdge, &r.MaxEdge)
}

func (t *Tracker) computeCityStats(r *Report) error {
	rows, err := t.db.Query(`
		SELECT city, COUNT(*), AVG(edge), MAX(edge), AVG(fair_prob)
		FROM opportunities GROUP BY city`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var stats CityStats
		if err := rows.Scan(&name, &stats.Opportunities, &stats.AvgEdge, &stats.MaxEdge, &stats.AvgFairProb); err != nil {
			return err
		}
		r.CityStats[name] = stats
	}
	return rows.Err()
}
