package performance

import (
	"log/slog"
)

// LogReport logs the report as structured JSON.
func LogReport(r *Report) {
	slog.Info("=== SCAN REPORT ===",
		"total_scans", r.TotalScans,
		"failed_scans", r.FailedScans,
		"opportunities", r.TotalOpportunities,
		"avg_edge", r.AvgEdge,
		"max_edge", r.MaxEdge,
		"stale_prices", r.StalePrices,
		"forecast_errors", r.ForecastErrors,
	)

	for city, stats := range r.CityStats {
		slog.Info("city opportunities",
			"city", city,
			"opportunities", stats.Opportunities,
			"avg_edge", stats.AvgEdge,
			"max_edge", stats.MaxEdge,
			"avg_fair_prob", stats.AvgFairProb,
		)
	}
}
