// Package scan runs one discover, forecast, detect pass over the tracked
// temperature markets.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tempedge/internal/edge"
	"tempedge/internal/market"
	"tempedge/internal/weather"
)

// ErrDiscovery is returned when neither the primary nor the fallback market
// listing succeeds. It is the only error that fails a scan.
var ErrDiscovery = errors.New("market discovery failed")

// Forecaster is the part of weather.Forecaster a scan needs.
type Forecaster interface {
	DailyHighs(ctx context.Context, cityCode string, dates []string) (map[string]weather.DailyForecast, error)
}

// Result is everything one scan computed. Nothing in it outlives the next scan.
type Result struct {
	ID            string                  `json:"id"`
	StartedAt     time.Time               `json:"started_at"`
	FinishedAt    time.Time               `json:"finished_at"`
	Markets       []market.Market         `json:"-"`
	Forecasts     []weather.DailyForecast `json:"forecasts"`
	Opportunities []edge.Opportunity      `json:"opportunities"`
	// Skipped counts markets without a forecast for their city and date.
	Skipped int `json:"skipped"`
	// StalePrices counts buckets that kept a previous price.
	StalePrices int `json:"stale_prices"`
	// ForecastErrors counts cities whose forecast failed.
	ForecastErrors int `json:"forecast_errors"`
}

// Scanner sequences discovery, forecasting and detection.
type Scanner struct {
	lister     market.Lister
	normalizer *market.Normalizer
	refresher  *market.Refresher
	forecaster Forecaster
	detector   *edge.Detector

	Primary  market.Query
	Fallback market.Query
	Now      func() time.Time
}

func NewScanner(
	lister market.Lister,
	normalizer *market.Normalizer,
	refresher *market.Refresher,
	forecaster Forecaster,
	detector *edge.Detector,
	primary, fallback market.Query,
) *Scanner {
	return &Scanner{
		lister:     lister,
		normalizer: normalizer,
		refresher:  refresher,
		forecaster: forecaster,
		detector:   detector,
		Primary:    primary,
		Fallback:   fallback,
		Now:        time.Now,
	}
}

// Run performs one scan. Only discovery failure returns an error; finding no
// markets or no opportunities is a successful scan.
func (s *Scanner) Run(ctx context.Context) (Result, error) {
	res := Result{ID: uuid.NewString(), StartedAt: s.Now()}

	markets, err := s.discover(ctx)
	if err != nil {
		return res, err
	}
	res.Markets = markets
	slog.Info("markets discovered", "scan", res.ID, "count", len(markets))

	forecasts := s.forecast(ctx, markets, &res)

	for i := range markets {
		m := &markets[i]
		fc, ok := forecasts[forecastKey{m.City, m.TargetDate}]
		if !ok {
			res.Skipped++
			continue
		}
		res.StalePrices += s.refresher.Refresh(ctx, m)
		res.Opportunities = append(res.Opportunities, s.detector.Detect(*m, fc)...)
	}
	edge.SortByEdge(res.Opportunities)

	res.FinishedAt = s.Now()
	slog.Info("scan complete",
		"scan", res.ID,
		"markets", len(markets),
		"forecasts", len(res.Forecasts),
		"opportunities", len(res.Opportunities),
		"skipped", res.Skipped,
		"stale_prices", res.StalePrices,
		"duration", res.FinishedAt.Sub(res.StartedAt),
	)
	return res, nil
}

func (s *Scanner) discover(ctx context.Context) ([]market.Market, error) {
	raw, err := s.lister.ListMarkets(ctx, s.Primary)
	if err != nil {
		slog.Warn("primary market query failed, trying fallback", "error", err)
		var fbErr error
		raw, fbErr = s.lister.ListMarkets(ctx, s.Fallback)
		if fbErr != nil {
			return nil, fmt.Errorf("%w: primary: %v; fallback: %v", ErrDiscovery, err, fbErr)
		}
	}

	markets := make([]market.Market, 0, len(raw))
	for _, r := range raw {
		if m, ok := s.normalizer.Parse(r); ok {
			markets = append(markets, m)
		}
	}
	return markets, nil
}

type forecastKey struct {
	city string
	date string
}

// forecast calls the forecaster once per distinct city, in the order cities
// first appear, covering every target date seen for that city.
func (s *Scanner) forecast(ctx context.Context, markets []market.Market, res *Result) map[forecastKey]weather.DailyForecast {
	var cities []string
	dates := make(map[string][]string)
	seen := make(map[forecastKey]bool)
	for _, m := range markets {
		if _, ok := dates[m.City]; !ok {
			cities = append(cities, m.City)
		}
		k := forecastKey{m.City, m.TargetDate}
		if !seen[k] {
			seen[k] = true
			dates[m.City] = append(dates[m.City], m.TargetDate)
		}
	}

	out := make(map[forecastKey]weather.DailyForecast)
	for _, c := range cities {
		fcs, err := s.forecaster.DailyHighs(ctx, c, dates[c])
		if err != nil {
			res.ForecastErrors++
			slog.Warn("forecast failed, skipping city", "city", c, "error", err)
			continue
		}
		for _, d := range dates[c] {
			fc, ok := fcs[d]
			if !ok {
				slog.Debug("no forecast for date", "city", c, "date", d)
				continue
			}
			out[forecastKey{c, d}] = fc
			res.Forecasts = append(res.Forecasts, fc)
		}
	}
	return out
}
