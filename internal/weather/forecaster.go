package weather

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"tempedge/internal/city"
)

// DateLayout is the ISO calendar-date layout used for target dates.
const DateLayout = "2006-01-02"

// Forecaster turns provider data into daily forecasts for tracked cities.
type Forecaster struct {
	provider Provider
	cache    GridCache
	cities   *city.Table
	Now      func() time.Time
}

func NewForecaster(provider Provider, cache GridCache, cities *city.Table) *Forecaster {
	return &Forecaster{
		provider: provider,
		cache:    cache,
		cities:   cities,
		Now:      time.Now,
	}
}

// ResolveGrid returns the grid reference for a coordinate, asking the provider
// only on a cache miss.
func (f *Forecaster) ResolveGrid(ctx context.Context, lat, lon float64) (GridReference, error) {
	if ref, ok := f.cache.Get(ctx, lat, lon); ok {
		return ref, nil
	}

	ref, err := f.provider.GridPoint(ctx, lat, lon)
	if err != nil {
		return GridReference{}, err
	}
	f.cache.Put(ctx, lat, lon, ref)
	return ref, nil
}

// FetchHourly fetches the hourly periods of a grid cell.
func (f *Forecaster) FetchHourly(ctx context.Context, ref GridReference) ([]HourlyPeriod, error) {
	return f.provider.Hourly(ctx, ref.HourlyURL)
}

// DailyHigh returns the forecast for one city and date. ok is false when the
// provider has no periods on that date.
func (f *Forecaster) DailyHigh(ctx context.Context, cityCode, date string) (DailyForecast, bool, error) {
	all, err := f.DailyHighs(ctx, cityCode, []string{date})
	if err != nil {
		return DailyForecast{}, false, err
	}
	fc, ok := all[date]
	return fc, ok, nil
}

// DailyHighs fetches the city's hourly forecast once and aggregates it for
// each date. Dates without periods are left out of the result.
func (f *Forecaster) DailyHighs(ctx context.Context, cityCode string, dates []string) (map[string]DailyForecast, error) {
	c, ok := f.cities.Lookup(cityCode)
	if !ok {
		return nil, fmt.Errorf("unknown city %q", cityCode)
	}

	ref, err := f.ResolveGrid(ctx, c.Lat, c.Lon)
	if err != nil {
		return nil, fmt.Errorf("resolving grid for %s: %w", c.Code, err)
	}

	periods, err := f.FetchHourly(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("fetching hourly forecast for %s: %w", c.Code, err)
	}

	now := f.Now()
	result := make(map[string]DailyForecast, len(dates))
	for _, date := range dates {
		fc, ok, err := Aggregate(c.Code, date, periods, now)
		if err != nil {
			return nil, err
		}
		if ok {
			result[date] = fc
		}
	}
	return result, nil
}

// AllCitiesForecast forecasts every tracked city for one date, one city at a
// time. Cities that fail or have no data are left out.
func (f *Forecaster) AllCitiesForecast(ctx context.Context, date string) map[string]DailyForecast {
	result := make(map[string]DailyForecast)
	for _, c := range f.cities.All() {
		fc, ok, err := f.DailyHigh(ctx, c.Code, date)
		if err != nil {
			slog.Warn("city forecast failed", "city", c.Code, "date", date, "error", err)
			continue
		}
		if !ok {
			slog.Debug("no forecast periods for date", "city", c.Code, "date", date)
			continue
		}
		result[c.Code] = fc
	}
	return result
}

// Aggregate builds the daily summary for date from periods. A period belongs
// to the date of its start time in its own UTC offset, i.e. the station's
// local calendar day.
func Aggregate(cityCode, date string, periods []HourlyPeriod, now time.Time) (DailyForecast, bool, error) {
	target, err := time.Parse(DateLayout, date)
	if err != nil {
		return DailyForecast{}, false, fmt.Errorf("parsing target date %q: %w", date, err)
	}

	var matched []HourlyPeriod
	for _, p := range periods {
		if p.Start.Format(DateLayout) == date {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return DailyForecast{}, false, nil
	}

	high, low := math.Inf(-1), math.Inf(1)
	for _, p := range matched {
		t := p.Fahrenheit()
		high = math.Max(high, t)
		low = math.Min(low, t)
	}

	summary := matched[0].ShortForecast
	for _, p := range matched {
		if p.IsDaytime {
			summary = p.ShortForecast
			break
		}
	}

	lead := math.Max(0, target.Sub(now).Hours())

	return DailyForecast{
		City:       cityCode,
		Date:       date,
		High:       high,
		Low:        low,
		Confidence: ConfidenceForLead(lead),
		LeadHours:  lead,
		Summary:    summary,
	}, true, nil
}
