// Package edge compares model probabilities for temperature buckets against
// market prices.
package edge

import (
	"math"

	"tempedge/internal/market"
	"tempedge/internal/weather"
)

// Model assigns a probability to a bucket given a forecast.
type Model interface {
	Probability(fc weather.DailyForecast, b market.Bucket) float64
}

// DefaultSigma is the assumed standard deviation (°F) of the true daily high
// around the forecast high for each confidence tier.
var DefaultSigma = map[weather.Confidence]float64{
	weather.VeryHigh: 1.5,
	weather.High:     2.0,
	weather.Medium:   3.0,
	weather.Low:      4.5,
}

// NormalModel treats the daily high as normally distributed around the
// forecast high with a tier-dependent standard deviation.
type NormalModel struct {
	Sigma map[weather.Confidence]float64
}

func NewNormalModel(sigma map[weather.Confidence]float64) *NormalModel {
	if len(sigma) == 0 {
		sigma = DefaultSigma
	}
	return &NormalModel{Sigma: sigma}
}

// StdDev returns σ for a tier, falling back to the widest default.
func (m *NormalModel) StdDev(c weather.Confidence) float64 {
	if s, ok := m.Sigma[c]; ok && s > 0 {
		return s
	}
	if s, ok := DefaultSigma[c]; ok {
		return s
	}
	return DefaultSigma[weather.Low]
}

func (m *NormalModel) Probability(fc weather.DailyForecast, b market.Bucket) float64 {
	sigma := m.StdDev(fc.Confidence)

	upper := 1.0
	if b.Hi != nil {
		upper = normCDF((*b.Hi - fc.High) / sigma)
	}
	lower := 0.0
	if b.Lo != nil {
		lower = normCDF((*b.Lo - fc.High) / sigma)
	}
	return upper - lower
}

// normCDF is the standard normal cumulative distribution function. Erfc keeps
// precision in the far tails.
func normCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}
