// Package weather resolves forecast grid cells and aggregates hourly forecast
// periods into daily high/low summaries.
package weather

import (
	"fmt"
	"time"
)

// GridReference identifies the forecast grid cell covering a coordinate.
type GridReference struct {
	Office      string
	GridX       int
	GridY       int
	ForecastURL string
	HourlyURL   string
}

// HourlyPeriod is one forecast sample. Temperature is in Unit ("F" or "C").
type HourlyPeriod struct {
	Start         time.Time
	End           time.Time
	Temperature   float64
	Unit          string
	IsDaytime     bool
	ShortForecast string
}

// Fahrenheit returns the period temperature in °F.
func (p HourlyPeriod) Fahrenheit() float64 {
	if p.Unit == "C" {
		return p.Temperature*9/5 + 32
	}
	return p.Temperature
}

// Confidence is an ordered forecast-reliability tier. Lower values are more
// reliable.
type Confidence int

const (
	VeryHigh Confidence = iota
	High
	Medium
	Low
)

func (c Confidence) String() string {
	switch c {
	case VeryHigh:
		return "very_high"
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	}
	return fmt.Sprintf("confidence(%d)", int(c))
}

// ParseConfidence is the inverse of String.
func ParseConfidence(s string) (Confidence, error) {
	switch s {
	case "very_high":
		return VeryHigh, nil
	case "high":
		return High, nil
	case "medium":
		return Medium, nil
	case "low":
		return Low, nil
	}
	return 0, fmt.Errorf("unknown confidence %q", s)
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(b []byte) error {
	v, err := ParseConfidence(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ConfidenceForLead maps a lead time in hours to a tier. Negative lead times
// are clamped to zero. Boundaries are inclusive.
func ConfidenceForLead(hours float64) Confidence {
	if hours < 0 {
		hours = 0
	}
	switch {
	case hours <= 24:
		return VeryHigh
	case hours <= 48:
		return High
	case hours <= 72:
		return Medium
	default:
		return Low
	}
}

// DailyForecast aggregates the hourly periods of one city for one date.
type DailyForecast struct {
	City       string     `json:"city"`
	Date       string     `json:"date"` // YYYY-MM-DD
	High       float64    `json:"high"`
	Low        float64    `json:"low"`
	Confidence Confidence `json:"confidence"`
	LeadHours  float64    `json:"lead_hours"`
	Summary    string     `json:"summary"`
}

// ProviderError reports a failed or malformed forecast provider response.
type ProviderError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("forecast provider %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("forecast provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
