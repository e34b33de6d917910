package edge

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"tempedge/internal/market"
	"tempedge/internal/weather"
)

// DefaultMinEdge is the smallest edge reported as an opportunity.
const DefaultMinEdge = 0.05

// edgeEpsilon absorbs float error from decimal prices so an edge that equals
// the threshold in decimal terms is still reported.
const edgeEpsilon = 1e-9

type Side string

const (
	// Yes buys an underpriced bucket.
	Yes Side = "yes"
	// No sells an overpriced bucket. Only emitted when enabled.
	No Side = "no"
)

// Opportunity is one bucket whose price differs from the model by at least
// the detector's minimum edge.
type Opportunity struct {
	MarketID     string  `json:"market_id"`
	Source       string  `json:"source,omitempty"`
	City         string  `json:"city"`
	TargetDate   string  `json:"target_date"`
	TokenID      string  `json:"token_id"`
	Label        string  `json:"label"`
	Range        string  `json:"range"`
	Side         Side    `json:"side"`
	Price        float64 `json:"price"`
	FairProb     float64 `json:"fair_prob"`
	Edge         float64 `json:"edge"`
	Confidence   string  `json:"confidence"`
	ForecastHigh float64 `json:"forecast_high"`
}

func (o Opportunity) Reason() string {
	return fmt.Sprintf("%s %s %s on %s: fair %.3f vs price %.3f (forecast high %.1fF, %s)",
		o.Side, o.City, o.Label, o.TargetDate, o.FairProb, o.Price, o.ForecastHigh, o.Confidence)
}

// Detector finds mispriced buckets in a market.
type Detector struct {
	model             Model
	minEdge           float64
	includeOverpriced bool
	priceSumTolerance float64
}

type Option func(*Detector)

// WithMinEdge sets the edge threshold. Edges equal to it are reported.
func WithMinEdge(v float64) Option {
	return func(d *Detector) { d.minEdge = v }
}

// WithOverpriced also reports buckets priced above the model (sell side).
func WithOverpriced(enabled bool) Option {
	return func(d *Detector) { d.includeOverpriced = enabled }
}

// WithPriceSumTolerance sets how far a market's price mass may stray from 1
// before it is logged as suspect.
func WithPriceSumTolerance(v float64) Option {
	return func(d *Detector) { d.priceSumTolerance = v }
}

func NewDetector(model Model, opts ...Option) *Detector {
	d := &Detector{
		model:             model,
		minEdge:           DefaultMinEdge,
		priceSumTolerance: 0.15,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) MinEdge() float64 { return d.minEdge }

// Detect evaluates every bucket independently and returns opportunities in
// bucket order. Buckets without a usable price in (0, 1) are skipped.
func (d *Detector) Detect(m market.Market, fc weather.DailyForecast) []Opportunity {
	if sum := m.PriceSum(); math.Abs(sum-1) > d.priceSumTolerance {
		slog.Debug("market price mass far from 1",
			"market", m.ID, "city", m.City, "price_sum", sum)
	}

	var opps []Opportunity
	for _, b := range m.Buckets {
		if b.Price <= 0 || b.Price >= 1 {
			continue
		}

		fair := d.model.Probability(fc, b)
		edge := fair - b.Price

		side := Yes
		switch {
		case edge >= d.minEdge-edgeEpsilon:
		case d.includeOverpriced && -edge >= d.minEdge-edgeEpsilon:
			side = No
			edge = -edge
		default:
			continue
		}

		opps = append(opps, Opportunity{
			MarketID:     m.ID,
			Source:       m.Source,
			City:         m.City,
			TargetDate:   m.TargetDate,
			TokenID:      b.TokenID,
			Label:        b.Label,
			Range:        b.Range(),
			Side:         side,
			Price:        b.Price,
			FairProb:     fair,
			Edge:         edge,
			Confidence:   fc.Confidence.String(),
			ForecastHigh: fc.High,
		})
	}
	return opps
}

// SortByEdge orders opportunities by descending edge. Ties keep their order.
func SortByEdge(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Edge > opps[j].Edge
	})
}
