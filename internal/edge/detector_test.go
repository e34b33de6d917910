package edge

import (
	"math"
	"testing"

	"tempedge/internal/market"
	"tempedge/internal/weather"
)

func forecast(high float64, c weather.Confidence) weather.DailyForecast {
	return weather.DailyForecast{City: "NYC", Date: "2025-12-25", High: high, Confidence: c}
}

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestDefaultSigma_IncreasesAsConfidenceDrops(t *testing.T) {
	m := NewNormalModel(nil)
	tiers := []weather.Confidence{weather.VeryHigh, weather.High, weather.Medium, weather.Low}
	for i := 1; i < len(tiers); i++ {
		if m.StdDev(tiers[i]) <= m.StdDev(tiers[i-1]) {
			t.Errorf("sigma(%s)=%v not greater than sigma(%s)=%v",
				tiers[i], m.StdDev(tiers[i]), tiers[i-1], m.StdDev(tiers[i-1]))
		}
	}
	for _, c := range tiers {
		if m.StdDev(c) <= 0 {
			t.Errorf("sigma(%s) must be positive", c)
		}
	}
}

func TestProbability_UnboundedBucketIsCertain(t *testing.T) {
	m := NewNormalModel(nil)
	for _, high := range []float64{-20, 0, 75, 120} {
		for _, c := range []weather.Confidence{weather.VeryHigh, weather.Low} {
			if p := m.Probability(forecast(high, c), market.Bucket{}); p != 1 {
				t.Errorf("high=%v %s: expected 1, got %v", high, c, p)
			}
		}
	}
}

func TestProbability_Symmetry(t *testing.T) {
	m := NewNormalModel(nil)
	fc := forecast(75, weather.Medium)

	centered := m.Probability(fc, market.Bucket{Lo: market.Bound(73), Hi: market.Bound(77)})
	if centered <= 0 {
		t.Fatalf("expected positive probability, got %v", centered)
	}

	left := m.Probability(fc, market.Bucket{Lo: market.Bound(74), Hi: market.Bound(78)})
	right := m.Probability(fc, market.Bucket{Lo: market.Bound(72), Hi: market.Bound(76)})
	if !approx(left, right, 1e-12) {
		t.Errorf("expected mirrored buckets to match: %v vs %v", left, right)
	}
}

func TestProbability_OpenBoundsComplement(t *testing.T) {
	m := NewNormalModel(nil)
	fc := forecast(75, weather.High)
	below := m.Probability(fc, market.Bucket{Hi: market.Bound(76)})
	above := m.Probability(fc, market.Bucket{Lo: market.Bound(76)})
	if !approx(below+above, 1, 1e-12) {
		t.Errorf("expected complementary open buckets to sum to 1, got %v", below+above)
	}
}

func TestDetect_UnderpricedCenterBucket(t *testing.T) {
	d := NewDetector(NewNormalModel(nil))
	m := market.Market{ID: "m1", City: "NYC", TargetDate: "2025-12-25", Buckets: []market.Bucket{
		{TokenID: "t1", Label: "73-76°F", Lo: market.Bound(73), Hi: market.Bound(77), Price: 0.55},
	}}

	opps := d.Detect(m, forecast(75, weather.High))
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	o := opps[0]
	if !approx(o.FairProb, 0.6827, 1e-4) {
		t.Errorf("expected fair ~0.6827, got %v", o.FairProb)
	}
	if !approx(o.Edge, 0.1327, 1e-3) {
		t.Errorf("expected edge ~0.133, got %v", o.Edge)
	}
	if o.Side != Yes || o.TokenID != "t1" || o.Confidence != "high" {
		t.Errorf("unexpected opportunity %+v", o)
	}
}

func TestDetect_FarTailBucketIsNotAnOpportunity(t *testing.T) {
	d := NewDetector(NewNormalModel(nil))
	m := market.Market{ID: "m1", Buckets: []market.Bucket{
		{TokenID: "t9", Label: "95°F or above", Lo: market.Bound(95), Price: 0.5},
	}}

	if opps := d.Detect(m, forecast(75, weather.High)); len(opps) != 0 {
		t.Errorf("expected no opportunities, got %+v", opps)
	}
}

type fixedModel float64

func (f fixedModel) Probability(weather.DailyForecast, market.Bucket) float64 { return float64(f) }

func TestDetect_ThresholdIsInclusive(t *testing.T) {
	m := market.Market{Buckets: []market.Bucket{{TokenID: "a", Price: 0.5}}}

	at := NewDetector(fixedModel(0.75), WithMinEdge(0.25))
	if opps := at.Detect(m, forecast(0, weather.High)); len(opps) != 1 {
		t.Errorf("edge equal to threshold must be reported, got %d", len(opps))
	}

	below := NewDetector(fixedModel(0.7499), WithMinEdge(0.25))
	if opps := below.Detect(m, forecast(0, weather.High)); len(opps) != 0 {
		t.Errorf("edge below threshold must not be reported, got %d", len(opps))
	}
}

func TestDetect_ThresholdIsInclusiveForDecimalPrices(t *testing.T) {
	m := market.Market{Buckets: []market.Bucket{{TokenID: "a", Price: 0.10}}}

	d := NewDetector(fixedModel(0.15), WithMinEdge(0.05))
	if opps := d.Detect(m, forecast(0, weather.High)); len(opps) != 1 {
		t.Fatalf("edge 0.15-0.10 equal to threshold 0.05 must be reported, got %d", len(opps))
	}

	over := NewDetector(fixedModel(0.15), WithMinEdge(0.05), WithOverpriced(true))
	m.Buckets[0].Price = 0.20
	opps := over.Detect(m, forecast(0, weather.High))
	if len(opps) != 1 || opps[0].Side != No {
		t.Errorf("overpriced edge equal to threshold must be reported, got %+v", opps)
	}
}

func TestDetect_SkipsUnusablePrices(t *testing.T) {
	d := NewDetector(fixedModel(0.9))
	m := market.Market{Buckets: []market.Bucket{
		{TokenID: "zero", Price: 0},
		{TokenID: "one", Price: 1},
		{TokenID: "ok", Price: 0.3},
	}}
	opps := d.Detect(m, forecast(0, weather.High))
	if len(opps) != 1 || opps[0].TokenID != "ok" {
		t.Errorf("expected only the priced bucket, got %+v", opps)
	}
}

func TestDetect_OverpricedOnlyWhenEnabled(t *testing.T) {
	m := market.Market{Buckets: []market.Bucket{{TokenID: "a", Price: 0.6}}}

	if opps := NewDetector(fixedModel(0.2)).Detect(m, forecast(0, weather.High)); len(opps) != 0 {
		t.Errorf("baseline detector must not emit sell signals, got %+v", opps)
	}

	opps := NewDetector(fixedModel(0.2), WithOverpriced(true)).Detect(m, forecast(0, weather.High))
	if len(opps) != 1 {
		t.Fatalf("expected 1 sell opportunity, got %d", len(opps))
	}
	if opps[0].Side != No || !approx(opps[0].Edge, 0.4, 1e-12) {
		t.Errorf("unexpected sell opportunity %+v", opps[0])
	}
}

func TestDetect_PreservesBucketOrder(t *testing.T) {
	d := NewDetector(fixedModel(0.9))
	m := market.Market{Buckets: []market.Bucket{
		{TokenID: "a", Price: 0.6},
		{TokenID: "b", Price: 0.1},
		{TokenID: "c", Price: 0.4},
	}}
	opps := d.Detect(m, forecast(0, weather.High))
	if len(opps) != 3 || opps[0].TokenID != "a" || opps[1].TokenID != "b" || opps[2].TokenID != "c" {
		t.Errorf("expected bucket order, got %+v", opps)
	}
}

func TestSortByEdge(t *testing.T) {
	opps := []Opportunity{{TokenID: "a", Edge: 0.06}, {TokenID: "b", Edge: 0.2}, {TokenID: "c", Edge: 0.1}}
	SortByEdge(opps)
	if opps[0].TokenID != "b" || opps[1].TokenID != "c" || opps[2].TokenID != "a" {
		t.Errorf("unexpected order %+v", opps)
	}
}
