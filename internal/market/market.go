// Package market turns raw venue market records into temperature markets with
// parsed outcome buckets.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tempedge/internal/city"
)

// RawRecord is a loosely structured market record as returned by a venue.
type RawRecord map[string]any

// Query describes a market listing request. Tag narrows the listing on the
// venue side; Keyword filters listing text.
type Query struct {
	Tag     string
	Keyword string
	Limit   int
}

// Lister lists raw market records from a venue.
type Lister interface {
	ListMarkets(ctx context.Context, q Query) ([]RawRecord, error)
}

// PriceSource returns the current price of an outcome token in [0, 1].
type PriceSource interface {
	Price(ctx context.Context, tokenID string) (float64, error)
}

// Market is a normalized temperature market.
type Market struct {
	ID          string
	ConditionID string
	Slug        string
	Source      string
	City        string
	TargetDate  string // YYYY-MM-DD
	Buckets     []Bucket
	Question    string
}

// PriceSum is the total price mass across buckets.
func (m Market) PriceSum() float64 {
	var sum float64
	for _, b := range m.Buckets {
		sum += b.Price
	}
	return sum
}

// Field aliases, in lookup order.
var (
	idKeys          = []string{"id", "marketId", "market_id", "conditionId", "condition_id"}
	conditionKeys   = []string{"conditionId", "condition_id"}
	questionKeys    = []string{"question", "title"}
	descriptionKeys = []string{"description"}
	slugKeys        = []string{"slug", "market_slug"}
	endDateKeys     = []string{"endDate", "end_date_iso", "endDateIso", "end_date", "closeTime"}
	sourceKeys      = []string{"source"}

	tokenIDKeys    = []string{"token_id", "tokenId", "id"}
	tokenLabelKeys = []string{"outcome", "label", "text", "title"}
	tokenPriceKeys = []string{"price", "probability"}
)

var temperatureKeywords = []string{
	"temperature", "high temp", "highest temp", "degrees", "°",
}

// Normalizer parses raw records into Markets.
type Normalizer struct {
	cities *city.Table
	Now    func() time.Time
}

func NewNormalizer(cities *city.Table) *Normalizer {
	return &Normalizer{cities: cities, Now: time.Now}
}

// Parse returns the normalized market, or false when the record is not a
// usable temperature market in a tracked city.
func (n *Normalizer) Parse(raw RawRecord) (Market, bool) {
	question := raw.str(questionKeys...)
	slug := raw.str(slugKeys...)
	text := strings.ToLower(strings.Join([]string{
		question,
		raw.str(descriptionKeys...),
		strings.ReplaceAll(slug, "-", " "),
	}, " "))

	if !containsAny(text, temperatureKeywords) {
		return Market{}, false
	}

	c, ok := n.cities.Match(text)
	if !ok {
		return Market{}, false
	}

	now := n.Now()
	date, ok := raw.endDate()
	if !ok {
		date, ok = dateFromText(strings.ToLower(question), now)
	}
	if !ok {
		date = now.AddDate(0, 0, 1).Format(dateLayout)
	}

	var buckets []Bucket
	for _, o := range raw.outcomes() {
		lo, hi, ok := ParseBucket(o.label)
		if !ok {
			continue
		}
		buckets = append(buckets, Bucket{
			TokenID: o.tokenID,
			Label:   o.label,
			Lo:      lo,
			Hi:      hi,
			Price:   o.price,
		})
	}
	if len(buckets) == 0 {
		return Market{}, false
	}

	return Market{
		ID:          raw.str(idKeys...),
		ConditionID: raw.str(conditionKeys...),
		Slug:        slug,
		Source:      raw.str(sourceKeys...),
		City:        c.Code,
		TargetDate:  date,
		Buckets:     buckets,
		Question:    question,
	}, true
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func (r RawRecord) str(keys ...string) string {
	for _, k := range keys {
		if s := toString(r[k]); s != "" {
			return s
		}
	}
	return ""
}

func (r RawRecord) endDate() (string, bool) {
	for _, k := range endDateKeys {
		if v, ok := r[k]; ok && v != nil {
			if d, ok := truncateDate(v); ok {
				return d, true
			}
		}
	}
	return "", false
}

type rawOutcome struct {
	tokenID string
	label   string
	price   float64
}

// outcomes reads outcome tokens either from a "tokens" list of objects or
// from the parallel outcomes / token id / price arrays, which some venues
// encode as JSON strings.
func (r RawRecord) outcomes() []rawOutcome {
	if tokens := toList(r["tokens"]); len(tokens) > 0 {
		out := make([]rawOutcome, 0, len(tokens))
		for _, t := range tokens {
			obj, ok := t.(map[string]any)
			if !ok {
				continue
			}
			tok := RawRecord(obj)
			out = append(out, rawOutcome{
				tokenID: tok.str(tokenIDKeys...),
				label:   tok.str(tokenLabelKeys...),
				price:   tok.price(),
			})
		}
		return out
	}

	labels := toList(r["outcomes"])
	ids := toList(firstPresent(r, "clobTokenIds", "tokenIds", "token_ids"))
	prices := toList(firstPresent(r, "outcomePrices", "prices"))

	out := make([]rawOutcome, 0, len(labels))
	for i, l := range labels {
		o := rawOutcome{label: toString(l)}
		if i < len(ids) {
			o.tokenID = toString(ids[i])
		}
		if i < len(prices) {
			o.price = toFloat(prices[i])
		}
		out = append(out, o)
	}
	return out
}

func (r RawRecord) price() float64 {
	for _, k := range tokenPriceKeys {
		if v, ok := r[k]; ok && v != nil {
			return toFloat(v)
		}
	}
	return 0
}

func firstPresent(r RawRecord, keys ...string) any {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return decimal.NewFromFloat(x).String()
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case json.Number:
		f, _ := x.Float64()
		return f
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return 0
		}
		return d.InexactFloat64()
	}
	return 0
}

// toList accepts a JSON array or a string holding an encoded JSON array.
func toList(v any) []any {
	switch x := v.(type) {
	case []any:
		return x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case string:
		var out []any
		if err := json.Unmarshal([]byte(x), &out); err != nil {
			return nil
		}
		return out
	}
	return nil
}
