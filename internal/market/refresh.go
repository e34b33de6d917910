package market

import (
	"context"
	"log/slog"
)

// Refresher updates bucket prices from a PriceSource. Markets whose Source
// has a routed PriceSource are priced there instead.
type Refresher struct {
	prices   PriceSource
	bySource map[string]PriceSource
}

func NewRefresher(prices PriceSource) *Refresher {
	return &Refresher{prices: prices, bySource: make(map[string]PriceSource)}
}

// Route prices markets from source with p.
func (r *Refresher) Route(source string, p PriceSource) *Refresher {
	r.bySource[source] = p
	return r
}

func (r *Refresher) sourceFor(m *Market) PriceSource {
	if p, ok := r.bySource[m.Source]; ok {
		return p
	}
	return r.prices
}

// Refresh fetches the current price of every bucket in place. A failed fetch
// keeps the bucket's previous price. It returns how many buckets kept a stale
// price.
func (r *Refresher) Refresh(ctx context.Context, m *Market) int {
	prices := r.sourceFor(m)
	stale := 0
	for i := range m.Buckets {
		b := &m.Buckets[i]
		if b.TokenID == "" {
			stale++
			continue
		}
		p, err := prices.Price(ctx, b.TokenID)
		if err != nil {
			slog.Debug("price refresh failed, keeping last price",
				"market", m.ID, "token", b.TokenID, "price", b.Price, "error", err)
			stale++
			continue
		}
		b.Price = p
	}
	return stale
}
