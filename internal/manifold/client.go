// Package manifold adapts Manifold multiple-choice temperature markets to the
// market listing and pricing interfaces.
package manifold

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonnyspicer/mango"
	"golang.org/x/time/rate"

	"tempedge/internal/market"
)

// Source tags every record this package produces.
const Source = "manifold"

// API is the subset of *mango.Client the adapter uses.
type API interface {
	SearchMarkets(req mango.SearchMarketsRequest) (*[]mango.FullMarket, error)
	GetMarketByID(id string) (*mango.FullMarket, error)
}

// ErrUnknownAnswer is returned by Price when the answer is no longer listed.
var ErrUnknownAnswer = errors.New("answer not found")

// Adapter lists open multiple-choice markets and prices their answers.
// Token IDs are "marketID:answerID". API calls are made one at a time and
// paced by a token-bucket limiter.
type Adapter struct {
	client  API
	limiter *rate.Limiter
}

// NewAdapter creates an adapter issuing at most one API call per interval.
func NewAdapter(client API, interval time.Duration) *Adapter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Adapter{client: client, limiter: rate.NewLimiter(limit, 1)}
}

// ListMarkets searches open multiple-choice markets and keeps those whose
// question matches the keyword (or the temperature keywords when none is
// given). Manifold search results omit answer probabilities, so every kept
// market is fetched in full.
func (a *Adapter) ListMarkets(ctx context.Context, q market.Query) ([]market.RawRecord, error) {
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 100
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	markets, err := a.client.SearchMarkets(mango.SearchMarketsRequest{
		Filter:       "open",
		ContractType: "MULTIPLE_CHOICE",
		Sort:         "liquidity",
		Limit:        limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching multi-choice markets: %w", err)
	}
	if markets == nil {
		return nil, nil
	}

	var ids []string
	for _, m := range *markets {
		if matches(strings.ToLower(m.Question), q.Keyword) {
			ids = append(ids, m.Id)
		}
	}

	full := a.fetchAll(ctx, ids)
	records := make([]market.RawRecord, 0, len(full))
	for _, m := range full {
		records = append(records, toRecord(m))
	}
	slog.Info("scanned manifold markets", "searched", len(*markets), "kept", len(records))
	return records, nil
}

func matches(question, keyword string) bool {
	if kw := strings.ToLower(strings.TrimSpace(keyword)); kw != "" {
		return strings.Contains(question, kw)
	}
	return strings.Contains(question, "temperature") || strings.Contains(question, "high temp")
}

// fetchAll fetches full market details in order. Markets that fail to load
// are logged and left out.
func (a *Adapter) fetchAll(ctx context.Context, ids []string) []mango.FullMarket {
	out := make([]mango.FullMarket, 0, len(ids))
	for _, id := range ids {
		m, err := a.market(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("failed to fetch manifold market", "market", id, "error", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

func (a *Adapter) market(ctx context.Context, id string) (mango.FullMarket, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return mango.FullMarket{}, err
	}
	m, err := a.client.GetMarketByID(id)
	if err != nil {
		return mango.FullMarket{}, fmt.Errorf("getting market %s: %w", id, err)
	}
	if m == nil {
		return mango.FullMarket{}, fmt.Errorf("market %s: empty response", id)
	}
	return *m, nil
}

func toRecord(m mango.FullMarket) market.RawRecord {
	tokens := make([]any, 0, len(m.Answers))
	for _, ans := range m.Answers {
		if ans.Resolution != "" {
			continue
		}
		tokens = append(tokens, map[string]any{
			"token_id": TokenID(m.Id, ans.Id),
			"outcome":  ans.Text,
			"price":    ans.Probability,
		})
	}
	return market.RawRecord{
		"id":        m.Id,
		"question":  m.Question,
		"slug":      slugFromURL(m.Url),
		"closeTime": m.CloseTime,
		"source":    Source,
		"tokens":    tokens,
	}
}

func slugFromURL(u string) string {
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}

// TokenID joins a market and answer id.
func TokenID(marketID, answerID string) string {
	return marketID + ":" + answerID
}

// Price fetches the market and returns the answer's current probability.
func (a *Adapter) Price(ctx context.Context, tokenID string) (float64, error) {
	marketID, answerID, ok := strings.Cut(tokenID, ":")
	if !ok {
		return 0, fmt.Errorf("malformed manifold token %q", tokenID)
	}
	m, err := a.market(ctx, marketID)
	if err != nil {
		return 0, err
	}
	for _, ans := range m.Answers {
		if ans.Id == answerID {
			return ans.Probability, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownAnswer, tokenID)
}
