// Package polymarket lists temperature events from the Gamma API and prices
// outcome tokens from the CLOB midpoint endpoint.
package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"tempedge/internal/market"
)

// Source tags every record this package produces.
const Source = "polymarket"

// breakerTrips is the number of consecutive price failures that opens the
// circuit.
const breakerTrips = 5

// Client implements market.Lister and market.PriceSource for Polymarket.
type Client struct {
	gammaURL   string
	clobURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a client issuing at most one request per interval.
func NewClient(gammaURL, clobURL string, interval, timeout time.Duration) *Client {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{
		gammaURL:   strings.TrimRight(gammaURL, "/"),
		clobURL:    strings.TrimRight(clobURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "polymarket-clob",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerTrips
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// stringList decodes either a JSON array or a string holding an encoded JSON
// array, which is how Gamma ships outcomes, prices and token ids.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*l = nil
			return nil
		}
		b = []byte(s)
	}
	if string(b) == "null" {
		*l = nil
		return nil
	}

	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case float64:
			out = append(out, strconv.FormatFloat(x, 'f', -1, 64))
		default:
			out = append(out, fmt.Sprint(x))
		}
	}
	*l = out
	return nil
}

type gammaMarket struct {
	ID             string     `json:"id"`
	ConditionID    string     `json:"conditionId"`
	Question       string     `json:"question"`
	Slug           string     `json:"slug"`
	Description    string     `json:"description"`
	EndDate        string     `json:"endDate"`
	GroupItemTitle string     `json:"groupItemTitle"`
	Outcomes       stringList `json:"outcomes"`
	OutcomePrices  stringList `json:"outcomePrices"`
	ClobTokenIDs   stringList `json:"clobTokenIds"`
	Closed         bool       `json:"closed"`
}

type gammaEvent struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Slug        string        `json:"slug"`
	Description string        `json:"description"`
	EndDate     string        `json:"endDate"`
	Markets     []gammaMarket `json:"markets"`
}

// ListMarkets fetches open events. Query.Tag narrows by Gamma tag slug and
// Query.Keyword filters event text locally.
func (c *Client) ListMarkets(ctx context.Context, q market.Query) ([]market.RawRecord, error) {
	u, err := url.Parse(c.gammaURL + "/events")
	if err != nil {
		return nil, fmt.Errorf("parsing gamma url: %w", err)
	}
	params := u.Query()
	params.Set("active", "true")
	params.Set("closed", "false")
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Tag != "" {
		params.Set("tag_slug", q.Tag)
	}
	u.RawQuery = params.Encode()

	var events []gammaEvent
	if err := c.getJSON(ctx, u.String(), &events); err != nil {
		return nil, fmt.Errorf("listing gamma events: %w", err)
	}

	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))
	var records []market.RawRecord
	for _, ev := range events {
		if keyword != "" && !strings.Contains(strings.ToLower(ev.Title+" "+ev.Slug+" "+ev.Description), keyword) {
			continue
		}
		records = append(records, flatten(ev)...)
	}
	return records, nil
}

// flatten turns a grouped event (one binary market per bucket) into a single
// record whose tokens are the YES side of each bucket market. Ungrouped
// markets become one record each.
func flatten(ev gammaEvent) []market.RawRecord {
	grouped := len(ev.Markets) > 1
	for _, m := range ev.Markets {
		if m.GroupItemTitle == "" {
			grouped = false
			break
		}
	}

	if !grouped {
		out := make([]market.RawRecord, 0, len(ev.Markets))
		for _, m := range ev.Markets {
			if m.Closed {
				continue
			}
			out = append(out, market.RawRecord{
				"id":            m.ID,
				"conditionId":   m.ConditionID,
				"question":      firstNonEmpty(m.Question, ev.Title),
				"description":   firstNonEmpty(m.Description, ev.Description),
				"slug":          firstNonEmpty(m.Slug, ev.Slug),
				"endDate":       firstNonEmpty(m.EndDate, ev.EndDate),
				"source":        Source,
				"outcomes":      []string(m.Outcomes),
				"outcomePrices": []string(m.OutcomePrices),
				"clobTokenIds":  []string(m.ClobTokenIDs),
			})
		}
		return out
	}

	tokens := make([]any, 0, len(ev.Markets))
	endDate := ev.EndDate
	for _, m := range ev.Markets {
		if m.Closed {
			continue
		}
		i := yesIndex(m.Outcomes)
		tok := map[string]any{"outcome": m.GroupItemTitle}
		if i < len(m.ClobTokenIDs) {
			tok["token_id"] = m.ClobTokenIDs[i]
		}
		if i < len(m.OutcomePrices) {
			tok["price"] = m.OutcomePrices[i]
		}
		tokens = append(tokens, tok)
		if endDate == "" {
			endDate = m.EndDate
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	return []market.RawRecord{{
		"id":          ev.ID,
		"question":    ev.Title,
		"description": ev.Description,
		"slug":        ev.Slug,
		"endDate":     endDate,
		"source":      Source,
		"tokens":      tokens,
	}}
}

func yesIndex(outcomes []string) int {
	for i, o := range outcomes {
		if strings.EqualFold(o, "yes") {
			return i
		}
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Price returns the CLOB midpoint for a token. Repeated failures open the
// circuit breaker and later calls fail fast with gobreaker.ErrOpenState.
func (c *Client) Price(ctx context.Context, tokenID string) (float64, error) {
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.midpoint(ctx, tokenID)
	})
	if err != nil {
		return 0, fmt.Errorf("pricing token %s: %w", tokenID, err)
	}
	return v.(float64), nil
}

func (c *Client) midpoint(ctx context.Context, tokenID string) (float64, error) {
	u := c.clobURL + "/midpoint?" + url.Values{"token_id": {tokenID}}.Encode()

	var resp struct {
		Mid json.RawMessage `json:"mid"`
	}
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return 0, err
	}

	raw := strings.Trim(string(resp.Mid), `"`)
	if raw == "" || raw == "null" {
		return 0, errors.New("midpoint missing")
	}
	mid, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing midpoint %q: %w", raw, err)
	}
	if mid.IsNegative() || mid.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("midpoint %s out of range", mid)
	}
	return mid.InexactFloat64(), nil
}

// StatusError is a non-2xx response from either API.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("polymarket: status %d: %s", e.Status, e.Body)
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
