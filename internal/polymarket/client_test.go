package polymarket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"tempedge/internal/city"
	"tempedge/internal/market"
)

const eventsJSON = `[
  {
    "id": "901",
    "title": "Highest temperature in NYC on December 25?",
    "slug": "highest-temperature-in-nyc-on-december-25",
    "endDate": "2025-12-25T12:00:00Z",
    "markets": [
      {"id": "1", "groupItemTitle": "71°F or below", "outcomes": "[\"Yes\", \"No\"]",
       "outcomePrices": "[\"0.05\", \"0.95\"]", "clobTokenIds": "[\"y1\", \"n1\"]"},
      {"id": "2", "groupItemTitle": "72-73°F", "outcomes": "[\"Yes\", \"No\"]",
       "outcomePrices": "[\"0.30\", \"0.70\"]", "clobTokenIds": "[\"y2\", \"n2\"]"},
      {"id": "3", "groupItemTitle": "74°F or higher", "outcomes": "[\"Yes\", \"No\"]",
       "outcomePrices": "[\"0.65\", \"0.35\"]", "clobTokenIds": "[\"y3\", \"n3\"]"},
      {"id": "4", "groupItemTitle": "68°F", "closed": true, "outcomes": "[\"Yes\", \"No\"]",
       "outcomePrices": "[\"0\", \"1\"]", "clobTokenIds": "[\"y4\", \"n4\"]"}
    ]
  },
  {
    "id": "902",
    "title": "Chicago temperature on 12/26",
    "slug": "chicago-temperature",
    "markets": [
      {"id": "5", "conditionId": "0xabc", "question": "Chicago high temperature on 12/26?",
       "endDate": "2025-12-26T12:00:00Z",
       "outcomes": ["30-31°F", "32-33°F"], "outcomePrices": ["0.4", "0.6"], "clobTokenIds": ["c1", "c2"]}
    ]
  },
  {"id": "903", "title": "Who wins the election?", "slug": "election", "markets": []}
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, srv.URL, 0, 5*time.Second)
}

func TestListMarkets_FlattensGroupedEvents(t *testing.T) {
	var gotTag string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotTag = r.URL.Query().Get("tag_slug")
		w.Write([]byte(eventsJSON))
	})

	records, err := c.ListMarkets(context.Background(), market.Query{Tag: "weather", Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if gotTag != "weather" {
		t.Errorf("expected tag_slug=weather, got %q", gotTag)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	n := market.NewNormalizer(city.Default())
	n.Now = func() time.Time { return time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC) }

	nyc, ok := n.Parse(records[0])
	if !ok {
		t.Fatalf("expected grouped event to parse, got %+v", records[0])
	}
	if nyc.City != "NYC" || nyc.TargetDate != "2025-12-25" || nyc.Source != Source {
		t.Errorf("unexpected market %+v", nyc)
	}
	if len(nyc.Buckets) != 3 {
		t.Fatalf("expected closed bucket market to be dropped, got %d buckets", len(nyc.Buckets))
	}
	if b := nyc.Buckets[1]; b.TokenID != "y2" || b.Price != 0.30 || b.Label != "72-73°F" {
		t.Errorf("expected YES token of the bucket market, got %+v", b)
	}

	chi, ok := n.Parse(records[1])
	if !ok {
		t.Fatal("expected standalone market to parse")
	}
	if chi.ConditionID != "0xabc" || len(chi.Buckets) != 2 || chi.Buckets[1].TokenID != "c2" {
		t.Errorf("unexpected market %+v", chi)
	}
}

func TestListMarkets_KeywordFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tag_slug") != "" {
			t.Error("keyword query must not send a tag")
		}
		w.Write([]byte(eventsJSON))
	})

	records, err := c.ListMarkets(context.Background(), market.Query{Keyword: "Chicago"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0]["id"] != "5" {
		t.Errorf("expected only the Chicago market, got %+v", records)
	}
}

func TestListMarkets_StatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := c.ListMarkets(context.Background(), market.Query{Tag: "weather"})
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected StatusError 429, got %v", err)
	}
}

func TestPrice_Midpoint(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/midpoint" || r.URL.Query().Get("token_id") != "y2" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"mid": "0.455"}`))
	})

	p, err := c.Price(context.Background(), "y2")
	if err != nil {
		t.Fatal(err)
	}
	if p != 0.455 {
		t.Errorf("expected 0.455, got %v", p)
	}
}

func TestPrice_RejectsOutOfRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mid": "1.5"}`))
	})
	if _, err := c.Price(context.Background(), "x"); err == nil {
		t.Error("expected an error for a midpoint above 1")
	}
}

func TestPrice_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	hits := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "no orderbook", http.StatusNotFound)
	})

	for i := 0; i < breakerTrips; i++ {
		if _, err := c.Price(context.Background(), "x"); err == nil {
			t.Fatal("expected failure")
		}
	}
	_, err := c.Price(context.Background(), "x")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if hits != breakerTrips {
		t.Errorf("expected %d upstream hits, got %d", breakerTrips, hits)
	}
}
