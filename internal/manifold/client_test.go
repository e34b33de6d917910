package manifold

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonnyspicer/mango"

	"tempedge/internal/city"
	"tempedge/internal/market"
)

type fakeAPI struct {
	mu      sync.Mutex
	search  []mango.FullMarket
	full    map[string]mango.FullMarket
	gets    map[string]int
	failGet map[string]bool
}

func (f *fakeAPI) SearchMarkets(req mango.SearchMarketsRequest) (*[]mango.FullMarket, error) {
	if req.ContractType != "MULTIPLE_CHOICE" || req.Filter != "open" {
		return nil, errors.New("unexpected search request")
	}
	out := f.search
	return &out, nil
}

func (f *fakeAPI) GetMarketByID(id string) (*mango.FullMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gets == nil {
		f.gets = make(map[string]int)
	}
	f.gets[id]++
	if f.failGet[id] {
		return nil, errors.New("boom")
	}
	m, ok := f.full[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func nycMarket() mango.FullMarket {
	return mango.FullMarket{
		Id:        "m1",
		Question:  "NYC high temperature on December 25?",
		Url:       "https://manifold.markets/someone/nyc-high-temperature-dec-25",
		CloseTime: time.Date(2025, 12, 25, 23, 0, 0, 0, time.UTC).UnixMilli(),
		Answers: []mango.Answer{
			{Id: "a1", Text: "72-73°F", Probability: 0.2},
			{Id: "a2", Text: "74-75°F", Probability: 0.5},
			{Id: "a3", Text: "76°F or above", Probability: 0.3, Resolution: "NO"},
		},
	}
}

func newFake() *fakeAPI {
	nyc := nycMarket()
	return &fakeAPI{
		search: []mango.FullMarket{
			{Id: "m1", Question: nyc.Question},
			{Id: "m2", Question: "Who will win the chess match?"},
		},
		full: map[string]mango.FullMarket{"m1": nyc},
	}
}

func TestListMarkets_OnlyTemperatureMarkets(t *testing.T) {
	api := newFake()
	a := NewAdapter(api, 0)

	records, err := a.ListMarkets(context.Background(), market.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if api.gets["m2"] != 0 {
		t.Error("non-temperature market must not be fetched")
	}

	n := market.NewNormalizer(city.Default())
	m, ok := n.Parse(records[0])
	if !ok {
		t.Fatalf("expected record to parse: %+v", records[0])
	}
	if m.City != "NYC" || m.TargetDate != "2025-12-25" || m.Source != Source {
		t.Errorf("unexpected market %+v", m)
	}
	if len(m.Buckets) != 2 {
		t.Fatalf("expected resolved answer to be dropped, got %d buckets", len(m.Buckets))
	}
	if m.Buckets[1].TokenID != "m1:a2" || m.Buckets[1].Price != 0.5 {
		t.Errorf("unexpected bucket %+v", m.Buckets[1])
	}
}

func TestListMarkets_FetchFailureSkipsMarket(t *testing.T) {
	api := newFake()
	api.failGet = map[string]bool{"m1": true}
	a := NewAdapter(api, 0)

	records, err := a.ListMarkets(context.Background(), market.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestPrice_FetchesCurrentProbability(t *testing.T) {
	api := newFake()
	a := NewAdapter(api, 0)

	p1, err := a.Price(context.Background(), "m1:a2")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != 0.5 {
		t.Fatalf("expected 0.5, got %v", p1)
	}

	api.mu.Lock()
	moved := api.full["m1"]
	moved.Answers[1].Probability = 0.62
	api.full["m1"] = moved
	api.mu.Unlock()

	p2, err := a.Price(context.Background(), "m1:a2")
	if err != nil {
		t.Fatal(err)
	}
	if p2 != 0.62 {
		t.Errorf("expected refreshed price 0.62, got %v", p2)
	}
	if api.gets["m1"] != 2 {
		t.Errorf("expected a fetch per price call, got %d", api.gets["m1"])
	}
}

func TestListMarkets_SequentialAndPaced(t *testing.T) {
	api := newFake()
	nyc := nycMarket()
	api.search = []mango.FullMarket{
		{Id: "m1", Question: nyc.Question},
		{Id: "m3", Question: "Chicago high temperature on December 25?"},
	}
	chicago := nycMarket()
	chicago.Id, chicago.Question = "m3", "Chicago high temperature on December 25?"
	api.full["m3"] = chicago

	a := NewAdapter(api, 20*time.Millisecond)
	start := time.Now()
	records, err := a.ListMarkets(context.Background(), market.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0]["id"] != "m1" || records[1]["id"] != "m3" {
		t.Fatalf("expected records in search order, got %v", records)
	}
	// Search plus two fetches: the second and third calls each wait one interval.
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("expected paced calls, finished in %v", elapsed)
	}
}

func TestListMarkets_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewAdapter(newFake(), time.Hour).ListMarkets(ctx, market.Query{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestPrice_Errors(t *testing.T) {
	a := NewAdapter(newFake(), 0)

	if _, err := a.Price(context.Background(), "no-separator"); err == nil {
		t.Error("expected error for malformed token")
	}
	if _, err := a.Price(context.Background(), "m1:gone"); !errors.Is(err, ErrUnknownAnswer) {
		t.Errorf("expected ErrUnknownAnswer, got %v", err)
	}
}
