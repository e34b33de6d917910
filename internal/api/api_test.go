package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tempedge/internal/edge"
	"tempedge/internal/scan"
	"tempedge/internal/weather"
)

type staticSource struct {
	res scan.Result
	ok  bool
}

func (s staticSource) Latest() (scan.Result, bool) { return s.res, s.ok }

func sample() staticSource {
	return staticSource{ok: true, res: scan.Result{
		ID:         "scan-1",
		FinishedAt: time.Date(2025, 12, 20, 12, 0, 3, 0, time.UTC),
		Forecasts: []weather.DailyForecast{
			{City: "NYC", Date: "2025-12-25", High: 75, Low: 60, Confidence: weather.High},
			{City: "CHI", Date: "2025-12-25", High: 31, Low: 20, Confidence: weather.Medium},
		},
		Opportunities: []edge.Opportunity{
			{City: "NYC", TokenID: "a", Edge: 0.3},
			{City: "CHI", TokenID: "b", Edge: 0.2},
			{City: "NYC", TokenID: "c", Edge: 0.06},
		},
	}}
}

func get(t *testing.T, src Source, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	NewServer(src).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeOpps(t *testing.T, rec *httptest.ResponseRecorder) opportunitiesResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp opportunitiesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestOpportunities_BeforeFirstScan(t *testing.T) {
	rec := get(t, staticSource{}, "/api/v1/opportunities")
	resp := decodeOpps(t, rec)
	if resp.Count != 0 || resp.Opportunities == nil {
		t.Errorf("expected an empty list, got %s", rec.Body.String())
	}
}

func TestOpportunities_Filters(t *testing.T) {
	resp := decodeOpps(t, get(t, sample(), "/api/v1/opportunities?city=nyc&min_edge=0.1"))
	if resp.Count != 1 || resp.Opportunities[0].TokenID != "a" {
		t.Errorf("unexpected filtered result %+v", resp)
	}
	if resp.ScanID != "scan-1" {
		t.Errorf("expected scan id, got %q", resp.ScanID)
	}

	resp = decodeOpps(t, get(t, sample(), "/api/v1/opportunities?limit=2"))
	if resp.Count != 2 || resp.Opportunities[1].TokenID != "b" {
		t.Errorf("unexpected limited result %+v", resp)
	}
}

func TestOpportunities_BadQuery(t *testing.T) {
	if rec := get(t, sample(), "/api/v1/opportunities?min_edge=lots"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := get(t, sample(), "/api/v1/opportunities?limit=-1"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestForecasts(t *testing.T) {
	rec := get(t, sample(), "/api/v1/forecasts?city=CHI")
	var out []forecastResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].City != "CHI" || out[0].Confidence != "medium" {
		t.Errorf("unexpected forecasts %+v", out)
	}
}

func TestHealth(t *testing.T) {
	rec := get(t, staticSource{}, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.LastScan != nil {
		t.Errorf("unexpected health %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, staticSource{}, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
