// Package api serves the latest scan over HTTP.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"tempedge/internal/edge"
	"tempedge/internal/metrics"
	"tempedge/internal/scan"
	"tempedge/internal/weather"
)

// Source provides the most recent successful scan.
type Source interface {
	Latest() (scan.Result, bool)
}

type Server struct {
	source Source
}

func NewServer(source Source) *Server {
	return &Server{source: source}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/opportunities", s.opportunities)
		r.Get("/forecasts", s.forecasts)
	})
	return r
}

type healthResponse struct {
	Status   string     `json:"status"`
	LastScan *time.Time `json:"last_scan,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if res, ok := s.source.Latest(); ok {
		resp.LastScan = &res.FinishedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type opportunitiesResponse struct {
	ScanID        string             `json:"scan_id,omitempty"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
	Count         int                `json:"count"`
	Opportunities []edge.Opportunity `json:"opportunities"`
}

// opportunities lists the latest scan's opportunities, best edge first.
// Optional filters: city, min_edge, limit.
func (s *Server) opportunities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	minEdge := 0.0
	if v := q.Get("min_edge"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_edge")
			return
		}
		minEdge = f
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	city := strings.ToUpper(q.Get("city"))

	resp := opportunitiesResponse{Opportunities: []edge.Opportunity{}}
	if res, ok := s.source.Latest(); ok {
		resp.ScanID = res.ID
		resp.FinishedAt = &res.FinishedAt
		for _, o := range res.Opportunities {
			if city != "" && o.City != city {
				continue
			}
			if o.Edge < minEdge {
				continue
			}
			resp.Opportunities = append(resp.Opportunities, o)
			if limit > 0 && len(resp.Opportunities) == limit {
				break
			}
		}
	}
	resp.Count = len(resp.Opportunities)
	writeJSON(w, http.StatusOK, resp)
}

type forecastResponse struct {
	City       string  `json:"city"`
	Date       string  `json:"date"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Confidence string  `json:"confidence"`
	LeadHours  float64 `json:"lead_hours"`
	Summary    string  `json:"summary,omitempty"`
}

func (s *Server) forecasts(w http.ResponseWriter, r *http.Request) {
	city := strings.ToUpper(r.URL.Query().Get("city"))

	out := []forecastResponse{}
	if res, ok := s.source.Latest(); ok {
		for _, fc := range res.Forecasts {
			if city != "" && fc.City != city {
				continue
			}
			out = append(out, toForecastResponse(fc))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func toForecastResponse(fc weather.DailyForecast) forecastResponse {
	return forecastResponse{
		City:       fc.City,
		Date:       fc.Date,
		High:       fc.High,
		Low:        fc.Low,
		Confidence: fc.Confidence.String(),
		LeadHours:  fc.LeadHours,
		Summary:    fc.Summary,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
