package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider is the raw forecast source.
type Provider interface {
	GridPoint(ctx context.Context, lat, lon float64) (GridReference, error)
	Hourly(ctx context.Context, url string) ([]HourlyPeriod, error)
}

// Client talks to the National Weather Service API. Calls are paced by a
// token-bucket limiter shared by every request the client makes.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an NWS client issuing at most one request per interval.
func NewClient(baseURL, userAgent string, interval, timeout time.Duration) *Client {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
	}
}

type pointsResponse struct {
	Properties struct {
		GridID         string `json:"gridId"`
		GridX          *int   `json:"gridX"`
		GridY          *int   `json:"gridY"`
		Forecast       string `json:"forecast"`
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type hourlyResponse struct {
	Properties struct {
		Periods []struct {
			StartTime       string          `json:"startTime"`
			EndTime         string          `json:"endTime"`
			IsDaytime       bool            `json:"isDaytime"`
			Temperature     json.RawMessage `json:"temperature"`
			TemperatureUnit string          `json:"temperatureUnit"`
			ShortForecast   string          `json:"shortForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

// GridPoint resolves a coordinate to its forecast grid cell.
func (c *Client) GridPoint(ctx context.Context, lat, lon float64) (GridReference, error) {
	url := fmt.Sprintf("%s/points/%s,%s", c.baseURL,
		strconv.FormatFloat(lat, 'f', 4, 64), strconv.FormatFloat(lon, 'f', 4, 64))

	var resp pointsResponse
	if err := c.getJSON(ctx, "points", url, &resp); err != nil {
		return GridReference{}, err
	}

	p := resp.Properties
	if p.GridID == "" || p.GridX == nil || p.GridY == nil || p.ForecastHourly == "" {
		return GridReference{}, &ProviderError{Op: "points", Err: errors.New("incomplete grid point response")}
	}
	return GridReference{
		Office:      p.GridID,
		GridX:       *p.GridX,
		GridY:       *p.GridY,
		ForecastURL: p.Forecast,
		HourlyURL:   p.ForecastHourly,
	}, nil
}

// Hourly fetches the hourly forecast periods at url.
func (c *Client) Hourly(ctx context.Context, url string) ([]HourlyPeriod, error) {
	var resp hourlyResponse
	if err := c.getJSON(ctx, "hourly", url, &resp); err != nil {
		return nil, err
	}

	periods := make([]HourlyPeriod, 0, len(resp.Properties.Periods))
	for i, rp := range resp.Properties.Periods {
		start, err := time.Parse(time.RFC3339, rp.StartTime)
		if err != nil {
			return nil, &ProviderError{Op: "hourly", Err: fmt.Errorf("period %d start time: %w", i, err)}
		}
		end, err := time.Parse(time.RFC3339, rp.EndTime)
		if err != nil {
			return nil, &ProviderError{Op: "hourly", Err: fmt.Errorf("period %d end time: %w", i, err)}
		}
		temp, unit, err := parseTemperature(rp.Temperature, rp.TemperatureUnit)
		if err != nil {
			return nil, &ProviderError{Op: "hourly", Err: fmt.Errorf("period %d: %w", i, err)}
		}
		periods = append(periods, HourlyPeriod{
			Start:         start,
			End:           end,
			Temperature:   temp,
			Unit:          unit,
			IsDaytime:     rp.IsDaytime,
			ShortForecast: rp.ShortForecast,
		})
	}
	return periods, nil
}

// parseTemperature accepts both the legacy numeric form and the
// QuantitativeValue form ({"unitCode": "wmoUnit:degC", "value": 21.1}).
func parseTemperature(raw json.RawMessage, unit string) (float64, string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, "", errors.New("missing temperature")
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, normalizeUnit(unit), nil
	}

	var qv struct {
		UnitCode string   `json:"unitCode"`
		Value    *float64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &qv); err != nil {
		return 0, "", fmt.Errorf("decoding temperature: %w", err)
	}
	if qv.Value == nil {
		return 0, "", errors.New("missing temperature value")
	}
	if strings.HasSuffix(qv.UnitCode, "degC") {
		return *qv.Value, "C", nil
	}
	return *qv.Value, "F", nil
}

func normalizeUnit(unit string) string {
	if strings.EqualFold(unit, "C") {
		return "C"
	}
	return "F"
}

func (c *Client) getJSON(ctx context.Context, op, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/geo+json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ProviderError{Op: op, Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(body)))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
