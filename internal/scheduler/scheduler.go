package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tempedge/internal/config"
	"tempedge/internal/metrics"
	"tempedge/internal/performance"
	"tempedge/internal/scan"
)

// ErrScanInProgress is returned by RunOnce when another scan is running.
var ErrScanInProgress = errors.New("scan already in progress")

// Scanner runs one scan.
type Scanner interface {
	Run(ctx context.Context) (scan.Result, error)
}

// Recorder persists a scan outcome.
type Recorder interface {
	Record(ctx context.Context, res scan.Result, scanErr error) error
}

// Notifier announces a successful scan.
type Notifier interface {
	Notify(res scan.Result) error
}

// Scheduler runs scans on a fixed interval, never more than one at a time,
// and keeps the latest successful result.
type Scheduler struct {
	scanner  Scanner
	recorder Recorder
	notifier Notifier
	tracker  *performance.Tracker
	cfg      config.ScheduleConfig

	running atomic.Bool

	mu        sync.RWMutex
	latest    scan.Result
	hasLatest bool
}

// New creates a Scheduler. recorder, notifier and tracker may be nil.
func New(scanner Scanner, recorder Recorder, notifier Notifier, tracker *performance.Tracker, cfg config.ScheduleConfig) *Scheduler {
	return &Scheduler{
		scanner:  scanner,
		recorder: recorder,
		notifier: notifier,
		tracker:  tracker,
		cfg:      cfg,
	}
}

// Run scans immediately, then every scan interval, and blocks until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"scan_interval", s.cfg.ScanInterval.Duration,
		"report_interval", s.cfg.ReportInterval.Duration,
	)

	s.runCycle(ctx)

	scanTicker := time.NewTicker(s.cfg.ScanInterval.Duration)
	defer scanTicker.Stop()

	var reportC <-chan time.Time
	if s.tracker != nil && s.cfg.ReportInterval.Duration > 0 {
		reportTicker := time.NewTicker(s.cfg.ReportInterval.Duration)
		defer reportTicker.Stop()
		reportC = reportTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-scanTicker.C:
			s.runCycle(ctx)
		case <-reportC:
			s.runReport()
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrScanInProgress) {
			slog.Warn("skipping tick, previous scan still running")
			return
		}
		slog.Error("scan failed", "error", err)
	}
}

// RunOnce runs a single scan and records, publishes and announces it. Only a
// discovery failure is returned as a scan error.
func (s *Scheduler) RunOnce(ctx context.Context) (scan.Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return scan.Result{}, ErrScanInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	res, err := s.scanner.Run(ctx)
	observe(res, err, time.Since(start))

	if s.recorder != nil {
		if rerr := s.recorder.Record(ctx, res, err); rerr != nil {
			slog.Error("failed to record scan", "scan", res.ID, "error", rerr)
		}
	}
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	s.latest = res
	s.hasLatest = true
	s.mu.Unlock()

	if s.notifier != nil {
		if nerr := s.notifier.Notify(res); nerr != nil {
			slog.Warn("failed to send notification", "scan", res.ID, "error", nerr)
		}
	}

	for i, o := range res.Opportunities {
		if i == 5 {
			break
		}
		slog.Info("opportunity", "rank", i+1, "market", o.MarketID, "edge", o.Edge, "reason", o.Reason())
	}
	return res, nil
}

// Latest returns the most recent successful scan.
func (s *Scheduler) Latest() (scan.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.hasLatest
}

func (s *Scheduler) runReport() {
	report, err := s.tracker.Generate()
	if err != nil {
		slog.Error("performance report failed", "error", err)
		return
	}
	performance.LogReport(report)
}

func observe(res scan.Result, err error, d time.Duration) {
	metrics.ScanDuration.Observe(d.Seconds())
	if err != nil {
		metrics.ScansTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.ScansTotal.WithLabelValues("ok").Inc()
	metrics.MarketsDiscovered.Set(float64(len(res.Markets)))
	metrics.ForecastsFetched.Set(float64(len(res.Forecasts)))
	metrics.ForecastErrors.Add(float64(res.ForecastErrors))
	metrics.StalePrices.Add(float64(res.StalePrices))

	metrics.Opportunities.Reset()
	best := 0.0
	for _, o := range res.Opportunities {
		metrics.Opportunities.WithLabelValues(o.City).Inc()
		if o.Edge > best {
			best = o.Edge
		}
	}
	metrics.BestEdge.Set(best)
}
