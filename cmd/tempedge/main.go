package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonnyspicer/mango"
	"github.com/redis/go-redis/v9"

	"tempedge/internal/api"
	"tempedge/internal/backtest"
	"tempedge/internal/city"
	"tempedge/internal/collector"
	"tempedge/internal/config"
	"tempedge/internal/db"
	"tempedge/internal/edge"
	"tempedge/internal/manifold"
	"tempedge/internal/market"
	"tempedge/internal/notify"
	"tempedge/internal/performance"
	"tempedge/internal/polymarket"
	"tempedge/internal/scan"
	"tempedge/internal/scheduler"
	"tempedge/internal/weather"
)

func main() {
	replayMode := flag.Bool("replay", false, "Replay recorded scans through the current detector settings")
	replayFrom := flag.String("from", "", "Replay start date (YYYY-MM-DD)")
	replayTo := flag.String("to", "", "Replay end date (YYYY-MM-DD)")
	once := flag.Bool("once", false, "Run a single scan, print the result as JSON and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	configPath := "config.toml"
	if p := os.Getenv("TE_CONFIG_PATH"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	slog.Info("tempedge starting")

	database, err := db.Open(cfg.General.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database initialized", "path", cfg.General.DBPath)

	detector, err := newDetector(cfg)
	if err != nil {
		slog.Error("invalid detector config", "error", err)
		os.Exit(1)
	}

	if *replayMode {
		runner := backtest.NewRunner(database, detector)
		if _, err := runner.Run(*replayFrom, *replayTo); err != nil {
			slog.Error("replay failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cities := city.Default()

	var gridCache weather.GridCache = weather.NewMemoryCache()
	if cfg.Weather.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Weather.RedisAddr})
		defer rdb.Close()
		gridCache = weather.NewRedisCache(rdb)
		slog.Info("redis grid cache enabled", "addr", cfg.Weather.RedisAddr)
	}
	nws := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.UserAgent,
		cfg.Weather.RequestInterval.Duration, cfg.Weather.Timeout.Duration)
	forecaster := weather.NewForecaster(nws, gridCache, cities)

	pm := polymarket.NewClient(cfg.Polymarket.GammaURL, cfg.Polymarket.ClobURL,
		cfg.Polymarket.PriceInterval.Duration, cfg.Polymarket.Timeout.Duration)
	lister := market.NewMultiLister().Add(polymarket.Source, pm)
	refresher := market.NewRefresher(pm)

	if cfg.Manifold.Enabled {
		mf := manifold.NewAdapter(mango.DefaultClientInstance(), cfg.Manifold.RequestInterval.Duration)
		lister.Add(manifold.Source, limitQuery{mf, cfg.Manifold.Limit})
		refresher.Route(manifold.Source, mf)
		slog.Info("manifold venue enabled")
	}

	scanner := scan.NewScanner(lister, market.NewNormalizer(cities), refresher, forecaster, detector,
		market.Query{Tag: cfg.Polymarket.Tag, Limit: cfg.Polymarket.Limit},
		market.Query{Keyword: cfg.Polymarket.FallbackKeyword, Limit: cfg.Polymarket.Limit},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		res, err := scanner.Run(ctx)
		if err != nil {
			slog.Error("scan failed", "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			slog.Error("failed to encode result", "error", err)
			os.Exit(1)
		}
		return
	}

	var notifier scheduler.Notifier
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.TopN)
		if err != nil {
			slog.Error("failed to initialize telegram", "error", err)
			os.Exit(1)
		}
		notifier = tg
		slog.Info("telegram notifications enabled", "top_n", cfg.Telegram.TopN)
	}

	sched := scheduler.New(scanner, collector.NewCollector(database), notifier,
		performance.NewTracker(database), cfg.Schedule)

	srv := &http.Server{
		Addr:         cfg.General.ListenAddr,
		Handler:      api.NewServer(sched).Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		slog.Info("api listening", "addr", cfg.General.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduler error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	slog.Info("tempedge stopped")
}

func newDetector(cfg *config.Config) (*edge.Detector, error) {
	sigma, err := cfg.SigmaTable()
	if err != nil {
		return nil, err
	}
	return edge.NewDetector(edge.NewNormalModel(sigma),
		edge.WithMinEdge(cfg.Detector.MinEdge),
		edge.WithOverpriced(cfg.Detector.IncludeOverpriced),
		edge.WithPriceSumTolerance(cfg.Detector.PriceSumTolerance),
	), nil
}

// limitQuery overrides the listing limit for one venue.
type limitQuery struct {
	market.Lister
	limit int
}

func (l limitQuery) ListMarkets(ctx context.Context, q market.Query) ([]market.RawRecord, error) {
	if l.limit > 0 {
		q.Limit = l.limit
	}
	return l.Lister.ListMarkets(ctx, q)
}
