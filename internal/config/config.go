package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"tempedge/internal/weather"
)

type Config struct {
	General    GeneralConfig    `toml:"general"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Weather    WeatherConfig    `toml:"weather"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Manifold   ManifoldConfig   `toml:"manifold"`
	Detector   DetectorConfig   `toml:"detector"`
	Telegram   TelegramConfig   `toml:"telegram"`
}

type GeneralConfig struct {
	DBPath     string `toml:"db_path"`
	LogLevel   string `toml:"log_level"`
	ListenAddr string `toml:"listen_addr"`
}

type ScheduleConfig struct {
	ScanInterval   Duration `toml:"scan_interval"`
	ReportInterval Duration `toml:"report_interval"`
}

type WeatherConfig struct {
	BaseURL         string   `toml:"base_url"`
	UserAgent       string   `toml:"user_agent"`
	RequestInterval Duration `toml:"request_interval"`
	Timeout         Duration `toml:"timeout"`
	// RedisAddr enables the shared grid cache. Empty keeps it in memory.
	RedisAddr string `toml:"redis_addr"`
}

type PolymarketConfig struct {
	GammaURL        string   `toml:"gamma_url"`
	ClobURL         string   `toml:"clob_url"`
	Tag             string   `toml:"tag"`
	FallbackKeyword string   `toml:"fallback_keyword"`
	Limit           int      `toml:"limit"`
	PriceInterval   Duration `toml:"price_interval"`
	Timeout         Duration `toml:"timeout"`
}

type ManifoldConfig struct {
	Enabled         bool     `toml:"enabled"`
	Limit           int      `toml:"limit"`
	RequestInterval Duration `toml:"request_interval"`
}

type DetectorConfig struct {
	MinEdge           float64 `toml:"min_edge"`
	IncludeOverpriced bool    `toml:"include_overpriced"`
	PriceSumTolerance float64 `toml:"price_sum_tolerance"`
	// Sigma overrides the per-confidence standard deviation, keyed by
	// confidence name ("very_high", "high", "medium", "low").
	Sigma map[string]float64 `toml:"sigma"`
}

type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
	ChatID  int64  `toml:"chat_id"`
	TopN    int    `toml:"top_n"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv fills secrets from the environment when the file leaves them empty.
func (c *Config) applyEnv() {
	if c.Telegram.Token == "" {
		c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
}

// SigmaTable converts the configured sigma overrides to confidence tiers.
func (c *Config) SigmaTable() (map[weather.Confidence]float64, error) {
	if len(c.Detector.Sigma) == 0 {
		return nil, nil
	}
	out := make(map[weather.Confidence]float64, len(c.Detector.Sigma))
	for name, v := range c.Detector.Sigma {
		conf, err := weather.ParseConfidence(name)
		if err != nil {
			return nil, fmt.Errorf("detector.sigma: %w", err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("detector.sigma.%s must be positive", name)
		}
		out[conf] = v
	}
	return out, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Schedule.ScanInterval.Duration <= 0 {
		errs = append(errs, errors.New("schedule.scan_interval must be positive"))
	}
	if c.Detector.MinEdge <= 0 || c.Detector.MinEdge >= 1 {
		errs = append(errs, errors.New("detector.min_edge must be in (0, 1)"))
	}
	if c.Detector.PriceSumTolerance < 0 {
		errs = append(errs, errors.New("detector.price_sum_tolerance must not be negative"))
	}
	if _, err := c.SigmaTable(); err != nil {
		errs = append(errs, err)
	}
	if c.Weather.BaseURL == "" {
		errs = append(errs, errors.New("weather.base_url is required"))
	}
	if c.Weather.UserAgent == "" {
		errs = append(errs, errors.New("weather.user_agent is required"))
	}
	if c.Polymarket.GammaURL == "" || c.Polymarket.ClobURL == "" {
		errs = append(errs, errors.New("polymarket.gamma_url and polymarket.clob_url are required"))
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, errors.New("telegram enabled without token or chat_id"))
	}
	return errors.Join(errs...)
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:     "./data/tempedge.db",
			LogLevel:   "info",
			ListenAddr: ":8080",
		},
		Schedule: ScheduleConfig{
			ScanInterval:   Duration{5 * time.Minute},
			ReportInterval: Duration{1 * time.Hour},
		},
		Weather: WeatherConfig{
			BaseURL:         "https://api.weather.gov",
			UserAgent:       "tempedge (ops@example.com)",
			RequestInterval: Duration{500 * time.Millisecond},
			Timeout:         Duration{15 * time.Second},
		},
		Polymarket: PolymarketConfig{
			GammaURL:        "https://gamma-api.polymarket.com",
			ClobURL:         "https://clob.polymarket.com",
			Tag:             "weather",
			FallbackKeyword: "temperature",
			Limit:           100,
			PriceInterval:   Duration{100 * time.Millisecond},
			Timeout:         Duration{10 * time.Second},
		},
		Manifold: ManifoldConfig{
			Limit:           200,
			RequestInterval: Duration{100 * time.Millisecond},
		},
		Detector: DetectorConfig{
			MinEdge:           0.05,
			PriceSumTolerance: 0.15,
		},
		Telegram: TelegramConfig{
			TopN: 5,
		},
	}
}
