package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"signalopt/internal/backtest"
	"signalopt/internal/calendar"
	"signalopt/internal/indicator"
	"signalopt/internal/strategy"
)

// Default grid axes, in percent.
const (
	DefaultGridFrom = 0.5
	DefaultGridTo   = 10.0
	DefaultGridStep = 0.5
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Signal pipeline
	Periods indicator.Periods
	Filter  strategy.Filter

	// Optimizer
	Grid        backtest.Grid `validate:"-"`
	WindowYears int           `validate:"gte=0"`
	LongOnly    bool
	Weights     backtest.Weights

	// Watchlist
	Symbols []string `validate:"dive,required"`

	// Trading calendar
	Holidays []time.Time `validate:"-"`

	// Infrastructure
	RedisAddr     string `validate:"required"`
	RedisPassword string
	SQLitePath    string `validate:"required"`
	MetricsAddr   string
	GatewayAddr   string `validate:"required"`
	LogLevel      string `validate:"oneof=debug info warn error"`

	// Notifications
	NotifyWebhookURL string `validate:"omitempty,url"`
	TelegramBotToken string
	TelegramChatID   string `validate:"required_with=TelegramBotToken"`

	// Operator 2FA for gateway overrides; empty disables the check.
	GatewayTOTPSecret string
}

// Load reads configuration from a .env file (if present) and the
// environment, with sensible defaults, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load() // no .env is fine

	var p envParser
	cfg := &Config{
		Periods: indicator.Periods{
			Fast:   p.int("FAST_PERIOD", 12),
			Slow:   p.int("SLOW_PERIOD", 26),
			Signal: p.int("SIGNAL_PERIOD", 9),
			Trend:  p.int("TREND_FILTER_PERIOD", 0),
		},
		Filter: strategy.Filter{
			ZeroLine: p.bool("ZERO_LINE_FILTER", false),
		},
		WindowYears: p.int("BACKTEST_WINDOW_YEARS", 5),
		LongOnly:    p.bool("LONG_ONLY", true),
		Weights: backtest.Weights{
			WinRate: p.float("WIN_RATE_WEIGHT", 0.5),
			Return:  p.float("RETURN_WEIGHT", 0.5),
		},
		Symbols: ParseSymbols(getEnv("SYMBOLS", "")),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/prices.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		GatewayAddr:   getEnv("GATEWAY_ADDR", ":8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		GatewayTOTPSecret: getEnv("GATEWAY_TOTP_SECRET", ""),
	}
	// A trend period turns the trend filter on.
	cfg.Filter.Trend = cfg.Periods.Trend > 0

	cfg.Grid = backtest.Grid{
		TakeProfit: p.percents("TAKE_PROFIT_GRID"),
		StopLoss:   p.percents("STOP_LOSS_GRID"),
	}
	if hs, err := calendar.ParseHolidays(getEnv("CALENDAR_HOLIDAYS", "")); err != nil {
		p.errs = append(p.errs, fmt.Errorf("CALENDAR_HOLIDAYS: %w", err))
	} else {
		cfg.Holidays = hs
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation and the domain checks.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Periods.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Grid.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Calendar builds the trading calendar from the configured holidays.
func (c *Config) Calendar() *calendar.Calendar {
	return calendar.New(c.Holidays)
}

// OptimizerConfig assembles the optimizer configuration.
func (c *Config) OptimizerConfig() backtest.Config {
	return backtest.Config{
		Periods:  c.Periods,
		Filter:   c.Filter,
		LongOnly: c.LongOnly,
		Weights:  c.Weights,
	}
}

// ParseSymbols splits a comma-separated watchlist, upper-cased, without
// blanks or duplicates.
func ParseSymbols(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// envParser collects parse errors so Load can report all of them at once.
type envParser struct {
	errs []error
}

func (p *envParser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func (p *envParser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func (p *envParser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

// percents reads a percent list, defaulting to 0.5..10 step 0.5.
func (p *envParser) percents(key string) []decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return backtest.PercentRange(DefaultGridFrom, DefaultGridTo, DefaultGridStep)
	}
	out, err := backtest.ParsePercentList(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
