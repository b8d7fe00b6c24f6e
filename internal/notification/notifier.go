// Package notification delivers alerts about new signals and newly
// selected parameters to webhooks, Telegram and the service log.
package notification

import (
	"context"
	"errors"
	"log/slog"

	"signalopt/internal/logger"
)

type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

type Alert struct {
	Level   AlertLevel `json:"level"`
	Symbol  string     `json:"symbol,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Data    any        `json:"data,omitempty"`
}

// Notifier delivers one alert.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the default slog logger, tagged with the
// run id carried by ctx.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	args := append(logger.RunAttrs(ctx), "symbol", alert.Symbol, "detail", alert.Message)
	slog.Log(ctx, level, alert.Title, args...)
	return nil
}

// Multi sends to every backend and joins the failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New always includes the log notifier; the webhook and Telegram backends
// are added when configured.
func New(webhookURL, telegramToken, telegramChatID string) Multi {
	m := Multi{NewLogNotifier()}
	if webhookURL != "" {
		m = append(m, NewWebhookNotifier(webhookURL))
	}
	if telegramToken != "" && telegramChatID != "" {
		m = append(m, NewTelegramNotifier(telegramToken, telegramChatID))
	}
	return m
}
