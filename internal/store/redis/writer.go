package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"signalopt/internal/model"
)

// Daily signals go stale after a long weekend plus holidays.
const defaultSignalTTL = 7 * 24 * time.Hour

// Config is the connection setup shared by Writer and Reader.
type Config struct {
	Addr     string
	Password string
	DB       int
}

func (c Config) options() *goredis.Options {
	return &goredis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxRetries:   2,
	}
}

// Writer hands engine output to live consumers. Every write is a SET of
// the symbol's latest key and a PUBLISH of the same JSON, pipelined.
type Writer struct {
	client *goredis.Client
}

func (w *Writer) Client() *goredis.Client { return w.client }

// Dial connects and fails unless the server answers PING within 5s.
func Dial(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	log.Printf("[redis] connected to %s db=%d", cfg.Addr, cfg.DB)
	return client, nil
}

func New(cfg Config) (*Writer, error) {
	client, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(client), nil
}

func NewWithClient(client *goredis.Client) *Writer {
	return &Writer{client: client}
}

// PublishSignal sets signal:latest:{symbol} (expiring) and publishes on
// pub:signal:{symbol}.
func (w *Writer) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	return w.setAndPublish(ctx, ev.LatestKey(), ev.PubSubChannel(), ev.JSON(), defaultSignalTTL)
}

// PublishParams sets params:active:{symbol} without expiry and publishes
// on pub:params:{symbol}.
func (w *Writer) PublishParams(ctx context.Context, p model.ActiveParams) error {
	return w.setAndPublish(ctx, p.LatestKey(), p.PubSubChannel(), p.JSON(), 0)
}

func (w *Writer) setAndPublish(ctx context.Context, key, channel string, data []byte, ttl time.Duration) error {
	_, err := w.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.Publish(ctx, channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set+publish %s: %w", key, err)
	}
	return nil
}

// ClearParams removes the active params of a symbol dropped from the
// active set.
func (w *Writer) ClearParams(ctx context.Context, symbol string) error {
	p := model.ActiveParams{Symbol: symbol}
	if err := w.client.Del(ctx, p.LatestKey()).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", p.LatestKey(), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
