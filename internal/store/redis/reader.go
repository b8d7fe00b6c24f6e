package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	goredis "github.com/go-redis/redis/v8"

	"signalopt/internal/model"
)

var (
	_ model.ParamsReader = (*Reader)(nil)
	_ model.Publisher    = (*Writer)(nil)
	_ model.Publisher    = (*BufferedWriter)(nil)
)

// Reader reads the latest published values and exposes PubSub for relays.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a Reader connected to cfg.Addr.
func NewReader(cfg Config) (*Reader, error) {
	client, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("[redis-reader] ready")
	return &Reader{client: client}, nil
}

// NewReaderWithClient wraps an existing client.
func NewReaderWithClient(client *goredis.Client) *Reader {
	return &Reader{client: client}
}

// Client returns the underlying Redis client.
func (r *Reader) Client() *goredis.Client { return r.client }

// ActiveParams returns the active params for symbol, or nil, nil if none.
func (r *Reader) ActiveParams(ctx context.Context, symbol string) (*model.ActiveParams, error) {
	key := (&model.ActiveParams{Symbol: symbol}).LatestKey()
	var p model.ActiveParams
	ok, err := r.getJSON(ctx, key, &p)
	if !ok || err != nil {
		return nil, err
	}
	return &p, nil
}

// LatestSignal returns the newest signal for symbol, or nil, nil if none.
func (r *Reader) LatestSignal(ctx context.Context, symbol string) (*model.SignalEvent, error) {
	key := (&model.SignalEvent{Symbol: symbol}).LatestKey()
	var ev model.SignalEvent
	ok, err := r.getJSON(ctx, key, &ev)
	if !ok || err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *Reader) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// PSubscribe subscribes to PubSub patterns, e.g. "pub:signal:*".
// The caller must close the returned PubSub.
func (r *Reader) PSubscribe(ctx context.Context, patterns ...string) *goredis.PubSub {
	return r.client.PSubscribe(ctx, patterns...)
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.client.Close()
}
