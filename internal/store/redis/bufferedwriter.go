package redis

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"

	"signalopt/internal/model"
)

// BufferedWriter publishes through a CircuitBreaker. Writes rejected by an
// open breaker are held and replayed once it closes. Only the newest write
// per live key is held, since each one overwrites or deletes the key.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker

	mu      sync.Mutex
	order   []string // held keys, oldest first
	held    map[string]func(context.Context) error
	maxHeld int

	OnBuffer func()
	OnFlush  func(count int)
}

// NewBufferedWriter wraps w. maxHeld caps the held keys; the oldest is
// dropped past it (default 1000).
func NewBufferedWriter(w *Writer, cb *CircuitBreaker, maxHeld int) *BufferedWriter {
	if maxHeld <= 0 {
		maxHeld = 1000
	}
	bw := &BufferedWriter{
		writer:  w,
		cb:      cb,
		held:    make(map[string]func(context.Context) error),
		maxHeld: maxHeld,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.Flush(context.Background())
		}
	}
	return bw
}

// PublishSignal returns nil when the signal was held instead of sent.
func (bw *BufferedWriter) PublishSignal(ctx context.Context, ev model.SignalEvent) error {
	send := func(ctx context.Context) error { return bw.writer.PublishSignal(ctx, ev) }
	return bw.publish(ctx, ev.LatestKey(), send)
}

// PublishParams returns nil when the params were held instead of sent.
func (bw *BufferedWriter) PublishParams(ctx context.Context, p model.ActiveParams) error {
	send := func(ctx context.Context) error { return bw.writer.PublishParams(ctx, p) }
	return bw.publish(ctx, p.LatestKey(), send)
}

// ClearParams retracts the live params of symbol. While the breaker is
// open the retraction is held in place of any held params, so Flush
// replays the delete.
func (bw *BufferedWriter) ClearParams(ctx context.Context, symbol string) error {
	p := model.ActiveParams{Symbol: symbol}
	del := func(ctx context.Context) error { return bw.writer.ClearParams(ctx, symbol) }
	return bw.publish(ctx, p.LatestKey(), del)
}

func (bw *BufferedWriter) publish(ctx context.Context, key string, send func(context.Context) error) error {
	err := bw.cb.Do(ctx, send)
	if !errors.Is(err, ErrCircuitOpen) {
		return err
	}

	bw.mu.Lock()
	if _, exists := bw.held[key]; exists {
		bw.drop(key)
	} else if len(bw.order) >= bw.maxHeld {
		log.Printf("[buffered-writer] dropping held write %s", bw.order[0])
		bw.drop(bw.order[0])
	}
	bw.order = append(bw.order, key)
	bw.held[key] = send
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
	return nil
}

// drop must be called with mu held.
func (bw *BufferedWriter) drop(key string) {
	if _, exists := bw.held[key]; !exists {
		return
	}
	delete(bw.held, key)
	bw.order = slices.DeleteFunc(bw.order, func(k string) bool { return k == key })
}

// Flush replays held writes in arrival order and returns how many reached
// Redis. Failed replays are logged and discarded.
func (bw *BufferedWriter) Flush(ctx context.Context) int {
	bw.mu.Lock()
	order, held := bw.order, bw.held
	bw.order = nil
	bw.held = make(map[string]func(context.Context) error)
	bw.mu.Unlock()

	if len(order) == 0 {
		return 0
	}

	flushed := 0
	for _, key := range order {
		if err := held[key](ctx); err != nil {
			log.Printf("[buffered-writer] replay %s: %v", key, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d/%d held writes", flushed, len(order))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
	return flushed
}

// PendingCount returns the number of held writes.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.order)
}

func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
