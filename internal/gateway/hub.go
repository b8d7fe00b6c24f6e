// Package gateway relays published signals and active parameters to
// WebSocket dashboards and serves the latest values over REST.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"signalopt/internal/metrics"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// Redis channels carrying engine output.
var relayPatterns = []string{"pub:signal:*", "pub:params:*"}

// Subscriber opens a pattern subscription; the redis store Reader is one.
type Subscriber interface {
	PSubscribe(ctx context.Context, patterns ...string) *goredis.PubSub
}

// channelState is everything the hub remembers about one Redis channel.
type channelState struct {
	seq    int64 // channel_seq of the newest message
	data   json.RawMessage
	at     time.Time
	replay *ReplayBuffer
}

// Hub owns the connected dashboards and the per-channel state. Messages
// enter through Router (Redis) or directly through Broadcaster.
type Hub struct {
	sub     Subscriber
	metrics *metrics.Metrics

	mu          sync.RWMutex
	clients     map[*Client]struct{}
	channels    map[string]*channelState
	seq         int64 // across all channels
	replayLimit int

	Router      *PubSubRouter
	Broadcaster *Broadcaster
}

// NewHub builds a hub. sub and m may be nil; without sub the hub only
// carries what is passed to Broadcaster.
func NewHub(sub Subscriber, m *metrics.Metrics) *Hub {
	h := &Hub{
		sub:         sub,
		metrics:     m,
		clients:     make(map[*Client]struct{}),
		channels:    make(map[string]*channelState),
		replayLimit: 200,
	}
	h.Router = NewPubSubRouter(h)
	h.Broadcaster = NewBroadcaster(h)
	return h
}

func (h *Hub) Run(ctx context.Context) {
	if h.sub == nil {
		log.Println("[gateway] WARNING: no subscriber configured, relay disabled")
		<-ctx.Done()
		return
	}
	h.Router.Run(ctx, relayPatterns...)
}

// record stores data as the newest message on channel, renders its
// envelope and keeps that for replay. Holding mu keeps replay in seq order.
func (h *Hub) record(channel string, data []byte, at time.Time, render func(seq, channelSeq int64) []byte) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.channels[channel]
	if !ok {
		st = &channelState{replay: NewReplayBuffer(h.replayLimit)}
		h.channels[channel] = st
	}
	st.seq++
	st.data = data
	st.at = at
	h.seq++

	env := render(h.seq, st.seq)
	st.replay.Push(st.seq, env)
	return env
}

// HandleConn takes over an upgraded connection. Channels updated after
// lastTS (RFC3339) are sent first as initial state.
func (h *Hub) HandleConn(conn *websocket.Conn, symbols []string, lastTS string) {
	c := newClient(h, conn, symbols)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.gaugeClients(n)
	log.Printf("[gateway] ws client connected (%d total)", n)

	c.sendInitialState(lastTS)
	go c.writePump()
	go c.readPump()
}

// RemoveClient is idempotent; the first call closes the send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	h.gaugeClients(n)
}

func (h *Hub) gaugeClients(n int) {
	if h.metrics != nil {
		h.metrics.GatewayClients.Set(float64(n))
	}
}

// Latest maps each channel to its newest payload.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(h.channels))
	for name, st := range h.channels {
		out[name] = st.data
	}
	return out
}

// ReplayRange returns the held envelopes of channel with channel_seq in
// [from, to].
func (h *Hub) ReplayRange(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	st, ok := h.channels[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return st.replay.Range(from, to)
}

func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.channels[channel]; ok {
		return st.seq
	}
	return 0
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
