package gateway

import (
	"encoding/json"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Symbols the peer follows; empty means every symbol.
	subMu   sync.RWMutex
	symbols map[string]bool
}

// clientMsg is any message a peer may send.
type clientMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		symbols: make(map[string]bool),
	}
	c.subscribe(symbols)
	return c
}

func (c *Client) subscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range normalizeSymbols(symbols) {
		c.symbols[s] = true
	}
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range normalizeSymbols(symbols) {
		delete(c.symbols, s)
	}
}

// matchesChannel reports whether the peer should receive messages on channel.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	_, sym, ok := parseChannel(channel)
	if !ok {
		return true
	}
	return c.symbols[sym]
}

// trySend queues msg without blocking. Reports false when the peer is too slow.
func (c *Client) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	for channel, st := range c.hub.channels {
		if !cutoff.IsZero() && !st.at.After(cutoff) {
			continue
		}
		if !c.matchesChannel(channel) {
			continue
		}
		envelope, _ := json.Marshal(map[string]any{
			"channel":     channel,
			"data":        st.data,
			"ts":          st.at.Format(time.RFC3339Nano),
			"channel_seq": st.seq,
			"initial":     true,
		})
		c.trySend(envelope)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for range n {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			c.subscribe(msg.Symbols)
			c.ack(msg.Type)
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Symbols)
			c.ack(msg.Type)
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]any{
					"type":      "pong",
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.trySend(pong)
			}
		}
	}
}

func (c *Client) ack(kind string) {
	c.subMu.RLock()
	syms := lo.Keys(c.symbols)
	c.subMu.RUnlock()
	slices.Sort(syms)
	b, _ := json.Marshal(map[string]any{
		"type":    kind + "D",
		"symbols": syms,
	})
	c.trySend(b)
}

// parseChannel splits "pub:signal:AAPL" into ("signal", "AAPL").
func parseChannel(channel string) (kind, symbol string, ok bool) {
	rest, found := strings.CutPrefix(channel, "pub:")
	if !found {
		return "", "", false
	}
	kind, symbol, ok = strings.Cut(rest, ":")
	if !ok || symbol == "" || (kind != "signal" && kind != "params") {
		return "", "", false
	}
	return kind, symbol, true
}

func normalizeSymbols(symbols []string) []string {
	out := lo.FilterMap(symbols, func(s string, _ int) (string, bool) {
		s = strings.ToUpper(strings.TrimSpace(s))
		return s, s != ""
	})
	return lo.Uniq(out)
}
