package gateway

import (
	"strconv"
	"time"
)

// Broadcaster builds envelopes and fans them out to interested clients.
type Broadcaster struct {
	hub *Hub
	now func() time.Time
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, now: time.Now}
}

// Broadcast records data as the newest payload on channel, stores its
// envelope for replay and queues it on every matching client. Slow clients
// drop the message rather than block the relay.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := b.now().UTC()
	h := b.hub
	buf := h.record(channel, data, now, func(seq, channelSeq int64) []byte {
		return appendEnvelope(nil, channel, data, now, seq, channelSeq)
	})

	if h.metrics != nil {
		kind, _, ok := parseChannel(channel)
		if !ok {
			kind = "other"
		}
		h.metrics.GatewayMessages.WithLabelValues(kind).Inc()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		if !client.trySend(buf) && h.metrics != nil {
			h.metrics.GatewayDrops.Inc()
		}
	}
}

// appendEnvelope writes
// {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..} to buf.
// data must already be valid JSON.
func appendEnvelope(buf []byte, channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	if buf == nil {
		buf = make([]byte, 0, len(channel)+len(data)+160)
	}
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
