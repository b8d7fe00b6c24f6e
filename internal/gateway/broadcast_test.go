package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"signalopt/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
	Initial    bool            `json:"initial"`
}

func TestAppendEnvelopeFormat(t *testing.T) {
	channel := "pub:signal:AAPL"
	data := []byte(`{"symbol":"AAPL","ts":"2024-03-01T00:00:00Z","kind":"LONG_ENTRY"}`)
	now := time.Date(2024, 3, 1, 21, 0, 1, 500, time.UTC)

	buf := appendEnvelope(nil, channel, data, now, 42, 7)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != channel {
		t.Errorf("channel: got %q, want %q", env.Channel, channel)
	}
	if env.Seq != 42 || env.ChannelSeq != 7 {
		t.Errorf("seq=%d channel_seq=%d, want 42 and 7", env.Seq, env.ChannelSeq)
	}
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Fatalf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
	var ev struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(env.Data, &ev); err != nil || ev.Kind != "LONG_ENTRY" {
		t.Errorf("data kind = %q (%v), want LONG_ENTRY", ev.Kind, err)
	}
}

func TestAppendEnvelopeQuotesChannel(t *testing.T) {
	buf := appendEnvelope(nil, `pub:signal:"X"`, []byte(`{}`), time.Now().UTC(), 1, 1)
	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("invalid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != `pub:signal:"X"` {
		t.Errorf("channel = %q", env.Channel)
	}
}

func TestBroadcast_SequencesAndReplay(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := NewHub(nil, m)

	for range 3 {
		h.Broadcaster.Broadcast("pub:signal:AAPL", []byte(`{"kind":"NONE"}`))
	}
	h.Broadcaster.Broadcast("pub:params:AAPL", []byte(`{"allocation":0.05}`))

	if got := h.ChannelSeq("pub:signal:AAPL"); got != 3 {
		t.Errorf("signal channel seq = %d, want 3", got)
	}
	if got := h.ChannelSeq("pub:params:AAPL"); got != 1 {
		t.Errorf("params channel seq = %d, want 1", got)
	}

	msgs := h.ReplayRange("pub:signal:AAPL", 2, 3)
	if len(msgs) != 2 {
		t.Fatalf("replay returned %d, want 2", len(msgs))
	}
	var env envelope
	if err := json.Unmarshal(msgs[0], &env); err != nil {
		t.Fatal(err)
	}
	if env.ChannelSeq != 2 || env.Seq != 2 {
		t.Errorf("first replayed = seq %d channel_seq %d, want 2/2", env.Seq, env.ChannelSeq)
	}
	if h.ReplayRange("pub:signal:MSFT", 1, 10) != nil {
		t.Error("unknown channel should replay nothing")
	}

	latest := h.Latest()
	if string(latest["pub:params:AAPL"]) != `{"allocation":0.05}` {
		t.Errorf("latest params = %s", latest["pub:params:AAPL"])
	}

	if got := testutil.ToFloat64(m.GatewayMessages.WithLabelValues("signal")); got != 3 {
		t.Errorf("signal messages = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.GatewayMessages.WithLabelValues("params")); got != 1 {
		t.Errorf("params messages = %v, want 1", got)
	}
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		channel  string
		wantKind string
		wantSym  string
		wantOK   bool
	}{
		{"pub:signal:AAPL", "signal", "AAPL", true},
		{"pub:params:BRK.B", "params", "BRK.B", true},
		{"pub:signal:", "", "", false},
		{"pub:candle:60s:NSE:1", "", "", false},
		{"signal:AAPL", "", "", false},
		{"garbage", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			kind, sym, ok := parseChannel(tt.channel)
			if ok != tt.wantOK || kind != tt.wantKind || sym != tt.wantSym {
				t.Errorf("parseChannel(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.channel, kind, sym, ok, tt.wantKind, tt.wantSym, tt.wantOK)
			}
		})
	}
}

func TestClientMatchesChannel(t *testing.T) {
	c := newClient(NewHub(nil, nil), nil, []string{" aapl ", "msft", "AAPL"})
	if len(c.symbols) != 2 {
		t.Fatalf("symbols = %v, want AAPL and MSFT", c.symbols)
	}
	if !c.matchesChannel("pub:signal:AAPL") || !c.matchesChannel("pub:params:MSFT") {
		t.Error("subscribed symbols should match")
	}
	if c.matchesChannel("pub:signal:TSLA") {
		t.Error("TSLA should not match")
	}
	if !c.matchesChannel("system") {
		t.Error("unparsed channels are always delivered")
	}

	c.unsubscribe([]string{"AAPL", "MSFT"})
	if !c.matchesChannel("pub:signal:TSLA") {
		t.Error("a client with no symbols receives everything")
	}
}
