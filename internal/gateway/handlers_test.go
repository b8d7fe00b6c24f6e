package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalopt/internal/backtest"
	"signalopt/internal/metrics"
	"signalopt/internal/model"
	redisstore "signalopt/internal/store/redis"
)

const testSecret = "JBSWY3DPEHPK3PXP"

type fakeOperator struct {
	overrides []model.ParameterCandidate
	optimized []string
	err       error
}

func (f *fakeOperator) Override(_ context.Context, symbol string, c model.ParameterCandidate) (*model.ActiveParams, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.overrides = append(f.overrides, c)
	return &model.ActiveParams{Symbol: symbol, Candidate: c, RunID: "override-1"}, nil
}

func (f *fakeOperator) Optimize(_ context.Context, symbol string) (*model.OptimizationRun, *model.ActiveParams, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	f.optimized = append(f.optimized, symbol)
	return &model.OptimizationRun{RunID: "r1", Symbol: symbol}, &model.ActiveParams{Symbol: symbol, RunID: "r1"}, nil
}

type fakeRuns struct{ run *model.OptimizationRun }

func (f fakeRuns) LatestRun(_ context.Context, symbol string) (*model.OptimizationRun, error) {
	if f.run != nil && f.run.Symbol == symbol {
		return f.run, nil
	}
	return nil, nil
}

type server struct {
	mux     *http.ServeMux
	hub     *Hub
	op      *fakeOperator
	writer  *redisstore.Writer
	metrics *metrics.Metrics
}

func newServer(t *testing.T, secret string) *server {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := &server{
		mux:     http.NewServeMux(),
		hub:     NewHub(nil, m),
		op:      &fakeOperator{},
		writer:  redisstore.NewWithClient(client),
		metrics: m,
	}
	RegisterRoutes(s.mux, Deps{
		Hub:      s.hub,
		Live:     redisstore.NewReaderWithClient(client),
		Runs:     fakeRuns{run: &model.OptimizationRun{RunID: "AAPL-1", Symbol: "AAPL", Bars: 300}},
		Operator: s.op,
		Guard:    NewTOTPGuard(secret, m),
	})
	return s
}

func (s *server) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestGetSignalAndParams(t *testing.T) {
	s := newServer(t, "")
	ctx := context.Background()
	ts := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.writer.PublishSignal(ctx, model.SignalEvent{Symbol: "AAPL", TS: ts, Kind: model.SignalLongEntry}))
	c := model.ParameterCandidate{TakeProfitPct: decimal.RequireFromString("0.03"), StopLossPct: decimal.RequireFromString("0.015")}
	require.NoError(t, s.writer.PublishParams(ctx, model.ActiveParams{Symbol: "AAPL", Candidate: c, Allocation: 0.06, RunID: "AAPL-1"}))

	rec := s.do(http.MethodGet, "/api/signals/aapl", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ev model.SignalEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, model.SignalLongEntry, ev.Kind)
	assert.True(t, ev.TS.Equal(ts))

	rec = s.do(http.MethodGet, "/api/params/AAPL", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.ActiveParams
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.True(t, p.Candidate.TakeProfitPct.Equal(c.TakeProfitPct))
	assert.InDelta(t, 0.06, p.Allocation, 1e-12)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/signals/MSFT", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/params/MSFT", "", nil).Code)
}

func TestGetRun(t *testing.T) {
	s := newServer(t, "")

	rec := s.do(http.MethodGet, "/api/runs/AAPL", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.OptimizationRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "AAPL-1", run.RunID)
	assert.Equal(t, 300, run.Bars)

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/runs/TSLA", "", nil).Code)
}

func TestLatestAndMissed(t *testing.T) {
	s := newServer(t, "")
	for i := range 4 {
		s.hub.Broadcaster.Broadcast("pub:signal:AAPL", []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}

	rec := s.do(http.MethodGet, "/api/latest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var latest map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.JSONEq(t, `{"n":3}`, string(latest["pub:signal:AAPL"]))

	rec = s.do(http.MethodGet, "/api/missed?channel=pub:signal:AAPL&from=2&to=3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var missed struct {
		ChannelSeq int64      `json:"channel_seq"`
		Messages   []envelope `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &missed))
	assert.EqualValues(t, 4, missed.ChannelSeq)
	require.Len(t, missed.Messages, 2)
	assert.EqualValues(t, 2, missed.Messages[0].ChannelSeq)
	assert.JSONEq(t, `{"n":2}`, string(missed.Messages[1].Data))

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/missed?channel=x&from=5&to=1", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/missed?from=1&to=2", "", nil).Code)
}

func TestOverride_RequiresTOTP(t *testing.T) {
	s := newServer(t, testSecret)
	body := `{"take_profit_pct":1.5,"stop_loss_pct":2}`

	rec := s.do(http.MethodPost, "/api/params/AAPL", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/params/AAPL", body, map[string]string{TOTPHeader: "000000x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.op.overrides)

	code, err := totp.GenerateCode(testSecret, time.Now())
	require.NoError(t, err)
	rec = s.do(http.MethodPost, "/api/params/AAPL", body, map[string]string{TOTPHeader: code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, s.op.overrides, 1)
	assert.True(t, s.op.overrides[0].TakeProfitPct.Equal(decimal.RequireFromString("0.015")))
	assert.True(t, s.op.overrides[0].StopLossPct.Equal(decimal.RequireFromString("0.02")))

	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.OverrideTotal.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.OverrideTotal.WithLabelValues("accepted")))
}

func TestOverride_ValidatesBody(t *testing.T) {
	s := newServer(t, "")
	for _, body := range []string{
		`{"take_profit_pct":0,"stop_loss_pct":2}`,
		`{"take_profit_pct":1,"stop_loss_pct":-1}`,
		`{"take_profit_pct":1,"stop_loss_pct":101}`,
		`not json`,
	} {
		rec := s.do(http.MethodPost, "/api/params/AAPL", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, s.op.overrides)
}

func TestOptimize_MapsErrors(t *testing.T) {
	s := newServer(t, "")

	rec := s.do(http.MethodPost, "/api/optimize/aapl", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL"}, s.op.optimized)

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("optimize X: %w", backtest.ErrNoTrades), http.StatusUnprocessableEntity},
		{backtest.ErrInsufficientData, http.StatusUnprocessableEntity},
		{backtest.ErrInvalidParameter, http.StatusBadRequest},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		s.op.err = tt.err
		rec := s.do(http.MethodPost, "/api/optimize/X", "", nil)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestTOTPGuard_Disabled(t *testing.T) {
	g := NewTOTPGuard("  ", nil)
	assert.False(t, g.Enabled())
	assert.True(t, g.Valid(""))
}

func TestTOTPGuard_Skew(t *testing.T) {
	g := NewTOTPGuard(testSecret, nil)
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	prev, err := totp.GenerateCode(testSecret, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.True(t, g.Valid(prev), "one period of skew is accepted")

	old, err := totp.GenerateCode(testSecret, now.Add(-5*time.Minute))
	require.NoError(t, err)
	assert.False(t, g.Valid(old))
}
