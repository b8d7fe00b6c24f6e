package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"signalopt/internal/backtest"
	"signalopt/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

var validate = validator.New()

// LiveReader reads the values the engine published to Redis.
type LiveReader interface {
	model.ParamsReader
	LatestSignal(ctx context.Context, symbol string) (*model.SignalEvent, error)
}

// RunReader reads persisted optimization runs.
type RunReader interface {
	LatestRun(ctx context.Context, symbol string) (*model.OptimizationRun, error)
}

// Operator performs the mutating actions behind the guarded endpoints.
type Operator interface {
	Override(ctx context.Context, symbol string, c model.ParameterCandidate) (*model.ActiveParams, error)
	Optimize(ctx context.Context, symbol string) (*model.OptimizationRun, *model.ActiveParams, error)
}

// Deps are the collaborators of the HTTP surface. Runs and Operator may be
// nil; their endpoints then answer 503.
type Deps struct {
	Hub      *Hub
	Live     LiveReader
	Runs     RunReader
	Operator Operator
	Guard    *TOTPGuard
}

// overrideRequest is the body of POST /api/params/{symbol}, in percent.
type overrideRequest struct {
	TakeProfitPct float64 `json:"take_profit_pct" validate:"gt=0,lte=100"`
	StopLossPct   float64 `json:"stop_loss_pct" validate:"gt=0,lte=100"`
}

func (r overrideRequest) candidate() model.ParameterCandidate {
	hundred := decimal.NewFromInt(100)
	return model.ParameterCandidate{
		TakeProfitPct: decimal.NewFromFloat(r.TakeProfitPct).Div(hundred),
		StopLossPct:   decimal.NewFromFloat(r.StopLossPct).Div(hundred),
	}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TOTPHeader)
}

// RegisterRoutes registers the WebSocket and REST routes on mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	if d.Guard == nil {
		d.Guard = NewTOTPGuard("", nil)
	}

	// WebSocket: ?symbols=AAPL,MSFT&last_ts=RFC3339
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		q := r.URL.Query()
		d.Hub.HandleConn(conn, splitSymbols(q.Get("symbols")), q.Get("last_ts"))
	})

	mux.HandleFunc("GET /api/latest", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Hub.Latest())
	})

	// Gap backfill: ?channel=pub:signal:AAPL&from=3&to=7
	mux.HandleFunc("GET /api/missed", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || err1 != nil || err2 != nil || from > to {
			writeError(w, http.StatusBadRequest, "channel, from and to are required")
			return
		}
		msgs := d.Hub.ReplayRange(channel, from, to)
		out := make([]json.RawMessage, len(msgs))
		for i, m := range msgs {
			out[i] = m
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"channel":     channel,
			"channel_seq": d.Hub.ChannelSeq(channel),
			"messages":    out,
		})
	})

	mux.HandleFunc("GET /api/signals/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		sym := pathSymbol(r)
		ev, err := d.Live.LatestSignal(r.Context(), sym)
		respond(w, ev, err, "no signal for "+sym)
	})

	mux.HandleFunc("GET /api/params/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		sym := pathSymbol(r)
		p, err := d.Live.ActiveParams(r.Context(), sym)
		respond(w, p, err, "no active params for "+sym)
	})

	mux.HandleFunc("GET /api/runs/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		if d.Runs == nil {
			writeError(w, http.StatusServiceUnavailable, "run store not configured")
			return
		}
		sym := pathSymbol(r)
		run, err := d.Runs.LatestRun(r.Context(), sym)
		respond(w, run, err, "no optimization run for "+sym)
	})

	mux.HandleFunc("POST /api/params/{symbol}", d.Guard.Wrap(func(w http.ResponseWriter, r *http.Request) {
		if d.Operator == nil {
			writeError(w, http.StatusServiceUnavailable, "operator actions not configured")
			return
		}
		var req overrideRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		sym := pathSymbol(r)
		p, err := d.Operator.Override(r.Context(), sym, req.candidate())
		if err != nil {
			log.Printf("[gateway] override %s: %v", sym, err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		d.Guard.count("accepted")
		log.Printf("[gateway] params override %s: %s", sym, p.Candidate)
		writeJSON(w, http.StatusOK, p)
	}))

	mux.HandleFunc("POST /api/optimize/{symbol}", d.Guard.Wrap(func(w http.ResponseWriter, r *http.Request) {
		if d.Operator == nil {
			writeError(w, http.StatusServiceUnavailable, "operator actions not configured")
			return
		}
		sym := pathSymbol(r)
		run, p, err := d.Operator.Optimize(r.Context(), sym)
		if err != nil && run == nil {
			log.Printf("[gateway] optimize %s: %v", sym, err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		d.Guard.count("accepted")
		body := map[string]any{"run": run, "params": p}
		if err != nil {
			// persisted but not fully handed off
			body["warning"] = err.Error()
		}
		writeJSON(w, http.StatusOK, body)
	}))

	mux.HandleFunc("OPTIONS /api/", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.WriteHeader(http.StatusNoContent)
	})
}

func pathSymbol(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	return normalizeSymbols(strings.Split(s, ","))
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, backtest.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, backtest.ErrInsufficientData), errors.Is(err, backtest.ErrNoTrades):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respond writes v, or 404 when the reader found nothing.
func respond[T any](w http.ResponseWriter, v *T, err error, notFound string) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
