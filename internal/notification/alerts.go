package notification

import (
	"fmt"

	"signalopt/internal/model"
)

// SignalAlert announces an entry signal.
func SignalAlert(ev model.SignalEvent) Alert {
	return Alert{
		Level:   AlertInfo,
		Symbol:  ev.Symbol,
		Title:   fmt.Sprintf("%s %s", ev.Symbol, ev.Kind),
		Message: fmt.Sprintf("MACD crossover on %s close", ev.TS.Format("2006-01-02")),
		Data:    ev,
	}
}

// ParamsAlert announces newly selected exit parameters.
func ParamsAlert(p model.ActiveParams) Alert {
	return Alert{
		Level:  AlertInfo,
		Symbol: p.Symbol,
		Title:  fmt.Sprintf("%s params updated", p.Symbol),
		Message: fmt.Sprintf("%s win=%.1f%% return=%.2f%% trades=%d allocation=%.1f%%",
			p.Candidate, p.Score.WinRate*100, p.Score.CumulativeReturn*100, p.Score.TradeCount, p.Allocation*100),
		Data: p,
	}
}

// DroppedAlert reports a symbol removed from the active set.
func DroppedAlert(symbol string, reason error) Alert {
	return Alert{
		Level:   AlertWarning,
		Symbol:  symbol,
		Title:   fmt.Sprintf("%s dropped from active set", symbol),
		Message: reason.Error(),
	}
}
