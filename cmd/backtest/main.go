// cmd/backtest replays one take-profit/stop-loss pair over a symbol's stored
// history and prints every simulated trade with a summary. Nothing is
// persisted or published.
//
// Usage:
//
//	go run ./cmd/backtest -symbol=AAPL -tp=2 -sl=1 [-json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"signalopt/config"
	"signalopt/internal/backtest"
	"signalopt/internal/engine"
	"signalopt/internal/logger"
	"signalopt/internal/model"
	sqlitestore "signalopt/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbol := flag.String("symbol", "", "Symbol to replay (required)")
	tp := flag.Float64("tp", 2, "Take-profit, percent")
	sl := flag.Float64("sl", 1, "Stop-loss, percent")
	dbPath := flag.String("db", "", "Path to SQLite database (default: SQLITE_PATH)")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	flag.Parse()

	if *symbol == "" {
		log.Fatal("[backtest] -symbol is required")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.SQLitePath
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	opt, err := backtest.NewOptimizer(cfg.OptimizerConfig(), backtest.Hooks{})
	if err != nil {
		log.Fatalf("[backtest] optimizer: %v", err)
	}
	svc, err := engine.New(engine.Options{
		Prices:      reader,
		Logger:      logger.Init("backtest", cfg.SlogLevel()),
		Calendar:    cfg.Calendar(),
		Optimizer:   opt,
		Grid:        cfg.Grid,
		WindowYears: cfg.WindowYears,
	})
	if err != nil {
		log.Fatalf("[backtest] engine: %v", err)
	}

	hundred := decimal.NewFromInt(100)
	c := model.ParameterCandidate{
		TakeProfitPct: decimal.NewFromFloat(*tp).Div(hundred),
		StopLossPct:   decimal.NewFromFloat(*sl).Div(hundred),
	}
	rep, err := svc.Backtest(context.Background(), strings.ToUpper(*symbol), c)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(rep)
		return
	}
	printReport(rep)
}

func printReport(rep *engine.Report) {
	fmt.Printf("%s  %s  %s .. %s  (%d bars, %d frames)\n\n",
		rep.Symbol, rep.Candidate, rep.From.Format("2006-01-02"), rep.To.Format("2006-01-02"), rep.Bars, rep.Frames)

	fmt.Printf("%-3s %-5s %-10s %10s %-10s %10s %5s %-11s %8s\n",
		"#", "SIDE", "ENTRY", "PRICE", "EXIT", "PRICE", "DAYS", "REASON", "RETURN")
	held := 0
	for i, t := range rep.Trades {
		held += t.HoldingDays()
		fmt.Printf("%-3d %-5s %-10s %10s %-10s %10s %5d %-11s %7s%%\n",
			i+1, t.Side,
			t.EntryTS.Format("2006-01-02"), t.EntryPrice.StringFixed(2),
			t.ExitTS.Format("2006-01-02"), t.ExitPrice.StringFixed(2),
			t.HoldingDays(), t.ExitReason, t.ReturnPct.Mul(decimal.NewFromInt(100)).StringFixed(2))
	}
	avgHold := "-"
	if n := len(rep.Trades); n > 0 {
		avgHold = fmt.Sprintf("%.1f days", float64(held)/float64(n))
	}

	s := rep.Score
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Trades:            %-16d ║\n", s.TradeCount)
	fmt.Printf("║  Win rate:          %-16s ║\n", fmt.Sprintf("%.1f%%", s.WinRate*100))
	fmt.Printf("║  Cumulative return: %-16s ║\n", fmt.Sprintf("%.2f%%", s.CumulativeReturn*100))
	fmt.Printf("║  Avg holding:       %-16s ║\n", avgHold)
	fmt.Printf("║  Open at end:       %-16t ║\n", rep.OpenAtEnd)
	fmt.Println("╚══════════════════════════════════════╝")
}
