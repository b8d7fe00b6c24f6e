// cmd/ingest loads CSV files of daily closes into the SQLite price table
// and reports trading-day gaps per symbol.
//
// Usage:
//
//	go run ./cmd/ingest -symbol=AAPL data/aapl.csv
//	go run ./cmd/ingest data/watchlist.csv   # file with a symbol column
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"signalopt/config"
	"signalopt/internal/ingest"
	"signalopt/internal/logger"
	"signalopt/internal/model"
	sqlitestore "signalopt/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbol := flag.String("symbol", "", "Symbol for files without a symbol column")
	dbPath := flag.String("db", "", "Path to SQLite database (default: SQLITE_PATH)")
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal("[ingest] usage: ingest [-symbol=SYM] file.csv...")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[ingest] config: %v", err)
	}
	if *dbPath == "" {
		*dbPath = cfg.SQLitePath
	}
	slogger := logger.Init("ingest", cfg.SlogLevel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if dir := filepath.Dir(*dbPath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[ingest] sqlite init failed: %v", err)
	}
	defer writer.Close()
	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[ingest] sqlite reader failed: %v", err)
	}
	defer reader.Close()

	cal := cfg.Calendar()
	failed := false
	for _, path := range flag.Args() {
		start := time.Now()
		syms, n, err := load(ctx, writer, path, *symbol)
		if err != nil {
			slogger.Error("ingest failed", "file", path, "committed", n, "err", err)
			failed = true
			continue
		}
		slogger.Info("ingested", "file", path, "points", n, "symbols", len(syms), "elapsed", time.Since(start))

		for _, sym := range syms {
			points, err := reader.ReadPrices(ctx, sym, time.Time{}, time.Time{})
			if err != nil {
				slogger.Error("read back failed", "symbol", sym, "err", err)
				continue
			}
			for _, g := range cal.FindGaps(points) {
				slogger.Warn("data gap", "symbol", sym, "gap", g.String())
			}
		}
	}
	if failed {
		os.Exit(1)
	}
}

// load streams one file into the writer. Rows before a malformed row are
// still committed.
func load(ctx context.Context, w *sqlitestore.Writer, path, symbol string) ([]string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	rd, err := ingest.NewReader(f, symbol)
	if err != nil {
		return nil, 0, err
	}

	ch := make(chan model.PricePoint, 1000)
	done := make(chan int, 1)
	go func() { done <- w.Run(ctx, ch) }()

	_, streamErr := rd.Stream(ctx, ch)
	committed := <-done
	return rd.Symbols(), committed, streamErr
}
