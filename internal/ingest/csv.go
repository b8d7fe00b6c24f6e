// Package ingest parses daily close files into price points.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"signalopt/internal/model"
)

// ErrBadRow wraps every malformed-row error.
var ErrBadRow = errors.New("ingest: bad row")

// DateLayouts are tried in order for the date column.
var DateLayouts = []string{time.DateOnly, "2006/01/02", "01/02/2006", time.RFC3339}

// Columns locates the fields of a row. Symbol is -1 when the file carries
// a single symbol given out of band.
type Columns struct {
	Date, Close, Symbol int
}

// detectColumns reads a header row. Recognized names are case-insensitive:
// date|ts|timestamp, close|adj_close|price, symbol|ticker.
func detectColumns(header []string) (Columns, bool) {
	cols := Columns{Date: -1, Close: -1, Symbol: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "date", "ts", "timestamp":
			cols.Date = i
		case "close", "adj_close", "adj close", "price":
			if cols.Close < 0 {
				cols.Close = i
			}
		case "symbol", "ticker":
			cols.Symbol = i
		}
	}
	return cols, cols.Date >= 0 && cols.Close >= 0
}

// Reader streams price points from CSV. Files without a header are read as
// date,close.
type Reader struct {
	r      *csv.Reader
	symbol string
	cols   Columns
	line   int
	seen   map[string]bool
	peeked []string
}

// NewReader prepares a CSV reader. symbol is required unless the file has a
// symbol column.
func NewReader(r io.Reader, symbol string) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	first, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrBadRow)
		}
		return nil, err
	}
	rd := &Reader{r: cr, symbol: strings.ToUpper(strings.TrimSpace(symbol)), seen: make(map[string]bool)}
	if cols, ok := detectColumns(first); ok {
		rd.cols = cols
	} else {
		rd.cols = Columns{Date: 0, Close: 1, Symbol: -1}
		rd.peeked = first
	}
	if rd.cols.Symbol < 0 && rd.symbol == "" {
		return nil, errors.New("ingest: symbol is required when the file has no symbol column")
	}
	return rd, nil
}

// Next returns the next point, or io.EOF when the input is exhausted.
func (rd *Reader) Next() (model.PricePoint, error) {
	var rec []string
	if rd.peeked != nil {
		rec, rd.peeked = rd.peeked, nil
	} else {
		var err error
		if rec, err = rd.r.Read(); err != nil {
			return model.PricePoint{}, err
		}
	}
	rd.line, _ = rd.r.FieldPos(0)
	return rd.parse(rec)
}

func (rd *Reader) parse(rec []string) (model.PricePoint, error) {
	need := max(rd.cols.Date, rd.cols.Close, rd.cols.Symbol)
	if len(rec) <= need {
		return model.PricePoint{}, fmt.Errorf("%w: line %d: want at least %d fields, got %d", ErrBadRow, rd.line, need+1, len(rec))
	}

	sym := rd.symbol
	if rd.cols.Symbol >= 0 {
		sym = strings.ToUpper(strings.TrimSpace(rec[rd.cols.Symbol]))
		if sym == "" {
			return model.PricePoint{}, fmt.Errorf("%w: line %d: empty symbol", ErrBadRow, rd.line)
		}
	}

	ts, err := parseDate(rec[rd.cols.Date])
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("%w: line %d: %w", ErrBadRow, rd.line, err)
	}
	px, err := decimal.NewFromString(strings.TrimSpace(rec[rd.cols.Close]))
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("%w: line %d: close %q: %w", ErrBadRow, rd.line, rec[rd.cols.Close], err)
	}
	if !px.IsPositive() {
		return model.PricePoint{}, fmt.Errorf("%w: line %d: close must be positive, got %s", ErrBadRow, rd.line, px)
	}

	key := sym + "@" + ts.Format(time.DateOnly)
	if rd.seen[key] {
		return model.PricePoint{}, fmt.Errorf("%w: line %d: duplicate %s", ErrBadRow, rd.line, key)
	}
	rd.seen[key] = true

	return model.PricePoint{Symbol: sym, TS: ts, Close: px}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.TradingDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Stream sends every point to out and closes it. It stops at the first
// malformed row or when ctx is done, and returns the number of points sent.
func (rd *Reader) Stream(ctx context.Context, out chan<- model.PricePoint) (int, error) {
	defer close(out)
	n := 0
	for {
		p, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		select {
		case out <- p:
			n++
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}

// Symbols returns the distinct symbols seen so far, in no particular order.
func (rd *Reader) Symbols() []string {
	return lo.Uniq(lo.Map(lo.Keys(rd.seen), func(k string, _ int) string {
		sym, _, _ := strings.Cut(k, "@")
		return sym
	}))
}
