// Package calendar knows which days are trading days for daily-bar data.
// Weekends are never trading days; holidays come from configuration.
package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"signalopt/internal/model"
)

const dateLayout = "2006-01-02"

// Calendar is a weekday calendar minus a holiday set. Dates are compared
// as UTC calendar days.
type Calendar struct {
	holidays map[string]bool
}

// New builds a calendar from holiday dates.
func New(holidays []time.Time) *Calendar {
	c := &Calendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		c.holidays[dateKey(h)] = true
	}
	return c
}

// ParseHolidays parses "2024-01-01,2024-12-25".
func ParseHolidays(s string) ([]time.Time, error) {
	var out []time.Time
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.Parse(dateLayout, p)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", p, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// IsHoliday reports whether t falls on a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[dateKey(t)]
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	return IsWeekday(t) && !c.IsHoliday(t)
}

// NextTradingDay returns the first trading day strictly after t, as a UTC date.
func (c *Calendar) NextTradingDay(t time.Time) time.Time {
	d := model.TradingDate(t).AddDate(0, 0, 1)
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// TradingDaysBetween counts trading days strictly between a and b.
func (c *Calendar) TradingDaysBetween(a, b time.Time) int {
	n := 0
	end := model.TradingDate(b)
	for d := model.TradingDate(a).AddDate(0, 0, 1); d.Before(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			n++
		}
	}
	return n
}

// Gap is a run of missing trading days between two stored bars.
type Gap struct {
	After   time.Time // last bar before the gap
	Before  time.Time // first bar after the gap
	Missing int
}

func (g Gap) String() string {
	return fmt.Sprintf("%d trading day(s) missing between %s and %s",
		g.Missing, g.After.Format(dateLayout), g.Before.Format(dateLayout))
}

// FindGaps reports missing trading days in an ascending series.
func (c *Calendar) FindGaps(points []model.PricePoint) []Gap {
	var gaps []Gap
	for i := 1; i < len(points); i++ {
		if n := c.TradingDaysBetween(points[i-1].TS, points[i].TS); n > 0 {
			gaps = append(gaps, Gap{After: points[i-1].TS, Before: points[i].TS, Missing: n})
		}
	}
	return gaps
}

// Window keeps the last years of an ascending series plus warmup bars
// before the cut so the indicators are seeded when the window opens.
// years <= 0 keeps everything.
func Window(points []model.PricePoint, years, warmup int) []model.PricePoint {
	if years <= 0 || len(points) == 0 {
		return points
	}
	cutoff := points[len(points)-1].TS.AddDate(-years, 0, 0)
	i := sort.Search(len(points), func(i int) bool { return !points[i].TS.Before(cutoff) })
	return points[max(0, i-warmup):]
}

func dateKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
