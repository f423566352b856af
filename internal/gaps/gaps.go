// Package gaps computes which sub-ranges of a stored historical series are
// missing relative to the trading calendar, so backfill touches only the
// slices that need a provider call.
package gaps

import (
	"time"

	"github.com/quantfeed/marketdata/internal/adapters"
	"github.com/quantfeed/marketdata/internal/calendar"
)

// Gap is one missing sub-range [Start, End) of a series.
type Gap struct {
	Symbol    string             `json:"symbol"`
	Timeframe adapters.Timeframe `json:"timeframe"`
	Start     time.Time          `json:"start"`
	End       time.Time          `json:"end"`
}

// Detector diffs calendar-expected bar timestamps against stored ones.
type Detector struct {
	cal calendar.Calendar
	now func() time.Time
}

// New creates a detector over the given calendar.
func New(cal calendar.Calendar) *Detector {
	return &Detector{cal: cal, now: time.Now}
}

type expectedBar struct {
	ts        time.Time
	periodEnd time.Time
	inOpen    bool // bar sits in a session that has not closed yet
}

// Missing returns the ordered minimal gaps in [start, end) for the series.
// stored holds the timestamps already persisted. A range entirely outside
// trading sessions yields no gaps. Bars inside a still-open session are
// always reported missing, stored or not, because they are not final.
func (d *Detector) Missing(symbol, exchange string, tf adapters.Timeframe, start, end time.Time, stored []time.Time) []Gap {
	expected := d.expectedBars(exchange, tf, start, end)
	if len(expected) == 0 {
		return nil
	}

	have := make(map[int64]struct{}, len(stored))
	for _, ts := range stored {
		have[ts.UTC().Unix()] = struct{}{}
	}

	var gaps []Gap
	for _, eb := range expected {
		_, ok := have[eb.ts.Unix()]
		if ok && !eb.inOpen {
			continue
		}
		// Extend the current gap if this bar is contiguous with it.
		if n := len(gaps); n > 0 && gaps[n-1].End.Equal(eb.ts) {
			gaps[n-1].End = eb.periodEnd
			continue
		}
		gaps = append(gaps, Gap{Symbol: symbol, Timeframe: tf, Start: eb.ts, End: eb.periodEnd})
	}
	return gaps
}

// expectedBars enumerates the bar timestamps a complete series would hold,
// in UTC ascending order, excluding bars whose period has not begun.
func (d *Detector) expectedBars(exchange string, tf adapters.Timeframe, start, end time.Time) []expectedBar {
	now := d.now()
	sessions := d.cal.TradingSessions(exchange, start, end)
	if len(sessions) == 0 {
		return nil
	}

	var out []expectedBar
	if tf.Intraday() {
		step := tf.Duration()
		for _, s := range sessions {
			open := s.Open
			if s.Close.After(now) && open.After(now) {
				continue
			}
			for ts := open; ts.Add(step).Sub(s.Close) <= 0; ts = ts.Add(step) {
				if ts.Before(start) || !ts.Before(end) {
					continue
				}
				if ts.After(now) {
					break
				}
				out = append(out, expectedBar{
					ts:        ts.UTC(),
					periodEnd: ts.Add(step).UTC(),
					inOpen:    s.Close.After(now),
				})
			}
		}
		return out
	}

	// Daily and weekly bars are stamped at UTC midnight of the trading
	// date; weekly collapses to the week's first trading day.
	seenWeek := make(map[int]struct{})
	for _, s := range sessions {
		if s.Open.After(now) {
			continue
		}
		y, m, day := s.Open.Date()
		ts := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
		if tf == adapters.Timeframe1w {
			yr, wk := s.Open.ISOWeek()
			key := yr*100 + wk
			if _, dup := seenWeek[key]; dup {
				continue
			}
			seenWeek[key] = struct{}{}
		}
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		out = append(out, expectedBar{
			ts:        ts,
			periodEnd: ts.Add(tf.Duration()),
			inOpen:    s.Close.After(now),
		})
	}
	return out
}

// SetNow overrides the clock, for tests.
func (d *Detector) SetNow(now func() time.Time) { d.now = now }
