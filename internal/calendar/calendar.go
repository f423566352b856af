// Package calendar models per-exchange trading sessions: regular hours,
// weekends and holidays. The gap detector asks it which bars a complete
// series would contain.
package calendar

import (
	"sort"
	"sync"
	"time"
)

// Session is one continuous trading window, [Open, Close).
type Session struct {
	Open  time.Time
	Close time.Time
}

// Calendar answers session queries for an exchange.
type Calendar interface {
	// TradingSessions returns the sessions overlapping [start, end),
	// ordered ascending.
	TradingSessions(exchange string, start, end time.Time) []Session
}

type exchangeHours struct {
	tz        *time.Location
	openMins  int // minutes from midnight, local
	closeMins int
}

// MarketHours is the static implementation built from known exchanges plus
// configured holiday lists.
type MarketHours struct {
	mu        sync.RWMutex
	exchanges map[string]exchangeHours
	holidays  map[string]map[string]struct{} // exchange -> "2006-01-02" local date
}

// NewMarketHours builds the calendar with the exchanges this layer routes
// to. Unknown exchanges fall back to XNYS hours, which fails safe for the
// dominant US routing case.
func NewMarketHours() *MarketHours {
	mh := &MarketHours{
		exchanges: make(map[string]exchangeHours),
		holidays:  make(map[string]map[string]struct{}),
	}
	mh.addExchange("XNYS", "America/New_York", 9*60+30, 16*60)
	mh.addExchange("XNAS", "America/New_York", 9*60+30, 16*60)
	mh.addExchange("XLON", "Europe/London", 8*60, 16*60+30)
	mh.addExchange("XTKS", "Asia/Tokyo", 9*60, 15*60)
	return mh
}

func (mh *MarketHours) addExchange(code, tz string, openMins, closeMins int) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	mh.exchanges[code] = exchangeHours{tz: loc, openMins: openMins, closeMins: closeMins}
}

// AddHolidays registers full-day closures for an exchange, dates in
// "2006-01-02" form interpreted in the exchange's local zone.
func (mh *MarketHours) AddHolidays(exchange string, dates []string) {
	mh.mu.Lock()
	defer mh.mu.Unlock()
	set, ok := mh.holidays[exchange]
	if !ok {
		set = make(map[string]struct{})
		mh.holidays[exchange] = set
	}
	for _, d := range dates {
		set[d] = struct{}{}
	}
}

// TradingSessions enumerates sessions overlapping [start, end).
func (mh *MarketHours) TradingSessions(exchange string, start, end time.Time) []Session {
	hours, ok := mh.exchanges[exchange]
	if !ok {
		hours = mh.exchanges["XNYS"]
	}

	mh.mu.RLock()
	holidays := mh.holidays[exchange]
	mh.mu.RUnlock()

	var sessions []Session
	// Walk local calendar days; start one day early so a session already in
	// progress at 'start' is included.
	day := start.In(hours.tz).AddDate(0, 0, -1)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, hours.tz)

	for !day.After(end.In(hours.tz)) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			if _, closed := holidays[day.Format("2006-01-02")]; !closed {
				open := day.Add(time.Duration(hours.openMins) * time.Minute)
				close := day.Add(time.Duration(hours.closeMins) * time.Minute)
				if close.After(start) && open.Before(end) {
					sessions = append(sessions, Session{Open: open, Close: close})
				}
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Open.Before(sessions[j].Open) })
	return sessions
}

// IsOpen reports whether the exchange is inside a session at the given time.
func (mh *MarketHours) IsOpen(exchange string, at time.Time) bool {
	for _, s := range mh.TradingSessions(exchange, at.Add(-24*time.Hour), at.Add(time.Minute)) {
		if !at.Before(s.Open) && at.Before(s.Close) {
			return true
		}
	}
	return false
}
