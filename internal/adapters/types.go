package adapters

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe identifies the bar interval of a historical series.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe1w:  7 * 24 * time.Hour,
}

// Duration returns the nominal bar width. Daily and weekly bars use calendar
// days; trading-calendar awareness lives in the gap detector, not here.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Intraday reports whether bars of this timeframe subdivide a trading session.
func (tf Timeframe) Intraday() bool {
	return tf != Timeframe1d && tf != Timeframe1w
}

// ParseTimeframe validates a timeframe string from config or API input.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Quote is the canonical quote shape produced by the normalizer. It is
// immutable once constructed; Source records the provider that served it.
type Quote struct {
	Symbol      string    `json:"symbol"`       // Canonical symbol (uppercase, no provider suffixes)
	Price       float64   `json:"price"`        // Last traded price
	Bid         float64   `json:"bid"`          // Best bid
	Ask         float64   `json:"ask"`          // Best ask
	Volume      int64     `json:"volume"`       // Daily volume, 0 if provider omits it
	Currency    string    `json:"currency"`     // ISO currency code
	Timestamp   time.Time `json:"timestamp"`    // Quote time reported by the provider
	Source      string    `json:"source"`       // Provider id that served this quote
	StalenessMs int64     `json:"staleness_ms"` // Age at retrieval when served from cache
}

// IsStale checks if the quote exceeds a staleness ceiling.
func (q *Quote) IsStale(maxAgeMs int64) bool {
	return q.StalenessMs > maxAgeMs
}

// Bar is the canonical OHLCV shape. (Symbol, Timeframe, Timestamp) is unique
// within any stored series.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timeframe  Timeframe `json:"timeframe"`
	Timestamp  time.Time `json:"timestamp"` // Bar open time, UTC
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	VWAP       *float64  `json:"vwap,omitempty"`
	TradeCount *int64    `json:"trade_count,omitempty"`
	Source     string    `json:"source"`
}

// Fundamentals is the canonical fundamental snapshot for a symbol.
type Fundamentals struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	PERatio       float64   `json:"pe_ratio,omitempty"`
	EPS           float64   `json:"eps,omitempty"`
	DividendYield float64   `json:"dividend_yield,omitempty"`
	Currency      string    `json:"currency"`
	AsOf          time.Time `json:"as_of"`
	Source        string    `json:"source"`
}

// ValidateQuote performs fail-closed validation on a normalized quote.
func ValidateQuote(q *Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}
	if strings.TrimSpace(q.Symbol) == "" {
		return fmt.Errorf("empty symbol")
	}
	if q.Price <= 0 {
		return fmt.Errorf("invalid price: %.4f", q.Price)
	}
	if q.Bid < 0 || q.Ask < 0 {
		return fmt.Errorf("negative bid/ask: bid=%.4f ask=%.4f", q.Bid, q.Ask)
	}
	if q.Bid > 0 && q.Ask > 0 && q.Ask < q.Bid {
		return fmt.Errorf("invalid spread: ask(%.4f) < bid(%.4f)", q.Ask, q.Bid)
	}
	if q.Volume < 0 {
		return fmt.Errorf("negative volume: %d", q.Volume)
	}
	if q.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		return fmt.Errorf("quote timestamp too far in future: %v", q.Timestamp)
	}
	return nil
}

// ValidateBar performs fail-closed validation on a normalized bar.
func ValidateBar(b *Bar) error {
	if b == nil {
		return fmt.Errorf("bar is nil")
	}
	if strings.TrimSpace(b.Symbol) == "" {
		return fmt.Errorf("empty symbol")
	}
	if _, ok := timeframeDurations[b.Timeframe]; !ok {
		return fmt.Errorf("unknown timeframe %q", b.Timeframe)
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("invalid prices: o=%.4f h=%.4f l=%.4f c=%.4f", b.Open, b.High, b.Low, b.Close)
	}
	if b.High < b.Low {
		return fmt.Errorf("high(%.4f) < low(%.4f)", b.High, b.Low)
	}
	if b.Open > b.High || b.Open < b.Low || b.Close > b.High || b.Close < b.Low {
		return fmt.Errorf("open/close outside high-low range")
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume: %d", b.Volume)
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp")
	}
	return nil
}
