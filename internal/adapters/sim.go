package adapters

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// SimAdapter generates plausible random-walk market data. It backs the
// process when no provider credentials are configured and gives tests a
// provider that never leaves the building.
type SimAdapter struct {
	mu     sync.Mutex
	desc   Descriptor
	prices map[string]float64
	rng    *rand.Rand
}

// NewSimAdapter creates a simulated provider.
func NewSimAdapter(desc Descriptor) *SimAdapter {
	return &SimAdapter{
		desc:   desc,
		prices: make(map[string]float64),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SimAdapter) Descriptor() Descriptor { return s.desc }

// basePrice derives a stable starting price per symbol so repeated runs stay
// in a familiar range.
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 20 + float64(h.Sum32()%980)
}

func (s *SimAdapter) step(symbol string) float64 {
	last, ok := s.prices[symbol]
	if !ok {
		last = basePrice(symbol)
	}
	// Bounded random walk, about ±0.5% per step.
	last *= 1 + (s.rng.Float64()-0.5)*0.01
	last = math.Max(last, 0.01)
	s.prices[symbol] = last
	return last
}

func (s *SimAdapter) GetQuote(ctx context.Context, symbol string) (RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTransientError(s.desc.ID, symbol, "call cancelled", err)
	}
	s.mu.Lock()
	price := s.step(symbol)
	vol := 50000 + s.rng.Int63n(950000)
	s.mu.Unlock()

	spread := price * 0.0004
	return RawRecord{
		"symbol": symbol,
		"last":   strconv.FormatFloat(price, 'f', 4, 64),
		"bid":    strconv.FormatFloat(price-spread/2, 'f', 4, 64),
		"ask":    strconv.FormatFloat(price+spread/2, 'f', 4, 64),
		"volume": strconv.FormatInt(vol, 10),
		"ts":     time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *SimAdapter) GetHistorical(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTransientError(s.desc.ID, symbol, "call cancelled", err)
	}
	step := tf.Duration()
	if step <= 0 {
		return nil, NewNotAvailableError(s.desc.ID, symbol, "unsupported timeframe")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []RawRecord
	for ts := start.UTC(); ts.Before(end); ts = ts.Add(step) {
		open := s.step(symbol)
		close := s.step(symbol)
		high := math.Max(open, close) * (1 + s.rng.Float64()*0.003)
		low := math.Min(open, close) * (1 - s.rng.Float64()*0.003)
		out = append(out, RawRecord{
			"symbol": symbol,
			"o":      strconv.FormatFloat(open, 'f', 4, 64),
			"h":      strconv.FormatFloat(high, 'f', 4, 64),
			"l":      strconv.FormatFloat(low, 'f', 4, 64),
			"c":      strconv.FormatFloat(close, 'f', 4, 64),
			"volume": strconv.FormatInt(10000+s.rng.Int63n(90000), 10),
			"ts":     ts.Format(time.RFC3339),
		})
	}
	return out, nil
}

func (s *SimAdapter) GetFundamentals(ctx context.Context, symbol string) (RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewTransientError(s.desc.ID, symbol, "call cancelled", err)
	}
	s.mu.Lock()
	price := s.step(symbol)
	s.mu.Unlock()

	shares := 1e9
	eps := price / (10 + float64(len(symbol)))
	return RawRecord{
		"symbol":         symbol,
		"name":           symbol + " Inc.",
		"market_cap":     strconv.FormatFloat(price*shares, 'f', 0, 64),
		"pe_ratio":       strconv.FormatFloat(price/eps, 'f', 2, 64),
		"eps":            strconv.FormatFloat(eps, 'f', 2, 64),
		"dividend_yield": "0.0125",
		"as_of":          time.Now().UTC().Format(time.RFC3339),
	}, nil
}
