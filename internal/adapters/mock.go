package adapters

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MockAdapter is a scriptable in-memory adapter for tests and dry runs.
// Responses and failures are set per symbol; every call is counted so tests
// can assert that an excluded provider was never touched.
type MockAdapter struct {
	mu           sync.Mutex
	desc         Descriptor
	quotes       map[string]RawRecord
	bars         map[string][]RawRecord
	fundamentals map[string]RawRecord
	failWith     error
	latency      time.Duration

	QuoteCalls        int
	HistoricalCalls   int
	FundamentalsCalls int
}

// NewMockAdapter creates a mock with the given descriptor.
func NewMockAdapter(desc Descriptor) *MockAdapter {
	return &MockAdapter{
		desc:         desc,
		quotes:       make(map[string]RawRecord),
		bars:         make(map[string][]RawRecord),
		fundamentals: make(map[string]RawRecord),
	}
}

func (m *MockAdapter) Descriptor() Descriptor { return m.desc }

// SetQuote scripts the raw record returned for a symbol.
func (m *MockAdapter) SetQuote(symbol string, rec RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = rec
}

// SetQuotePrice scripts a well-formed quote record at the given price.
func (m *MockAdapter) SetQuotePrice(symbol string, price float64) {
	spread := price * 0.0005
	m.SetQuote(symbol, RawRecord{
		"symbol": symbol,
		"last":   strconv.FormatFloat(price, 'f', 4, 64),
		"bid":    strconv.FormatFloat(price-spread, 'f', 4, 64),
		"ask":    strconv.FormatFloat(price+spread, 'f', 4, 64),
		"volume": "100000",
		"ts":     time.Now().UTC().Format(time.RFC3339),
	})
}

// SetBars scripts the historical records returned for a symbol.
func (m *MockAdapter) SetBars(symbol string, recs []RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = recs
}

// SetFundamentals scripts the fundamental record returned for a symbol.
func (m *MockAdapter) SetFundamentals(symbol string, rec RawRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fundamentals[symbol] = rec
}

// FailWith makes every subsequent call return err. Pass nil to heal.
func (m *MockAdapter) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// SetLatency adds an artificial delay to every call.
func (m *MockAdapter) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Calls returns the total call count across capabilities.
func (m *MockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.QuoteCalls + m.HistoricalCalls + m.FundamentalsCalls
}

func (m *MockAdapter) GetQuote(ctx context.Context, symbol string) (RawRecord, error) {
	m.mu.Lock()
	m.QuoteCalls++
	err := m.failWith
	rec, ok := m.quotes[symbol]
	delay := m.latency
	m.mu.Unlock()

	if err := m.sleep(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotAvailableError(m.desc.ID, symbol, "no scripted quote")
	}
	return rec, nil
}

func (m *MockAdapter) GetHistorical(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]RawRecord, error) {
	m.mu.Lock()
	m.HistoricalCalls++
	err := m.failWith
	recs, ok := m.bars[symbol]
	delay := m.latency
	m.mu.Unlock()

	if err := m.sleep(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotAvailableError(m.desc.ID, symbol, "no scripted bars")
	}

	// Filter scripted records to the requested window.
	out := make([]RawRecord, 0, len(recs))
	for _, rec := range recs {
		ts, perr := time.Parse(time.RFC3339, rec["ts"])
		if perr != nil {
			return nil, fmt.Errorf("mock bar has bad ts: %v", perr)
		}
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MockAdapter) GetFundamentals(ctx context.Context, symbol string) (RawRecord, error) {
	m.mu.Lock()
	m.FundamentalsCalls++
	err := m.failWith
	rec, ok := m.fundamentals[symbol]
	delay := m.latency
	m.mu.Unlock()

	if err := m.sleep(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewNotAvailableError(m.desc.ID, symbol, "no scripted fundamentals")
	}
	return rec, nil
}

func (m *MockAdapter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return NewTransientError(m.desc.ID, "", "call cancelled", ctx.Err())
	case <-t.C:
		return nil
	}
}
