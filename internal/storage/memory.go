package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantfeed/marketdata/internal/adapters"
)

// MemoryStore is a map-backed BarStore for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	bars map[string]map[int64]adapters.Bar // symbol/timeframe -> unix ts -> bar
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bars: make(map[string]map[int64]adapters.Bar)}
}

func seriesKey(symbol string, tf adapters.Timeframe) string {
	return symbol + "/" + string(tf)
}

func (s *MemoryStore) Upsert(ctx context.Context, bars []adapters.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		key := seriesKey(b.Symbol, b.Timeframe)
		series, ok := s.bars[key]
		if !ok {
			series = make(map[int64]adapters.Bar)
			s.bars[key] = series
		}
		series[b.Timestamp.UTC().Unix()] = b
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, symbol string, tf adapters.Timeframe, start, end time.Time) ([]adapters.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.bars[seriesKey(symbol, tf)]
	out := make([]adapters.Bar, 0, len(series))
	lo, hi := start.UTC().Unix(), end.UTC().Unix()
	for ts, b := range series {
		if ts >= lo && ts < hi {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) Timestamps(ctx context.Context, symbol string, tf adapters.Timeframe, start, end time.Time) ([]time.Time, error) {
	bars, err := s.Query(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(bars))
	for i, b := range bars {
		out[i] = b.Timestamp
	}
	return out, nil
}
