// Package storage persists canonical bars. The orchestration layer only
// depends on the BarStore contract; the SQLite implementation is what the
// single-node deployment runs.
package storage

import (
	"context"
	"time"

	"github.com/quantfeed/marketdata/internal/adapters"
)

// BarStore is the persistence contract for canonical bars.
// (symbol, timeframe, timestamp) is unique within the store.
type BarStore interface {
	// Upsert inserts or replaces bars. Replaying the same slice is a no-op.
	Upsert(ctx context.Context, bars []adapters.Bar) error

	// Query returns bars for [start, end) in ascending timestamp order.
	Query(ctx context.Context, symbol string, tf adapters.Timeframe, start, end time.Time) ([]adapters.Bar, error)

	// Timestamps returns only the stored bar timestamps for [start, end),
	// ascending. Gap detection wants just these, not full rows.
	Timestamps(ctx context.Context, symbol string, tf adapters.Timeframe, start, end time.Time) ([]time.Time, error)
}
