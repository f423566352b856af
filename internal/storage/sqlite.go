package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/quantfeed/marketdata/internal/adapters"
)

// barRow is the GORM model for one stored bar.
type barRow struct {
	ID         uint   `gorm:"primaryKey"`
	Symbol     string `gorm:"uniqueIndex:idx_bar_key;size:16"`
	Timeframe  string `gorm:"uniqueIndex:idx_bar_key;size:4"`
	Timestamp  int64  `gorm:"uniqueIndex:idx_bar_key"` // unix seconds, UTC
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	VWAP       *float64
	TradeCount *int64
	Source     string `gorm:"size:32"`
}

func (barRow) TableName() string { return "bars" }

// SQLiteStore implements BarStore on a local SQLite file.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the bar database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open bar store: %w", err)
	}
	if err := db.AutoMigrate(&barRow{}); err != nil {
		return nil, fmt.Errorf("migrate bar store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, bars []adapters.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([]barRow, len(bars))
	for i, b := range bars {
		rows[i] = barRow{
			Symbol:     b.Symbol,
			Timeframe:  string(b.Timeframe),
			Timestamp:  b.Timestamp.UTC().Unix(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			VWAP:       b.VWAP,
			TradeCount: b.TradeCount,
			Source:     b.Source,
		}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "timestamp"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "vwap", "trade_count", "source"}),
	}).Create(&rows).Error
}

func (s *SQLiteStore) Query(ctx context.Context, symbol string, tf adapters.Timeframe, start, end time.Time) ([]adapters.Bar, error) {
	var rows []barRow
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp < ?",
			symbol, string(tf), start.UTC().Unix(), end.UTC().Unix()).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	bars := make([]adapters.Bar, len(rows))
	for i, r := range rows {
		bars[i] = adapters.Bar{
			Symbol:     r.Symbol,
			Timeframe:  adapters.Timeframe(r.Timeframe),
			Timestamp:  time.Unix(r.Timestamp, 0).UTC(),
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			Volume:     r.Volume,
			VWAP:       r.VWAP,
			TradeCount: r.TradeCount,
			Source:     r.Source,
		}
	}
	return bars, nil
}

func (s *SQLiteStore) Timestamps(ctx context.Context, symbol string, tf adapters.Timeframe, start, end time.Time) ([]time.Time, error) {
	var unix []int64
	err := s.db.WithContext(ctx).Model(&barRow{}).
		Where("symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp < ?",
			symbol, string(tf), start.UTC().Unix(), end.UTC().Unix()).
		Order("timestamp ASC").
		Pluck("timestamp", &unix).Error
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(unix))
	for i, u := range unix {
		out[i] = time.Unix(u, 0).UTC()
	}
	return out, nil
}
