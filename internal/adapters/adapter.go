package adapters

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Region is the market region a provider serves.
type Region string

const (
	RegionUS   Region = "us"
	RegionEU   Region = "eu"
	RegionAsia Region = "asia"
)

// AssetType classifies the instrument being requested.
type AssetType string

const (
	AssetEquity AssetType = "equity"
	AssetETF    AssetType = "etf"
	AssetIndex  AssetType = "index"
)

// DataType identifies which capability a request exercises.
type DataType string

const (
	DataQuote        DataType = "quote"
	DataHistorical   DataType = "historical"
	DataFundamentals DataType = "fundamentals"
)

// Descriptor is the immutable per-provider metadata created from static
// configuration at process start. Runtime counters (rate, budget, health)
// live in the orchestration layer, never here.
type Descriptor struct {
	ID            string
	Regions       []Region
	AssetTypes    []AssetType
	DataTypes     []DataType
	RatePerMinute int
	RatePerDay    int
	CostPerCall   decimal.Decimal
	DailyBudget   decimal.Decimal // zero means uncapped
	MonthlyBudget decimal.Decimal // zero means uncapped
	Priority      int             // lower is preferred under the priority strategy
}

// Supports reports whether the provider declares the given route.
func (d Descriptor) Supports(region Region, asset AssetType, data DataType) bool {
	return containsRegion(d.Regions, region) &&
		containsAsset(d.AssetTypes, asset) &&
		containsData(d.DataTypes, data)
}

func containsRegion(rs []Region, r Region) bool {
	for _, v := range rs {
		if v == r {
			return true
		}
	}
	return false
}

func containsAsset(as []AssetType, a AssetType) bool {
	for _, v := range as {
		if v == a {
			return true
		}
	}
	return false
}

func containsData(ds []DataType, d DataType) bool {
	for _, v := range ds {
		if v == d {
			return true
		}
	}
	return false
}

// RawRecord is one untyped provider response row: field name to string value,
// exactly as the wire adapter decoded it. The normalizer's per-provider field
// mapping turns records into canonical types.
type RawRecord map[string]string

// Adapter is the capability contract every provider integration satisfies.
// Calls are side-effect-free apart from consuming real-world quota, which the
// orchestration layer tracks. Adapters never retry internally; retry and
// failover are orchestration decisions. Symbols arrive already translated to
// the provider's own convention.
type Adapter interface {
	Descriptor() Descriptor

	// GetQuote returns a single raw quote record or a ProviderError.
	GetQuote(ctx context.Context, symbol string) (RawRecord, error)

	// GetHistorical returns raw bar records in ascending timestamp order for
	// [start, end).
	GetHistorical(ctx context.Context, symbol string, tf Timeframe, start, end time.Time) ([]RawRecord, error)

	// GetFundamentals returns a raw fundamental snapshot, or a ProviderError
	// with class not_available when the provider lacks coverage.
	GetFundamentals(ctx context.Context, symbol string) (RawRecord, error)
}
