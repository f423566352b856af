// Package router turns a (region, asset type, data type) request into an
// ordered candidate list and walks it until one provider serves the call.
package router

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quantfeed/marketdata/internal/adapters"
)

// Strategy orders the candidate list.
type Strategy string

const (
	// StrategyPriority orders by the static priority tier from config.
	StrategyPriority Strategy = "priority"
	// StrategyCostOptimized puts the cheapest eligible provider first.
	StrategyCostOptimized Strategy = "cost_optimized"
	// StrategyRoundRobin rotates the starting offset per route so load
	// spreads across equivalent providers.
	StrategyRoundRobin Strategy = "round_robin"
)

// ParseStrategy validates a strategy name from config.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyPriority, StrategyCostOptimized, StrategyRoundRobin:
		return Strategy(s), nil
	case "":
		return StrategyPriority, nil
	}
	return "", fmt.Errorf("unknown selection strategy %q", s)
}

// Comparator orders two descriptors; lower wins. Cost normalization across
// providers billed in different units is a configuration concern, so the
// comparator is pluggable.
type Comparator func(a, b adapters.Descriptor) bool

// Router produces candidate lists from the static descriptor set. The list
// is recomputed per request and never cached: health and budget state shifts
// continuously, and eligibility is the failover manager's call anyway.
type Router struct {
	descriptors []adapters.Descriptor
	strategy    Strategy
	compare     Comparator

	mu      sync.Mutex
	offsets map[string]int // round-robin rotation per route key
}

// New creates a router over the configured providers.
func New(descriptors []adapters.Descriptor, strategy Strategy) *Router {
	r := &Router{
		descriptors: descriptors,
		strategy:    strategy,
		offsets:     make(map[string]int),
	}
	switch strategy {
	case StrategyCostOptimized:
		r.compare = byCost
	default:
		r.compare = byPriority
	}
	return r
}

// SetComparator overrides the ordering, e.g. for custom cost models.
func (r *Router) SetComparator(c Comparator) { r.compare = c }

// Candidates returns the ordered provider ids declaring support for the
// route. An empty list means no provider covers this request at all.
func (r *Router) Candidates(region adapters.Region, asset adapters.AssetType, data adapters.DataType) []string {
	matched := make([]adapters.Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		if d.Supports(region, asset, data) {
			matched = append(matched, d)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return r.compare(matched[i], matched[j]) })

	ids := make([]string, len(matched))
	for i, d := range matched {
		ids[i] = d.ID
	}

	if r.strategy == StrategyRoundRobin && len(ids) > 1 {
		key := string(region) + "/" + string(asset) + "/" + string(data)
		r.mu.Lock()
		off := r.offsets[key] % len(ids)
		r.offsets[key]++
		r.mu.Unlock()
		ids = append(ids[off:], ids[:off]...)
	}
	return ids
}

func byPriority(a, b adapters.Descriptor) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

func byCost(a, b adapters.Descriptor) bool {
	if c := a.CostPerCall.Cmp(b.CostPerCall); c != 0 {
		return c < 0
	}
	return byPriority(a, b)
}
