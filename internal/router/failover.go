package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quantfeed/marketdata/internal/adapters"
	"github.com/quantfeed/marketdata/internal/budget"
	"github.com/quantfeed/marketdata/internal/health"
	"github.com/quantfeed/marketdata/internal/observ"
	"github.com/quantfeed/marketdata/internal/ratelimit"
)

// Attempt records what happened to one candidate during a cascade.
type Attempt struct {
	Provider string `json:"provider"`
	Skipped  bool   `json:"skipped"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// CascadeError is returned when every candidate was skipped or failed. It
// enumerates each provider's outcome so "all rate-limited" is
// distinguishable from "all auth-broken" or "nobody covers this symbol".
type CascadeError struct {
	Symbol   string
	DataType adapters.DataType
	Attempts []Attempt
}

func (e *CascadeError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Provider + ": " + a.Reason
	}
	if len(parts) == 0 {
		return fmt.Sprintf("no provider supports %s/%s", e.Symbol, e.DataType)
	}
	return fmt.Sprintf("all providers exhausted for %s/%s [%s]", e.Symbol, e.DataType, strings.Join(parts, "; "))
}

// Skip reasons recorded on attempts.
const (
	SkipRateLimited     = "rate_limited"
	SkipBudgetExhausted = "budget_exhausted"
	SkipCircuitOpen     = "circuit_open"
)

// Failover walks candidate lists, gating each candidate on rate, budget and
// health before dispatching, and feeding every result back into the health
// model. One pass per logical request; a provider is never retried within
// the same cascade.
type Failover struct {
	adapters map[string]adapters.Adapter
	rate     *ratelimit.Limiter
	budget   *budget.Tracker
	health   *health.Monitor
	now      func() time.Time
}

// NewFailover wires the cascade against the shared runtime state.
func NewFailover(set map[string]adapters.Adapter, rl *ratelimit.Limiter, bt *budget.Tracker, hm *health.Monitor) *Failover {
	return &Failover{adapters: set, rate: rl, budget: bt, health: hm, now: time.Now}
}

// Execute tries each candidate in order and invokes call on the first
// eligible one. call captures its own result; Execute returns the id of the
// provider that served the request. On total exhaustion the returned error
// is a *CascadeError.
func (f *Failover) Execute(ctx context.Context, symbol string, data adapters.DataType, candidates []string, call func(adapters.Adapter) error) (string, error) {
	attempts := make([]Attempt, 0, len(candidates))

	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		a, ok := f.adapters[id]
		if !ok {
			attempts = append(attempts, Attempt{Provider: id, Skipped: true, Reason: "not_registered"})
			continue
		}

		if !f.rate.TryAcquire(id) {
			attempts = append(attempts, Attempt{Provider: id, Skipped: true, Reason: SkipRateLimited})
			continue
		}
		if !f.budget.TryReserve(id) {
			attempts = append(attempts, Attempt{Provider: id, Skipped: true, Reason: SkipBudgetExhausted})
			continue
		}
		if !f.health.Eligible(id) {
			// No call will be dispatched, so the reservation comes back.
			f.budget.Refund(id)
			attempts = append(attempts, Attempt{Provider: id, Skipped: true, Reason: SkipCircuitOpen})
			continue
		}

		observ.IncCounter("provider_requests_total", map[string]string{"provider": id})
		start := f.now()
		err := call(a)
		latency := f.now().Sub(start)

		if err == nil {
			f.health.ReportSuccess(id, latency)
			return id, nil
		}

		f.health.ReportFailure(id, latency)
		class := adapters.ClassOf(err)
		switch class {
		case adapters.ErrRateLimit:
			// The provider's real window is tighter than ours; close the
			// local window until the next boundary.
			f.rate.Penalize(id)
		case adapters.ErrAuth:
			f.health.Disable(id, err.Error())
		}

		observ.Log("provider_call_failed", map[string]any{
			"provider": id,
			"symbol":   symbol,
			"data":     string(data),
			"class":    string(class),
			"error":    err.Error(),
		})
		attempts = append(attempts, Attempt{Provider: id, Reason: string(class), Err: err})
	}

	observ.IncCounter("failover_cascade_exhausted_total", map[string]string{"data": string(data)})
	return "", &CascadeError{Symbol: symbol, DataType: data, Attempts: attempts}
}
