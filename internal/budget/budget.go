// Package budget keeps the per-provider cost ledger. Budget is independent
// of raw rate: several free tiers have a hard monthly cap well below what
// their rate limit would allow. Amounts are decimal USD so repeated small
// reservations never drift.
package budget

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/marketdata/internal/observ"
)

// Tracker accounts call cost against daily and monthly ceilings per provider.
type Tracker struct {
	mu      sync.RWMutex
	ledgers map[string]*ledger
	now     func() time.Time
}

type ledger struct {
	mu sync.Mutex

	costPerCall decimal.Decimal
	dailyCap    decimal.Decimal // zero means uncapped
	monthlyCap  decimal.Decimal // zero means uncapped

	daySpent   decimal.Decimal
	monthSpent decimal.Decimal
	dayStart   time.Time
	monthStart time.Time

	exhaustedLogged bool
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		ledgers: make(map[string]*ledger),
		now:     time.Now,
	}
}

// Register adds a provider's cost model and ceilings.
func (t *Tracker) Register(provider string, costPerCall, dailyCap, monthlyCap decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.ledgers[provider] = &ledger{
		costPerCall: costPerCall,
		dailyCap:    dailyCap,
		monthlyCap:  monthlyCap,
		dayStart:    dayWindow(now),
		monthStart:  monthWindow(now),
	}
}

// TryReserve charges one call's cost if both ceilings allow it. The
// reservation is never re-credited: once the adapter call is dispatched the
// provider-side quota is gone whether the call succeeds or not. A skip
// before dispatch is undone with Refund.
func (t *Tracker) TryReserve(provider string) bool {
	lg := t.ledger(provider)
	if lg == nil {
		return false
	}

	now := t.now()
	lg.mu.Lock()
	defer lg.mu.Unlock()

	lg.roll(now)

	nextDay := lg.daySpent.Add(lg.costPerCall)
	nextMonth := lg.monthSpent.Add(lg.costPerCall)
	if exceeded(nextDay, lg.dailyCap) || exceeded(nextMonth, lg.monthlyCap) {
		if !lg.exhaustedLogged {
			lg.exhaustedLogged = true
			observ.Log("budget_exhausted", map[string]any{
				"provider":    provider,
				"day_spent":   lg.daySpent.String(),
				"month_spent": lg.monthSpent.String(),
			})
			observ.IncCounter("budget_exhausted_total", map[string]string{"provider": provider})
		}
		return false
	}

	lg.daySpent = nextDay
	lg.monthSpent = nextMonth
	return true
}

// Refund returns one call's cost. Only valid when the reserved call was
// never dispatched to the provider.
func (t *Tracker) Refund(provider string) {
	lg := t.ledger(provider)
	if lg == nil {
		return
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()
	lg.daySpent = lg.daySpent.Sub(lg.costPerCall)
	lg.monthSpent = lg.monthSpent.Sub(lg.costPerCall)
	if lg.daySpent.IsNegative() {
		lg.daySpent = decimal.Zero
	}
	if lg.monthSpent.IsNegative() {
		lg.monthSpent = decimal.Zero
	}
}

// Exhausted reports whether the next call would breach a ceiling. Unlike a
// rate-window rejection this persists until the day or month rolls over.
func (t *Tracker) Exhausted(provider string) bool {
	lg := t.ledger(provider)
	if lg == nil {
		return true
	}

	now := t.now()
	lg.mu.Lock()
	defer lg.mu.Unlock()

	lg.roll(now)
	return exceeded(lg.daySpent.Add(lg.costPerCall), lg.dailyCap) ||
		exceeded(lg.monthSpent.Add(lg.costPerCall), lg.monthlyCap)
}

// Remaining reports budget left in each window. Uncapped windows report a
// negative amount.
func (t *Tracker) Remaining(provider string) (day, month decimal.Decimal) {
	lg := t.ledger(provider)
	if lg == nil {
		return decimal.Zero, decimal.Zero
	}

	now := t.now()
	lg.mu.Lock()
	defer lg.mu.Unlock()

	lg.roll(now)

	day = decimal.NewFromInt(-1)
	if lg.dailyCap.IsPositive() {
		day = lg.dailyCap.Sub(lg.daySpent)
	}
	month = decimal.NewFromInt(-1)
	if lg.monthlyCap.IsPositive() {
		month = lg.monthlyCap.Sub(lg.monthSpent)
	}
	return day, month
}

func (t *Tracker) ledger(provider string) *ledger {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ledgers[provider]
}

// roll resets windows at UTC boundaries. Caller holds lg.mu.
func (lg *ledger) roll(now time.Time) {
	if day := dayWindow(now); day.After(lg.dayStart) {
		lg.dayStart = day
		lg.daySpent = decimal.Zero
		lg.exhaustedLogged = false
	}
	if month := monthWindow(now); month.After(lg.monthStart) {
		lg.monthStart = month
		lg.monthSpent = decimal.Zero
		lg.exhaustedLogged = false
	}
}

func exceeded(spent, cap decimal.Decimal) bool {
	return cap.IsPositive() && spent.GreaterThan(cap)
}

func dayWindow(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthWindow(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SetNow overrides the clock, for tests.
func (t *Tracker) SetNow(now func() time.Time) { t.now = now }
