// Package ratelimit gates per-provider call rates with two tiers: a
// token-bucket minute tier and a fixed UTC-day counter. Admission is
// non-blocking on purpose; under failover, blocking on one exhausted
// provider would stall the whole cascade.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfeed/marketdata/internal/observ"
)

// Limiter tracks call-rate windows for every registered provider.
type Limiter struct {
	mu      sync.RWMutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	mu sync.Mutex

	minute       *rate.Limiter
	perMinute    int
	penaltyUntil time.Time // set when the provider itself reports throttling

	perDay   int
	dayCount int
	dayStart time.Time // UTC midnight of the current day window
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Register adds a provider's rate windows. Zero or negative limits mean
// the tier is uncapped.
func (l *Limiter) Register(provider string, perMinute, perDay int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := &window{perMinute: perMinute, perDay: perDay}
	if perMinute > 0 {
		w.minute = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	}
	w.dayStart = midnightUTC(l.now())
	l.windows[provider] = w
}

// TryAcquire consumes one call slot if the provider is under both windows.
// It never blocks; a false return means the caller should move to the next
// candidate.
func (l *Limiter) TryAcquire(provider string) bool {
	w := l.window(provider)
	if w == nil {
		return false
	}

	now := l.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rollDay(now)

	if now.Before(w.penaltyUntil) {
		return false
	}
	if w.perDay > 0 && w.dayCount >= w.perDay {
		return false
	}
	if w.minute != nil && !w.minute.AllowN(now, 1) {
		return false
	}
	w.dayCount++
	return true
}

// Penalize closes the provider's minute window until the next UTC minute
// boundary. Called when the provider itself reports throttling, which means
// the local window ran ahead of the provider's real one.
func (l *Limiter) Penalize(provider string) {
	w := l.window(provider)
	if w == nil {
		return
	}

	now := l.now()
	until := now.Truncate(time.Minute).Add(time.Minute)

	w.mu.Lock()
	w.penaltyUntil = until
	w.mu.Unlock()

	observ.Log("rate_window_penalized", map[string]any{
		"provider": provider,
		"until":    until.UTC().Format(time.RFC3339),
	})
}

// Remaining reports how many calls are left in each tier. Uncapped tiers
// report -1.
func (l *Limiter) Remaining(provider string) (minute, day int) {
	w := l.window(provider)
	if w == nil {
		return 0, 0
	}

	now := l.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rollDay(now)

	minute = -1
	if w.minute != nil {
		if now.Before(w.penaltyUntil) {
			minute = 0
		} else {
			minute = int(w.minute.TokensAt(now))
			if minute < 0 {
				minute = 0
			}
		}
	}
	day = -1
	if w.perDay > 0 {
		day = w.perDay - w.dayCount
		if day < 0 {
			day = 0
		}
	}
	return minute, day
}

func (l *Limiter) window(provider string) *window {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.windows[provider]
}

// rollDay resets the day counter at the UTC boundary. Caller holds w.mu.
func (w *window) rollDay(now time.Time) {
	if day := midnightUTC(now); day.After(w.dayStart) {
		w.dayStart = day
		w.dayCount = 0
	}
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SetNow overrides the clock, for tests.
func (l *Limiter) SetNow(now func() time.Time) { l.now = now }
