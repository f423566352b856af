// Package health runs one circuit breaker per provider. Every adapter call
// result feeds the state machine exactly once; eligibility is checked on the
// hot path without holding any lock across network calls.
package health

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantfeed/marketdata/internal/observ"
)

// State is the circuit position for a provider.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config controls trip and recovery behavior.
type Config struct {
	ConsecutiveFailures int           // trip after this many failures in a row
	ErrorRateThreshold  float64       // or when error rate over the window exceeds this
	ErrorRateMinCalls   int           // window size; rate is ignored below this many calls
	Cooldown            time.Duration // open -> half-open delay
	MaxCooldown         time.Duration // backoff ceiling for repeated trial failures
}

// DefaultConfig mirrors the free-tier tolerances we run with in production.
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 5,
		ErrorRateThreshold:  0.5,
		ErrorRateMinCalls:   10,
		Cooldown:            30 * time.Second,
		MaxCooldown:         10 * time.Minute,
	}
}

// Monitor owns the breakers for all registered providers.
type Monitor struct {
	mu       sync.RWMutex
	breakers map[string]*breaker
	cfg      Config
	now      func() time.Time
}

type breaker struct {
	mu sync.Mutex

	state               State
	consecutiveFailures int
	lastFailure         time.Time
	openUntil           time.Time
	cooldown            time.Duration

	// ring of recent call outcomes for the error-rate trip condition
	recent []bool
	next   int
	filled bool

	// single trial permit while half-open; CAS so concurrent requests
	// don't pile onto the trial
	permit atomic.Bool

	disabled       bool
	disabledReason string
}

// New creates a monitor with the given config.
func New(cfg Config) *Monitor {
	if cfg.ConsecutiveFailures <= 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxCooldown < cfg.Cooldown {
		cfg.MaxCooldown = 10 * cfg.Cooldown
	}
	return &Monitor{
		breakers: make(map[string]*breaker),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Register adds a provider in the closed state.
func (m *Monitor) Register(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[provider] = &breaker{
		state:    StateClosed,
		cooldown: m.cfg.Cooldown,
		recent:   make([]bool, max(m.cfg.ErrorRateMinCalls, 1)),
	}
}

// Eligible reports whether the provider may be called right now. In the
// half-open state the single trial permit is consumed atomically, so a true
// return while half-open commits the caller to dispatching the trial call
// and reporting its result.
func (m *Monitor) Eligible(provider string) bool {
	b := m.breaker(provider)
	if b == nil {
		return false
	}

	now := m.now()
	b.mu.Lock()
	if b.disabled {
		b.mu.Unlock()
		return false
	}
	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return true
	case StateOpen:
		if now.Before(b.openUntil) {
			b.mu.Unlock()
			return false
		}
		b.state = StateHalfOpen
		b.permit.Store(true)
		b.mu.Unlock()
		observ.Log("circuit_half_open", map[string]any{"provider": provider})
	case StateHalfOpen:
		b.mu.Unlock()
	}
	// Half-open: exactly one caller wins the trial permit.
	return b.permit.CompareAndSwap(true, false)
}

// ReportSuccess feeds one successful call result.
func (m *Monitor) ReportSuccess(provider string, latency time.Duration) {
	b := m.breaker(provider)
	if b == nil {
		return
	}

	observ.RecordDuration("provider_latency", latency, map[string]string{"provider": provider})

	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(true)
	b.consecutiveFailures = 0
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.cooldown = m.cfg.Cooldown
		observ.Log("circuit_closed", map[string]any{
			"provider": provider,
			"reason":   "trial_success",
		})
	}
}

// ReportFailure feeds one failed call result.
func (m *Monitor) ReportFailure(provider string, latency time.Duration) {
	b := m.breaker(provider)
	if b == nil {
		return
	}

	observ.RecordDuration("provider_latency", latency, map[string]string{"provider": provider})
	observ.IncCounter("provider_errors_total", map[string]string{"provider": provider})

	now := m.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(false)
	b.consecutiveFailures++
	b.lastFailure = now

	switch b.state {
	case StateHalfOpen:
		// Trial failed: reopen with backoff so a flapping provider gets
		// progressively longer cooldowns.
		b.cooldown *= 2
		if b.cooldown > m.cfg.MaxCooldown {
			b.cooldown = m.cfg.MaxCooldown
		}
		b.open(now, provider, "trial_failure")
	case StateClosed:
		if b.consecutiveFailures >= m.cfg.ConsecutiveFailures {
			b.open(now, provider, "consecutive_failures")
			return
		}
		if m.cfg.ErrorRateThreshold > 0 && b.filled {
			if b.errorRate() > m.cfg.ErrorRateThreshold {
				b.open(now, provider, "error_rate")
			}
		}
	}
}

// Disable permanently excludes a provider, used for invalid credentials.
// Only a config change (process restart) re-enables it.
func (m *Monitor) Disable(provider, reason string) {
	b := m.breaker(provider)
	if b == nil {
		return
	}
	b.mu.Lock()
	already := b.disabled
	b.disabled = true
	b.disabledReason = reason
	b.mu.Unlock()
	if !already {
		observ.Log("provider_disabled", map[string]any{
			"provider": provider,
			"reason":   reason,
			"fatal":    true,
		})
	}
}

// Snapshot is a point-in-time view of one breaker for diagnostics.
type Snapshot struct {
	Provider            string    `json:"provider"`
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	OpenUntil           time.Time `json:"open_until,omitempty"`
	Disabled            bool      `json:"disabled,omitempty"`
	DisabledReason      string    `json:"disabled_reason,omitempty"`
}

// SnapshotOf returns the current breaker view for a provider.
func (m *Monitor) SnapshotOf(provider string) Snapshot {
	b := m.breaker(provider)
	if b == nil {
		return Snapshot{Provider: provider}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Provider:            provider,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailure:         b.lastFailure,
		OpenUntil:           b.openUntil,
		Disabled:            b.disabled,
		DisabledReason:      b.disabledReason,
	}
}

func (m *Monitor) breaker(provider string) *breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[provider]
}

// open transitions to OPEN. Caller holds b.mu.
func (b *breaker) open(now time.Time, provider, reason string) {
	b.state = StateOpen
	b.openUntil = now.Add(b.cooldown)
	b.permit.Store(false)
	observ.Log("circuit_opened", map[string]any{
		"provider":   provider,
		"reason":     reason,
		"failures":   b.consecutiveFailures,
		"open_until": b.openUntil.UTC().Format(time.RFC3339),
	})
	observ.IncCounter("circuit_opened_total", map[string]string{"provider": provider, "reason": reason})
}

// record pushes one outcome into the ring. Caller holds b.mu.
func (b *breaker) record(ok bool) {
	if len(b.recent) == 0 {
		return
	}
	b.recent[b.next] = ok
	b.next++
	if b.next == len(b.recent) {
		b.next = 0
		b.filled = true
	}
}

// errorRate over the filled ring. Caller holds b.mu.
func (b *breaker) errorRate() float64 {
	var failures int
	for _, ok := range b.recent {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(b.recent))
}

// SetNow overrides the clock, for tests.
func (m *Monitor) SetNow(now func() time.Time) { m.now = now }
