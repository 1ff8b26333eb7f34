package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff defaults.
const (
	// DefaultInitialDelay is the delay before the second attempt.
	DefaultInitialDelay = 1 * time.Second

	// DefaultMaxDelay caps the delay between attempts.
	DefaultMaxDelay = 30 * time.Second

	// DefaultUnit bounds the additive jitter: each advance adds
	// random(0, 1 unit) on top of the doubled delay.
	DefaultUnit = 1 * time.Second
)

// Backoff produces the delay sequence for retried operations:
//
//	delay(1) = initial
//	delay(n) = min(max, delay(n-1)*2 + random(0, unit))
//
// Doubling with a small additive jitter keeps concurrent callers retrying
// the same downstream dependency from synchronizing into repeated
// simultaneous bursts, while the cap keeps the worst-case wait bounded.
type Backoff struct {
	mu sync.Mutex

	// Next delay to hand out
	next time.Duration

	// Configuration
	initial time.Duration
	max     time.Duration
	unit    time.Duration

	// Attempt counter
	attempts int

	// Random source for jitter
	rng *rand.Rand
}

// BackoffConfig allows customizing backoff parameters.
type BackoffConfig struct {
	Initial time.Duration
	Max     time.Duration
	Unit    time.Duration
}

// NewBackoff creates a backoff calculator with default settings.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff calculator with custom settings.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInitialDelay
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMaxDelay
	}
	if cfg.Unit <= 0 {
		cfg.Unit = DefaultUnit
	}
	if cfg.Initial > cfg.Max {
		cfg.Initial = cfg.Max
	}

	return &Backoff{
		next:    cfg.Initial,
		initial: cfg.Initial,
		max:     cfg.Max,
		unit:    cfg.Unit,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the next delay and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.next
	b.attempts++

	advanced := b.next*2 + time.Duration(b.rng.Int63n(int64(b.unit)))
	if advanced > b.max {
		advanced = b.max
	}
	b.next = advanced

	return delay
}

// Peek returns the next delay without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Reset resets the backoff to its initial delay.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
