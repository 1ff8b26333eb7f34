package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/novafeed/sessionkit-go/pkg/log"
	"github.com/novafeed/sessionkit-go/pkg/reachability"
	"github.com/novafeed/sessionkit-go/pkg/sesserr"
)

// Retry errors.
var (
	// ErrNoConnection is returned when no network path is available and
	// the operation was not configured to run offline.
	ErrNoConnection = errors.New("no network connection")

	errNoAttempts = errors.New("retry: MaxAttempts must be > 0")
)

// Config controls the retry behavior of Do.
type Config struct {
	// MaxAttempts is the total attempt budget. Required, must be > 0.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt
	// (default: 1s).
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts (default: 30s).
	MaxDelay time.Duration

	// Unit bounds the additive jitter (default: 1s).
	Unit time.Duration

	// AttemptTimeout bounds each individual attempt. Zero means the
	// attempt inherits the caller's context deadline only.
	AttemptTimeout time.Duration

	// AllowOffline skips the reachability gate. Use for operations that
	// can be served from a local fallback.
	AllowOffline bool
}

// Executor retries fallible operations with bounded exponential backoff,
// consulting a reachability monitor before each attempt.
type Executor struct {
	monitor *reachability.Monitor
	logger  *slog.Logger
	events  log.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithEventLogger sets the session event logger.
func WithEventLogger(events log.Logger) Option {
	return func(e *Executor) { e.events = events }
}

// NewExecutor creates an executor gated on monitor. A nil monitor disables
// the reachability gate entirely.
func NewExecutor(monitor *reachability.Monitor, opts ...Option) *Executor {
	e := &Executor{
		monitor: monitor,
		logger:  slog.Default(),
		events:  log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do invokes op up to cfg.MaxAttempts times with exponential backoff and
// additive jitter. Before each attempt (including the first) the
// reachability monitor is consulted; offline fails fast with a
// connectivity-classified ErrNoConnection unless cfg.AllowOffline is set.
//
// Terminal error kinds (authorization, malformed) are returned immediately
// without consuming further attempts. After the budget is exhausted the
// last error is returned wrapped as sesserr.Exhausted.
//
// Every invocation is tagged with a short correlation token propagated
// into log output, so one logical operation's retry sequence can be traced
// end to end. Cancelling ctx stops further attempts.
func Do[T any](ctx context.Context, e *Executor, cfg Config, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if cfg.MaxAttempts <= 0 {
		return zero, errNoAttempts
	}

	backoff := NewBackoffWithConfig(BackoffConfig{
		Initial: cfg.InitialDelay,
		Max:     cfg.MaxDelay,
		Unit:    cfg.Unit,
	})
	correlationID := shortToken()
	logger := e.logger.With("correlation_id", correlationID)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if !cfg.AllowOffline && e.monitor != nil && !e.monitor.Current().Connected {
			logger.Debug("attempt skipped: offline", "attempt", attempt)
			e.logAttempt(correlationID, attempt, 0, "offline")
			return zero, sesserr.Connectivity(ErrNoConnection)
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if cfg.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.AttemptTimeout)
		}
		result, err := op(attemptCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			logger.Debug("attempt succeeded", "attempt", attempt)
			e.logAttempt(correlationID, attempt, 0, "success")
			return result, nil
		}
		lastErr = err

		kind := sesserr.KindOf(err)
		if !sesserr.Retryable(err) {
			logger.Debug("terminal failure", "attempt", attempt, "kind", kind.String(), "error", err)
			e.logAttempt(correlationID, attempt, 0, kind.String())
			return zero, err
		}

		// Don't sleep after the last attempt.
		if attempt == cfg.MaxAttempts {
			e.logAttempt(correlationID, attempt, 0, kind.String())
			break
		}

		delay := backoff.Next()
		logger.Debug("attempt failed, backing off",
			"attempt", attempt, "kind", kind.String(), "delay", delay, "error", err)
		e.logAttempt(correlationID, attempt, delay, kind.String())

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	logger.Debug("retry budget exhausted", "attempts", cfg.MaxAttempts, "error", lastErr)
	return zero, sesserr.Exhausted(lastErr)
}

// logAttempt emits a retry event to the session event logger.
func (e *Executor) logAttempt(correlationID string, attempt int, delay time.Duration, outcome string) {
	e.events.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionNone,
		Layer:     log.LayerService,
		Category:  log.CategoryRetry,
		Retry: &log.RetryEvent{
			CorrelationID: correlationID,
			Attempt:       attempt,
			Delay:         delay,
			Outcome:       outcome,
		},
	})
}

// shortToken returns an 8-character correlation token.
func shortToken() string {
	return uuid.NewString()[:8]
}
