package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/novafeed/sessionkit-go/pkg/log"
	"github.com/novafeed/sessionkit-go/pkg/secrets"
	"github.com/novafeed/sessionkit-go/pkg/sesserr"
)

// Storage keys within the secret store.
const (
	keyAccess    = "auth.access"
	keyRefresh   = "auth.refresh"
	keyExpiresAt = "auth.expires_at"
)

// Session errors.
var (
	// ErrNoRefreshSecret means no refresh secret is stored; the caller
	// must re-authenticate.
	ErrNoRefreshSecret = errors.New("no refresh secret stored")
)

// refreshKey is the singleflight key; one per session means one in-flight
// refresh per process.
const refreshKey = "refresh"

// Session owns the access/refresh credential pair and coordinates refresh
// so that concurrent callers share one in-flight network call.
//
// The pair is held in memory behind a mutex and mirrored into a
// secrets.Store so it survives restarts. The only mutation paths are
// SetCredentials, the internal refresh, and Clear; the pair is never
// partially updated.
type Session struct {
	store  secrets.Store
	api    API
	logger *slog.Logger
	events log.Logger

	// now is replaceable for tests.
	now func() time.Time

	mu   sync.RWMutex
	pair Pair

	// flight coordinates the single in-flight refresh. A failed flight is
	// retired as soon as Do returns, so the next caller starts a fresh
	// attempt instead of replaying a stale failure.
	flight singleflight.Group
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithEventLogger sets the session event logger.
func WithEventLogger(events log.Logger) SessionOption {
	return func(s *Session) { s.events = events }
}

// withClock replaces the time source. Test hook.
func withClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session backed by store and api. Credentials
// persisted by a previous process are loaded eagerly; a corrupt or empty
// store just means the session starts unauthenticated.
func NewSession(store secrets.Store, api API, opts ...SessionOption) *Session {
	s := &Session{
		store:  store,
		api:    api,
		logger: slog.Default(),
		events: log.NoopLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pair = s.loadPersisted()
	return s
}

// AccessSecret returns a currently-valid access secret, refreshing if the
// cached one is missing or inside the safety margin. Concurrent callers
// needing a refresh share a single network call and receive the same
// result.
//
// Returns ErrNoRefreshSecret if re-authentication is required. A refresh
// rejected by the backend (authorization) clears all stored credentials as
// a side effect; transient failures leave state untouched so the next
// caller can try again.
func (s *Session) AccessSecret(ctx context.Context) (string, error) {
	s.mu.RLock()
	pair := s.pair
	s.mu.RUnlock()

	if pair.Usable(s.now()) {
		return pair.Access, nil
	}

	v, err, shared := s.flight.Do(refreshKey, func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		s.logger.Debug("refresh result shared with concurrent caller")
	}
	return v.(string), nil
}

// refresh performs one refresh network call. Runs inside the singleflight
// handle; at most one instance executes at a time.
func (s *Session) refresh(ctx context.Context) (string, error) {
	// A caller that queued behind a successful refresh doesn't need
	// another network call.
	s.mu.RLock()
	pair := s.pair
	s.mu.RUnlock()
	if pair.Usable(s.now()) {
		return pair.Access, nil
	}

	if pair.Refresh == "" {
		return "", ErrNoRefreshSecret
	}

	s.logger.Debug("refreshing access secret")
	grant, err := s.api.Refresh(ctx, pair.Refresh)
	if err != nil {
		if sesserr.KindOf(err) == sesserr.KindAuthorization {
			// The refresh secret is burned; retrying it cannot succeed.
			s.logger.Warn("refresh secret rejected, clearing credentials", "error", err)
			s.Clear()
			return "", fmt.Errorf("refresh rejected: %w", err)
		}
		s.logger.Debug("refresh failed", "error", err)
		return "", fmt.Errorf("refresh failed: %w", err)
	}

	refreshSecret := grant.RefreshSecret
	if refreshSecret == "" {
		refreshSecret = pair.Refresh
	}
	if err := s.SetCredentials(grant.AccessSecret, refreshSecret, grant.ExpiresIn); err != nil {
		return "", fmt.Errorf("persisting refreshed credentials: %w", err)
	}

	s.logStateChange("needs-refresh", "valid", "refresh succeeded")
	return grant.AccessSecret, nil
}

// SetCredentials unconditionally installs a new pair and expiry. Used
// after login, registration, and refresh.
func (s *Session) SetCredentials(access, refresh string, expiresIn time.Duration) error {
	pair := Pair{
		Access:    access,
		Refresh:   refresh,
		ExpiresAt: s.now().Add(expiresIn),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(pair); err != nil {
		return err
	}
	s.pair = pair
	return nil
}

// Clear erases in-memory and durable credential state. Idempotent.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pair.Empty() {
		return
	}
	s.pair = Pair{}

	// Durable deletes are best-effort; an unauthenticated session must
	// not be blocked by storage trouble.
	for _, key := range []string{keyAccess, keyRefresh, keyExpiresAt} {
		if err := s.store.Delete(key); err != nil {
			s.logger.Warn("failed to delete stored secret", "key", key, "error", err)
		}
	}

	s.logStateChange("valid", "no-credentials", "cleared")
}

// Logout notifies the backend, then clears local state. The network call
// is best-effort: logout always succeeds locally even if it fails.
func (s *Session) Logout(ctx context.Context) {
	s.mu.RLock()
	access := s.pair.Access
	s.mu.RUnlock()

	if access != "" {
		if err := s.api.Logout(ctx, access); err != nil {
			s.logger.Warn("backend logout failed, clearing locally anyway", "error", err)
		}
	}
	s.Clear()
}

// Authenticated reports whether any credentials are held.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.pair.Empty()
}

// persist mirrors the pair into the secret store. Callers must hold s.mu.
func (s *Session) persist(pair Pair) error {
	if err := s.store.Store(keyAccess, pair.Access); err != nil {
		return err
	}
	if err := s.store.Store(keyRefresh, pair.Refresh); err != nil {
		return err
	}
	return s.store.Store(keyExpiresAt, pair.ExpiresAt.Format(time.RFC3339))
}

// loadPersisted restores the pair from the secret store.
func (s *Session) loadPersisted() Pair {
	access, err := s.store.Retrieve(keyAccess)
	if err != nil {
		return Pair{}
	}
	refresh, err := s.store.Retrieve(keyRefresh)
	if err != nil {
		return Pair{}
	}
	expiresRaw, err := s.store.Retrieve(keyExpiresAt)
	if err != nil {
		return Pair{}
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresRaw)
	if err != nil {
		s.logger.Warn("stored expiry unparseable, discarding persisted credentials", "error", err)
		return Pair{}
	}
	return Pair{Access: access, Refresh: refresh, ExpiresAt: expiresAt}
}

// logStateChange emits a credential lifecycle event.
func (s *Session) logStateChange(oldState, newState, reason string) {
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionNone,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityCredentials,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
