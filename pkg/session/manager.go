package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pigeonworks-llc/billfetch/pkg/browser"
)

// Flow is a source's login protocol. The manager is generic over how a
// session is established; the flow knows the origin, how to submit
// credentials, and what an authenticated page looks like.
type Flow interface {
	// OriginURL is the login origin; saved cookies are injected against it.
	OriginURL() string
	// Login drives the credential-submission sequence. Credentials come
	// from configuration supplied out of band; the manager never sees them.
	Login(ctx context.Context, auto browser.Automation) error
	// Verify reports whether the browser is in an authenticated state,
	// typically by checking the current URL or a DOM marker.
	Verify(ctx context.Context, auto browser.Automation) (bool, error)
}

// State tracks where a source is in the restore/login protocol. Exposed for
// logging and tests only.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateRestoring       State = "restoring"
	StateLoggingIn       State = "logging_in"
	StateAuthenticated   State = "authenticated"
)

// Manager decides per source whether a saved session can be reused and
// drives a fresh login when it cannot. It never retries a failed login;
// retry policy belongs to the next full run.
type Manager struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time

	state State
}

// NewManager creates a Manager over the given store. ttl <= 0 uses
// DefaultTTL.
func NewManager(store *Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		state: StateUnauthenticated,
	}
}

// State returns the manager's current protocol state.
func (m *Manager) State() State {
	return m.state
}

// EnsureSession leaves the browser authenticated against the source, reusing
// a saved session when possible:
//
//  1. A non-expired saved record is restored (cookies injected, origin
//     reopened) and verified. Success ends the protocol.
//  2. Otherwise the flow's login sequence runs, is verified, and the
//     resulting cookies are persisted with a fresh expiry.
//
// Any failure terminates with an error; the caller treats the source as
// failed for this run.
func (m *Manager) EnsureSession(ctx context.Context, source string, flow Flow, auto browser.Automation) error {
	m.state = StateUnauthenticated

	if record, ok := m.store.Read(source); ok {
		if record.Expired(m.now()) {
			slog.Debug("saved session expired", "source", source,
				"expired_at", time.UnixMilli(record.ExpiresAt))
		} else if m.restore(ctx, source, flow, auto, record) {
			m.state = StateAuthenticated
			return nil
		}
	}

	m.state = StateLoggingIn
	slog.Info("logging in", "source", source)

	if err := flow.Login(ctx, auto); err != nil {
		m.state = StateUnauthenticated
		return fmt.Errorf("login failed for %s: %w", source, err)
	}

	ok, err := flow.Verify(ctx, auto)
	if err != nil {
		m.state = StateUnauthenticated
		return fmt.Errorf("login verification failed for %s: %w", source, err)
	}
	if !ok {
		m.state = StateUnauthenticated
		return fmt.Errorf("login did not reach an authenticated state for %s (at %s)", source, auto.CurrentURL())
	}

	if err := m.persist(ctx, source, auto); err != nil {
		// The session is live even if persisting it failed; the next run
		// simply logs in again.
		slog.Warn("failed to persist session", "source", source, "error", err)
	}

	m.state = StateAuthenticated
	return nil
}

// restore attempts to re-establish a saved session and reports success.
// Restore failures are never fatal; the caller falls back to a fresh login.
func (m *Manager) restore(ctx context.Context, source string, flow Flow, auto browser.Automation, record *Record) bool {
	m.state = StateRestoring
	slog.Debug("restoring saved session", "source", source, "cookies", len(record.Data))

	if err := auto.SetCookies(ctx, flow.OriginURL(), record.Data); err != nil {
		slog.Warn("session restore failed to inject cookies", "source", source, "error", err)
		return false
	}
	if err := auto.Open(ctx, flow.OriginURL()); err != nil {
		slog.Warn("session restore failed to reopen origin", "source", source, "error", err)
		return false
	}

	ok, err := flow.Verify(ctx, auto)
	if err != nil {
		slog.Warn("session restore verification errored", "source", source, "error", err)
		return false
	}
	if !ok {
		slog.Info("saved session no longer valid", "source", source)
		return false
	}

	slog.Debug("session restored", "source", source)
	return true
}

func (m *Manager) persist(ctx context.Context, source string, auto browser.Automation) error {
	cookies, err := auto.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to capture cookies: %w", err)
	}

	now := m.now()
	record := &Record{
		SavedAt:   now.UnixMilli(),
		ExpiresAt: now.Add(m.ttl).UnixMilli(),
		Data:      cookies,
	}
	return m.store.Write(source, record)
}
