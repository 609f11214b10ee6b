package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultRefreshLeeway is how close to expiry the access token may get
// before Manager refreshes it proactively. Access tokens live ~10
// minutes, so one minute of slack avoids racing the deadline.
const DefaultRefreshLeeway = time.Minute

// Manager hands out a current session and rotates it through the
// refresh flow. It is safe for concurrent use: when several requests
// hit a 401 at once, only one refresh call goes to the backend.
type Manager struct {
	flow    *Flow
	storage *Storage
	profile string
	leeway  time.Duration

	mu      sync.Mutex
	current *Session
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithRefreshLeeway overrides the proactive refresh window.
func WithRefreshLeeway(leeway time.Duration) ManagerOption {
	return func(m *Manager) { m.leeway = leeway }
}

// NewManager creates a manager for the named profile. The stored
// session, if any, is loaded lazily on first use.
func NewManager(flow *Flow, storage *Storage, profile string, opts ...ManagerOption) *Manager {
	m := &Manager{
		flow:    flow,
		storage: storage,
		profile: profile,
		leeway:  DefaultRefreshLeeway,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns a session whose access token is not about to
// expire, refreshing first when it is.
func (m *Manager) Session(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return nil, err
	}
	if m.current.Expired(m.leeway) {
		if err := m.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	return m.current, nil
}

// Refresh forces a rotation regardless of the access token's expiry.
// Used by the transport after a 401. The stale token identifies which
// rotation the caller saw, so concurrent callers that lost the race
// get the already-rotated session without a second backend call.
func (m *Manager) Refresh(ctx context.Context, staleAccessToken string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return nil, err
	}
	if staleAccessToken != "" && m.current.AccessToken != staleAccessToken {
		return m.current, nil
	}
	if err := m.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return m.current, nil
}

// Set installs a freshly issued session (from login) and persists it.
func (m *Manager) Set(sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = sess
	return m.storage.Save(m.profile, sess)
}

// Clear drops the in-memory session and removes the stored one.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	return m.storage.Delete(m.profile)
}

func (m *Manager) loadLocked() error {
	if m.current != nil {
		return nil
	}
	sess, err := m.storage.Load(m.profile)
	if err != nil {
		return err
	}
	m.current = sess
	return nil
}

func (m *Manager) refreshLocked(ctx context.Context) error {
	rotated, err := m.flow.Refresh(ctx, m.current.RefreshToken, m.current.SessionID)
	if err != nil {
		return err
	}
	m.current = rotated
	if err := m.storage.Save(m.profile, rotated); err != nil {
		return fmt.Errorf("failed to persist rotated session: %w", err)
	}
	return nil
}
