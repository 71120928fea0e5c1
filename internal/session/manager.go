package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL is how long an idle session is kept.
const DefaultTTL = 30 * time.Minute

// ErrNotFound is returned for an unknown or expired session id.
var ErrNotFound = errors.New("session: not found")

type state struct {
	mu       sync.Mutex
	feedback Feedback
	lastSeen time.Time
}

// Manager owns one Feedback per session. Sessions never share state.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*state
	ttl      time.Duration
	disabled bool
	now      func() time.Time
	logger   *zap.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL sets the idle timeout. Zero or negative keeps DefaultTTL.
func WithTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithPersonalizationDisabled makes every session report empty feedback and drop new actions.
func WithPersonalizationDisabled() ManagerOption {
	return func(m *Manager) { m.disabled = true }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func withClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*state),
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session and returns its id.
func (m *Manager) Create() string {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = &state{feedback: NewFeedback(), lastSeen: m.now()}
	m.mu.Unlock()
	m.logger.Debug("session created", zap.String("session_id", id))
	return id
}

// Delete ends a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *Manager) get(id string) (*state, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Feedback returns a copy of the session's feedback and refreshes its idle timer.
func (m *Manager) Feedback(id string) (Feedback, error) {
	s, err := m.get(id)
	if err != nil {
		return Feedback{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.now().Sub(s.lastSeen) > m.ttl {
		return Feedback{}, ErrNotFound
	}
	s.lastSeen = m.now()
	if m.disabled {
		return NewFeedback(), nil
	}
	return s.feedback.Clone(), nil
}

// Apply records action on label for the session and returns the updated feedback.
func (m *Manager) Apply(id string, action Action, label string) (Feedback, error) {
	s, err := m.get(id)
	if err != nil {
		return Feedback{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.now().Sub(s.lastSeen) > m.ttl {
		return Feedback{}, ErrNotFound
	}
	s.lastSeen = m.now()
	if m.disabled {
		s.feedback.Reset()
		return NewFeedback(), nil
	}
	if err := s.feedback.Apply(action, label); err != nil {
		return Feedback{}, err
	}
	return s.feedback.Clone(), nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the TTL and returns how many were removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		s.mu.Lock()
		expired := now.Sub(s.lastSeen) > m.ttl
		s.mu.Unlock()
		if expired {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("expired sessions removed", zap.Int("count", removed))
	}
	return removed
}

// Run sweeps expired sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
