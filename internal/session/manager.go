package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jyannick/OrbitPlot/internal/metrics"
)

var (
	// ErrNotFound is returned by Get for unknown or closed session ids.
	ErrNotFound = errors.New("session not found")
	// ErrTooManySessions is returned by Create when the session cap is reached.
	ErrTooManySessions = errors.New("too many sessions")
)

// DefaultMaxSessions caps concurrently open sessions when no limit is given.
const DefaultMaxSessions = 256

// Manager creates and tracks sessions. Safe for concurrent use.
type Manager struct {
	computer Computer
	max      int
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a manager whose sessions compute with c.
func NewManager(c Computer, maxSessions int, logger *slog.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		computer: c,
		max:      maxSessions,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session.
func (m *Manager) Create() (*Session, error) {
	id, err := newID()
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) >= m.max {
		return nil, ErrTooManySessions
	}
	s := newSession(id, m.computer, m.logger)
	m.sessions[id] = s
	metrics.IncSessionsActive()
	m.logger.Debug("session opened", "session", id, "active", len(m.sessions))
	return s, nil
}

// Get returns the open session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close closes and forgets the session. Unknown ids are ignored.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		s.Close()
		metrics.DecSessionsActive()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every session, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}

func newID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
