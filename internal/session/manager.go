package session

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-twin/internal/gateway"
	"github.com/nerrad567/gray-twin/internal/notify"
	"github.com/nerrad567/gray-twin/internal/snapshot"
)

// Logger defines the logging interface used by the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager opens sessions and tracks the open ones.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	gw     *gateway.Gateway
	snaps  *snapshot.Builder
	router *notify.Router
	logger Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. router may be nil, in which case
// sessions cannot subscribe.
func NewManager(gw *gateway.Gateway, snaps *snapshot.Builder, router *notify.Router) *Manager {
	return &Manager{
		gw:       gw,
		snaps:    snaps,
		router:   router,
		logger:   noopLogger{},
		sessions: make(map[string]*Session),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Open starts a session for user. The returned context carries the
// session's execution context and must be passed to its operations.
func (m *Manager) Open(ctx context.Context, user string) (*Session, context.Context) {
	s, sctx := newSession(ctx, user, m.gw, m.snaps, m.router)
	s.onClose = m.forget

	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.logger.Debug("session opened", "session", s.id, "user", user, "open", n)
	return s, sctx
}

// Get returns an open session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	m.logger.Debug("session closed", "session", s.id)
}
