package promptflow

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Manager tracks the open sessions of a process. Sessions are inserted when a
// connection is accepted and removed when it closes; nothing outlives the connection.
type Manager struct {
	engine *Engine
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager whose sessions execute runs with engine.
func NewManager(engine *Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		engine:   engine,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Serve registers a session for conn and blocks until it ends.
func (m *Manager) Serve(ctx context.Context, conn Conn) error {
	s := newSession(conn, m.engine, m.logger)
	m.add(s)
	defer m.remove(s)
	return s.Serve(ctx)
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	m.sessions[s.id] = s
	n := len(m.sessions)
	m.mu.Unlock()
	m.logger.Info("session opened", "session_id", s.id, "active", n)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	n := len(m.sessions)
	m.mu.Unlock()
	m.logger.Info("session closed", "session_id", s.id, "active", n)
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Snapshot lists the open sessions, oldest first.
func (m *Manager) Snapshot() []SessionInfo {
	m.mu.RLock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}
