package runtime

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MJE43/idleforge/internal/blueprint"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Manager keeps the sessions hosted by a process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create hydrates a new session under a fresh id. It is not started.
func (m *Manager) Create(bp *blueprint.GameBlueprint, saved *State, opts ...Option) (*Session, error) {
	s, err := NewSession(uuid.NewString(), bp, saved, opts...)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// List returns the ids of all sessions, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Remove stops the session if running and forgets it.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if s.Status() == StatusRunning {
		return s.Stop()
	}
	return nil
}

// StopAll stops every running session, for shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	running := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Status() == StatusRunning {
			running = append(running, s)
		}
	}
	m.mu.RUnlock()
	for _, s := range running {
		_ = s.Stop()
	}
}
