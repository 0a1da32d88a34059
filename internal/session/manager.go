package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fancify-backend/internal/models"
)

// Manager is the registry of live widget sessions. A session ends when it
// has been idle for longer than the TTL; its history goes with it.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Controller
	deps     Deps
	idleTTL  time.Duration
}

func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Controller),
		deps:     deps.withDefaults(),
		idleTTL:  idleTTL,
	}
}

func (m *Manager) Create() *Controller {
	c := NewController(uuid.New(), m.deps)

	m.mu.Lock()
	m.sessions[c.ID()] = c
	m.mu.Unlock()

	m.deps.Log.Debug("session created", zap.String("session_id", c.ID().String()))
	return c
}

func (m *Manager) Get(id uuid.UUID) (*Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Snapshot returns the render state of a live session.
func (m *Manager) Snapshot(id uuid.UUID) (models.Snapshot, error) {
	c, err := m.Get(id)
	if err != nil {
		return models.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle since before now-TTL and returns how many were
// removed. Sessions with a transform in flight are kept.
func (m *Manager) Sweep(now time.Time) int {
	if m.idleTTL <= 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, c := range m.sessions {
		if c.Busy() || now.Sub(c.LastSeen()) <= m.idleTTL {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.deps.Clock()); n > 0 {
				m.deps.Log.Info("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}
