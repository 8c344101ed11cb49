package board

import (
	"context"
	"sync"
)

// Manager runs sessions in the background, at most one per session id.
type Manager struct {
	metrics Metrics

	mu      sync.Mutex
	running map[string]context.CancelFunc // session id -> cancel
	wg      sync.WaitGroup
}

func NewManager(m Metrics) *Manager {
	return &Manager{metrics: m, running: make(map[string]context.CancelFunc)}
}

// Start runs s until parent is done or Stop is called. It reports false when
// a session with the same id is already running.
func (m *Manager) Start(parent context.Context, s *Session) bool {
	m.mu.Lock()
	if _, exists := m.running[s.ID()]; exists {
		m.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(parent)
	m.running[s.ID()] = cancel
	m.wg.Add(1)
	m.setGauge()
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		s.Run(ctx)
		cancel()
		m.mu.Lock()
		delete(m.running, s.ID())
		m.setGauge()
		m.mu.Unlock()
	}()
	return true
}

// Stop cancels one session. It does not wait for it to exit.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	if cancel, ok := m.running[id]; ok {
		cancel()
	}
	m.mu.Unlock()
}

// StopAll cancels every session and waits for them to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

func (m *Manager) setGauge() {
	if m.metrics != nil {
		m.metrics.SessionsSet(len(m.running))
	}
}
