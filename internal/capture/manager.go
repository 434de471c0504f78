package capture

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// defaultFrameBuffer bounds how many frames a session holds before the
// decode loop catches up. Live scanning only ever needs the newest few.
const defaultFrameBuffer = 4

// IDGenerator generates unique IDs for capture sessions.
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Manager enforces exclusive camera ownership: at most one session is
// active at a time, and starting a new session stops any prior one.
type Manager struct {
	mu     sync.Mutex
	active *Session

	idGenerator IDGenerator
	buffer      int
}

// NewManager creates a Manager with UUID session IDs.
func NewManager() *Manager {
	return &Manager{
		idGenerator: &uuidGenerator{},
		buffer:      defaultFrameBuffer,
	}
}

// NewManagerWithDeps creates a Manager with a custom ID generator for testing.
func NewManagerWithDeps(idGen IDGenerator) *Manager {
	return &Manager{
		idGenerator: idGen,
		buffer:      defaultFrameBuffer,
	}
}

// Start opens a new capture session, stopping the active one first.
func (m *Manager) Start() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		slog.Info("Stopping prior capture session", "session_id", m.active.ID())
		m.active.Stop()
	}

	session := newSession(m.idGenerator.Generate(), m.buffer)
	m.active = session
	return session
}

// Get returns the active session when its ID matches. Frames addressed
// to any other session are stale and must be discarded by the caller.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.ID() != id {
		return nil, false
	}
	return m.active, true
}

// Stop stops the session with the given ID. Stopping an unknown or
// already-stopped session is a no-op.
func (m *Manager) Stop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.ID() != id {
		return
	}
	m.active.Stop()
	m.active = nil
}

// StopAll stops whatever session is active.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil {
		m.active.Stop()
		m.active = nil
	}
}
