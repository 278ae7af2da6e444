package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/idolchat/internal/metrics"
	"github.com/zhouzirui/idolchat/internal/model/chat"
)

var (
	ErrUserIDRequired  = errors.New("user id is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Info describes a live session to API callers.
type Info struct {
	ID        string    `json:"sessionId"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type entry struct {
	info       Info
	controller *Controller
}

// Manager tracks the sessions opened through login and tears them down on
// logout.
type Manager struct {
	deps Deps

	mu       sync.RWMutex
	sessions map[string]entry
}

// NewManager returns a Manager whose controllers share deps.
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]entry),
	}
}

// Start opens a session for identity.
func (m *Manager) Start(_ context.Context, identity chat.Identity) (Info, *Controller, error) {
	identity.UserID = strings.TrimSpace(identity.UserID)
	if identity.UserID == "" {
		return Info{}, nil, ErrUserIDRequired
	}
	if strings.TrimSpace(identity.Username) == "" {
		identity.Username = identity.UserID
	}

	info := Info{
		ID:        uuid.NewString(),
		UserID:    identity.UserID,
		Username:  identity.Username,
		CreatedAt: time.Now().UTC(),
	}
	controller := NewController(identity, m.deps)

	m.mu.Lock()
	m.sessions[info.ID] = entry{info: info, controller: controller}
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	m.deps.Logger.Info("session started",
		zap.String("sessionId", info.ID),
		zap.String("userId", info.UserID))
	return info, controller, nil
}

// Get retrieves a live session.
func (m *Manager) Get(_ context.Context, sessionID string) (Info, *Controller, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return Info{}, nil, ErrSessionNotFound
	}
	return e.info, e.controller, nil
}

// End resets and forgets a session, as on logout.
func (m *Manager) End(_ context.Context, sessionID string) error {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.controller.Reset()
	metrics.ActiveSessions.Set(float64(count))
	m.deps.Logger.Info("session ended", zap.String("sessionId", sessionID))
	return nil
}
