// Package realtime pushes events to connected clients. A Bus holds the
// sessions of one process; a Relay forwards events between processes.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/metrics"
	"github.com/ioms/backend/internal/model"
)

// DefaultBuffer is the per-session queue length. Events for a full queue are dropped.
const DefaultBuffer = 32

// Session is one client subscription. It is created on connect and closed on
// disconnect or logout.
type Session struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	UserID    uuid.UUID

	events chan model.BusEvent
	bus    *Bus
	once   sync.Once
}

// Events returns the channel the session receives on. It is closed with the session.
func (s *Session) Events() <-chan model.BusEvent { return s.events }

// Close unsubscribes the session. It is safe to call more than once.
func (s *Session) Close() {
	s.once.Do(func() { s.bus.remove(s) })
}

func (s *Session) wants(ev model.BusEvent) bool {
	if ev.CompanyID != s.CompanyID {
		return false
	}
	if len(ev.UserIDs) == 0 {
		return true
	}
	for _, id := range ev.UserIDs {
		if id == s.UserID {
			return true
		}
	}
	return false
}

// Bus fans events out to the sessions of this process.
type Bus struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	buffer   int
	logger   *slog.Logger
}

func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{sessions: make(map[uuid.UUID]*Session), buffer: buffer, logger: logger}
}

// Subscribe opens a session for the user.
func (b *Bus) Subscribe(companyID, userID uuid.UUID) *Session {
	s := &Session{
		ID:        uuid.New(),
		CompanyID: companyID,
		UserID:    userID,
		events:    make(chan model.BusEvent, b.buffer),
		bus:       b,
	}
	b.mu.Lock()
	b.sessions[s.ID] = s
	n := len(b.sessions)
	b.mu.Unlock()
	metrics.RealtimeSessions.Set(float64(n))
	return s
}

func (b *Bus) remove(s *Session) {
	b.mu.Lock()
	if _, ok := b.sessions[s.ID]; ok {
		delete(b.sessions, s.ID)
		close(s.events)
	}
	n := len(b.sessions)
	b.mu.Unlock()
	metrics.RealtimeSessions.Set(float64(n))
}

// CloseUser ends every session of the user, e.g. on logout.
func (b *Bus) CloseUser(userID uuid.UUID) int {
	b.mu.RLock()
	var victims []*Session
	for _, s := range b.sessions {
		if s.UserID == userID {
			victims = append(victims, s)
		}
	}
	b.mu.RUnlock()
	for _, s := range victims {
		s.Close()
	}
	return len(victims)
}

// Deliver hands ev to every matching local session without blocking.
func (b *Bus) Deliver(ev model.BusEvent) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	delivered := 0
	for _, s := range b.sessions {
		if !s.wants(ev) {
			continue
		}
		select {
		case s.events <- ev:
			delivered++
		default:
			b.logger.Warn("realtime session queue full, dropping event",
				"session_id", s.ID, "user_id", s.UserID, "kind", ev.Kind)
		}
	}
	return delivered
}

// Len returns the number of open sessions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Shutdown closes every session.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	for id, s := range b.sessions {
		delete(b.sessions, id)
		close(s.events)
	}
	b.mu.Unlock()
	metrics.RealtimeSessions.Set(0)
}
