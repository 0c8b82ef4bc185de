package holder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"Skycast/lib/sl"
)

// State is the dialogue position of one chat. Anything other than
// StateIdle means the chat owes the bot one piece of follow-up input.
type State int

const (
	StateIdle State = iota
	StateAwaitCityLookup
	StateAwaitGeoLookup
	StateAwaitCitySave
	StateAwaitGeoSave
	StateAwaitCityForecast
	StateAwaitGeoForecast
)

// AwaitsCity reports whether the state expects a typed city name.
func (s State) AwaitsCity() bool {
	return s == StateAwaitCityLookup || s == StateAwaitCitySave || s == StateAwaitCityForecast
}

// AwaitsGeo reports whether the state expects a shared location.
func (s State) AwaitsGeo() bool {
	return s == StateAwaitGeoLookup || s == StateAwaitGeoSave || s == StateAwaitGeoForecast
}

type session struct {
	state     State
	updatedAt time.Time
}

// SessionManager keeps the volatile per-chat dialogue state. One slot
// per chat, last writer wins. Entries idle past the TTL are dropped by
// the sweeper so abandoned flows do not accumulate.
type SessionManager struct {
	sessions map[int64]*session
	mutex    sync.Mutex
	ttl      time.Duration
	clock    clockwork.Clock
	log      *slog.Logger
}

func NewSessionManager(ttl time.Duration, clock clockwork.Clock, log *slog.Logger) *SessionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionManager{
		sessions: make(map[int64]*session),
		ttl:      ttl,
		clock:    clock,
		log:      log.With(sl.Module("sessions")),
	}
}

// State returns the chat's current state, treating expired entries as idle.
func (m *SessionManager) State(chatID int64) State {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return StateIdle
	}
	if m.ttl > 0 && m.clock.Since(s.updatedAt) > m.ttl {
		delete(m.sessions, chatID)
		return StateIdle
	}
	return s.state
}

// Set replaces the chat's session slot. Setting StateIdle clears it.
func (m *SessionManager) Set(chatID int64, state State) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if state == StateIdle {
		delete(m.sessions, chatID)
		return
	}
	m.sessions[chatID] = &session{
		state:     state,
		updatedAt: m.clock.Now(),
	}
}

// Clear drops the chat's session and reports whether one was active.
func (m *SessionManager) Clear(chatID int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, ok := m.sessions[chatID]
	delete(m.sessions, chatID)
	return ok
}

// Len returns the number of active sessions.
func (m *SessionManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle past the TTL and returns the eviction count.
func (m *SessionManager) Sweep() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.ttl <= 0 {
		return 0
	}
	evicted := 0
	for chatID, s := range m.sessions {
		if m.clock.Since(s.updatedAt) > m.ttl {
			delete(m.sessions, chatID)
			evicted++
		}
	}
	return evicted
}

// Run sweeps on the given interval until the context is cancelled.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := m.Sweep(); n > 0 {
				m.log.Debug("expired sessions evicted", slog.Int("count", n))
			}
		}
	}
}
