package session

import (
	"errors"
	"strings"
	"sync"
	"time"
)

const defaultIdleTimeout = time.Hour

// Session owns one conversation store and a single submission slot.
// Generation is the creation time in nanoseconds; it tells apart two
// sessions that were created under the same ID.
type Session struct {
	ID         string
	Generation int64
	store      *Store

	slot     sync.Mutex
	now      func() time.Time
	mu       sync.Mutex
	lastSeen time.Time
	inFlight bool
}

func (s *Session) Store() *Store {
	return s.store
}

// TryBegin claims the submission slot. It reports false when another
// submission on the same session is still in flight. A session holding its
// slot is never evicted.
func (s *Session) TryBegin() bool {
	if !s.slot.TryLock() {
		return false
	}
	s.mu.Lock()
	s.inFlight = true
	s.mu.Unlock()
	return true
}

// Finish releases the slot claimed by TryBegin and counts as activity, so the
// idle clock starts when the submission ends rather than when it began.
func (s *Session) Finish() {
	s.mu.Lock()
	s.inFlight = false
	if s.now != nil {
		s.lastSeen = s.now()
	}
	s.mu.Unlock()
	s.slot.Unlock()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// idleSince reports when the session was last active and whether a
// submission is running on it right now.
func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen, s.inFlight
}

// Manager maps session IDs to sessions. Sessions are created on first access
// and discarded by End or after sitting idle longer than the idle timeout.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration
	now         func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(idleTimeout time.Duration, opts ...Option) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	m := &Manager{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the session for id, creating it with an empty store if
// it does not exist yet.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("session: id must not be empty")
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictIdleLocked(now)
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id, Generation: now.UnixNano(), store: NewStore(), now: m.now}
		m.sessions[id] = s
	}
	s.touch(now)
	return s, nil
}

// Get returns an existing session without creating one.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[strings.TrimSpace(id)]
	return s, ok
}

// End discards the session and its store. It reports whether one existed.
func (m *Manager) End(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// EvictIdle drops sessions idle past the timeout and returns how many went.
func (m *Manager) EvictIdle() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictIdleLocked(m.now())
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) evictIdleLocked(now time.Time) int {
	evicted := 0
	for id, s := range m.sessions {
		lastSeen, busy := s.idleSince()
		if busy {
			continue
		}
		if now.Sub(lastSeen) > m.idleTimeout {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}
