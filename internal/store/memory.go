package store

import (
	"context"
	"sync"
	"time"

	"taxquery-backend/internal/dispatch"
)

// Session is a live conversation: its engine plus the lock that keeps its
// turns in submission order.
type Session struct {
	ID     string
	Engine *dispatch.Engine

	turnMu   sync.Mutex
	closers  []func()
	lastSeen time.Time
	// open event streams, guarded by the owning MemoryStore's mu
	streams int
}

func NewSession(id string, engine *dispatch.Engine) *Session {
	return &Session{ID: id, Engine: engine}
}

// OnClose registers a function run when the session is evicted.
func (s *Session) OnClose(fn func()) {
	s.closers = append(s.closers, fn)
}

// RunTurn hands text to the engine once any earlier turn has finished.
func (s *Session) RunTurn(ctx context.Context, text string) dispatch.Turn {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()
	return s.Engine.HandleUserMessage(ctx, text)
}

func (s *Session) close() {
	for _, fn := range s.closers {
		fn()
	}
	s.closers = nil
}

// SessionFactory builds a session that is not in memory, restoring it from
// persistent storage when possible.
type SessionFactory func(ctx context.Context, id string) (*Session, error)

// MemoryStore holds live sessions and drops those idle for longer than ttl.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a live session and refreshes its idle timer.
func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.lastSeen = m.now()
	}
	return s, ok
}

// GetOrCreate returns the live session for id, building it with factory when
// it is not in memory.
func (m *MemoryStore) GetOrCreate(ctx context.Context, id string, factory SessionFactory) (*Session, error) {
	if s, ok := m.Get(id); ok {
		return s, nil
	}

	created, err := factory(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		// lost a race with another request for the same session
		created.close()
		existing.lastSeen = m.now()
		return existing, nil
	}
	created.lastSeen = m.now()
	m.sessions[id] = created
	return created, nil
}

// Watch returns the live session for id and keeps it from being swept until
// the returned function is called.
func (m *MemoryStore) Watch(ctx context.Context, id string, factory SessionFactory) (*Session, func(), error) {
	for {
		s, err := m.GetOrCreate(ctx, id, factory)
		if err != nil {
			return nil, nil, err
		}
		m.mu.Lock()
		if m.sessions[id] != s {
			// swept between lookup and attach
			m.mu.Unlock()
			continue
		}
		s.streams++
		m.mu.Unlock()

		var once sync.Once
		return s, func() {
			once.Do(func() {
				m.mu.Lock()
				defer m.mu.Unlock()
				s.streams--
				s.lastSeen = m.now()
			})
		}, nil
	}
}

// Sweep evicts idle sessions and returns how many were removed. Sessions in
// the middle of a turn or with an open event stream are kept.
func (m *MemoryStore) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for id, s := range m.sessions {
		if s.streams > 0 || s.lastSeen.After(cutoff) {
			continue
		}
		if !s.turnMu.TryLock() {
			continue
		}
		delete(m.sessions, id)
		s.close()
		s.turnMu.Unlock()
		removed++
	}
	return removed
}

// Len reports the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
