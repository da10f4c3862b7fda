package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session is one browser's interactive context.
type Session struct {
	ID     uuid.UUID
	Runner *Runner

	lastSeen time.Time
}

func (s *Session) State() *State {
	return s.Runner.State()
}

// RunnerFactory builds the Runner for a new session.
type RunnerFactory func(id uuid.UUID, state *State) *Runner

// Store keeps sessions in memory and discards idle ones.
type Store struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*Session
	newRunner RunnerFactory
	ttl       time.Duration
	now       func() time.Time
}

func NewStore(ttl time.Duration, newRunner RunnerFactory) *Store {
	return &Store{
		sessions:  make(map[uuid.UUID]*Session),
		newRunner: newRunner,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Get returns the session for id, creating an empty one on first use.
func (s *Store) Get(id uuid.UUID) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id, Runner: s.newRunner(id, NewState())}
		s.sessions[id] = sess
		log.Debug().Str("session_id", id.String()).Msg("session created")
	}
	sess.lastSeen = s.now()
	return sess
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the store TTL. Sessions with a
// run in progress are kept. It returns the number of sessions dropped.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	dropped := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.After(cutoff) || sess.State().IsOptimizing() {
			continue
		}
		delete(s.sessions, id)
		dropped++
	}
	if dropped > 0 {
		log.Info().Int("dropped", dropped).Int("remaining", len(s.sessions)).Msg("idle sessions swept")
	}
	return dropped
}
