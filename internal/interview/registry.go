package interview

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry owns all live sessions, keyed by session id. It is the only
// shared mutable structure; session interiors are owned by their serialized
// transition paths.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// create allocates a new active session. If id is empty a fresh UUID is
// assigned. An id colliding with an active session fails with
// ErrDuplicateSession; a collision with an ended session replaces it (the
// finished interview was already finalized).
func (r *Registry) create(id string, mode Mode, subject, firstQuestion string) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[id]; ok && existing.Active() {
		return nil, ErrDuplicateSession
	}

	s := &Session{
		ID:        id,
		Mode:      mode,
		Subject:   subject,
		CreatedAt: time.Now().UTC(),
	}
	s.status = StatusActive
	s.currentQuestion = firstQuestion

	r.sessions[id] = s
	return s, nil
}

// Get returns the session for id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove deletes the session for id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes ended sessions that finished before the cutoff and returns
// how many were removed. Active sessions are never swept.
func (r *Registry) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		snap := s.Snapshot()
		if snap.Status == StatusEnded && !snap.EndedAt.IsZero() && snap.EndedAt.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
