package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Phase is the lifecycle state of a session.
type Phase string

// Session phases.
const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseClosed  Phase = "closed"
)

// Session is one connected client. It owns at most one loop execution at
// a time and never retains history between batches.
type Session struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	mu           sync.Mutex
	phase        Phase
	lastActivity time.Time
	runs         int
	conn         *websocket.Conn
	cancel       context.CancelFunc
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseClosed {
		return
	}
	s.phase = p
	s.lastActivity = time.Now()
	if p == PhaseRunning {
		s.runs++
	}
}

// Info is a point-in-time view of a session.
type Info struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	Phase        Phase     `json:"phase"`
	Runs         int       `json:"runs"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		RemoteAddr:   s.RemoteAddr,
		Phase:        s.phase,
		Runs:         s.runs,
		ConnectedAt:  s.ConnectedAt,
		LastActivity: s.lastActivity,
	}
}

// Disconnect ends the session with a policy-violation status. A running
// loop execution is cancelled.
func (s *Session) Disconnect(reason string) {
	s.close(websocket.StatusPolicyViolation, reason)
}

// close performs the closing handshake with the given status, then
// cancels the session context. Cancelling first would abort the pending
// read and drop the connection without a status.
func (s *Session) close(code websocket.StatusCode, reason string) {
	s.mu.Lock()
	s.phase = PhaseClosed
	conn, cancel := s.conn, s.cancel
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close(code, reason)
	}
	if cancel != nil {
		cancel()
	}
}

// Store is a concurrent-safe in-memory registry of connected sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// AddIfUnder registers s unless the store already holds max sessions.
// A non-positive max disables the limit.
func (st *Store) AddIfUnder(s *Session, max int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if max > 0 && len(st.sessions) >= max {
		return false
	}
	st.sessions[s.ID] = s
	return true
}

// Get returns the session with the given ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Remove deletes a session from the store.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len returns the number of connected sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Running returns the number of sessions with an active loop execution.
func (st *Store) Running() int {
	n := 0
	st.Range(func(_ string, s *Session) bool {
		if s.Phase() == PhaseRunning {
			n++
		}
		return true
	})
	return n
}

// Range iterates over all sessions, calling fn for each. If fn returns
// false, iteration stops.
func (st *Store) Range(fn func(id string, s *Session) bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for id, s := range st.sessions {
		if !fn(id, s) {
			return
		}
	}
}

// Snapshot returns the Info of every session, oldest first.
func (st *Store) Snapshot() []Info {
	var out []Info
	st.Range(func(_ string, s *Session) bool {
		out = append(out, s.Info())
		return true
	})
	slices.SortFunc(out, func(a, b Info) int {
		return a.ConnectedAt.Compare(b.ConnectedAt)
	})
	return out
}

// All returns the connected sessions.
func (st *Store) All() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}
