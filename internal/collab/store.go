package collab

// SessionStore maps document ids to sessions. Like Session it belongs to
// the dispatcher goroutine and does no locking of its own.
type SessionStore struct {
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

func (st *SessionStore) Get(id string) *Session {
	return st.sessions[id]
}

// GetOrCreate returns the session for id, creating an empty one on first use.
func (st *SessionStore) GetOrCreate(id string) (*Session, bool) {
	if s, ok := st.sessions[id]; ok {
		return s, false
	}
	s := newSession(id)
	st.sessions[id] = s
	return s, true
}

// Delete removes the session and cancels all of its timers so no flush can
// fire against a session that no longer exists.
func (st *SessionStore) Delete(id string) bool {
	s, ok := st.sessions[id]
	if !ok {
		return false
	}
	s.cancelTasks()
	delete(st.sessions, id)
	return true
}

func (st *SessionStore) Len() int {
	return len(st.sessions)
}
