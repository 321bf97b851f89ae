package gateway

// Registry indexes live sessions by id and by user. It is not safe for
// concurrent use; the hub serializes access.
type Registry struct {
	sessions map[string]*Session
	byUser   map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(s *Session) error {
	if _, ok := r.sessions[s.id]; ok {
		return ErrDuplicateSession
	}

	r.sessions[s.id] = s
	ids, ok := r.byUser[s.UserID()]
	if !ok {
		ids = make(map[string]struct{})
		r.byUser[s.UserID()] = ids
	}
	ids[s.id] = struct{}{}
	return nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// LookupByUser returns the active sessions of a user.
func (r *Registry) LookupByUser(userID string) []*Session {
	ids := r.byUser[userID]
	sessions := make([]*Session, 0, len(ids))
	for id := range ids {
		s, ok := r.sessions[id]
		if !ok || !s.isActive() {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions
}

// Remove is idempotent; the second call reports false.
func (r *Registry) Remove(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}

	delete(r.sessions, id)
	if ids, ok := r.byUser[s.UserID()]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.byUser, s.UserID())
		}
	}
	return s, true
}

func (r *Registry) Len() int {
	return len(r.sessions)
}

func (r *Registry) All() []*Session {
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}
