package status

import "github.com/elliotchance/orderedmap/v2"

// Store is the persistence abstraction for session state. The Repository
// serializes access; stores need not be safe for concurrent use.
type Store interface {
	GetSession(id SessionID) (*SessionState, bool)
	SetSession(s *SessionState)
	ListSessionIDs() []SessionID
}

// InMemoryStore keeps sessions in registration order.
type InMemoryStore struct {
	sessions *orderedmap.OrderedMap[SessionID, *SessionState]
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: orderedmap.NewOrderedMap[SessionID, *SessionState](),
	}
}

// GetSession implements Store.GetSession.
func (s *InMemoryStore) GetSession(id SessionID) (*SessionState, bool) {
	return s.sessions.Get(id)
}

// SetSession implements Store.SetSession. Replacing a session keeps its
// original position.
func (s *InMemoryStore) SetSession(st *SessionState) {
	s.sessions.Set(st.ID, st)
}

// ListSessionIDs implements Store.ListSessionIDs.
func (s *InMemoryStore) ListSessionIDs() []SessionID {
	return s.sessions.Keys()
}
