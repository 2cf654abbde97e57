package hls

// Store persists stream state for the Repository, which serializes access to
// it. Implementations need not be safe for concurrent use.
type Store interface {
	GetStream(id StreamID) (*StreamState, bool)
	SetStream(s *StreamState)
	ListStreamIDs() []StreamID
}

// InMemoryStore keeps streams in a map.
type InMemoryStore struct {
	streams map[StreamID]*StreamState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{streams: make(map[StreamID]*StreamState)}
}

func (s *InMemoryStore) GetStream(id StreamID) (*StreamState, bool) {
	st, ok := s.streams[id]
	return st, ok
}

// SetStream stores st, replacing any stream with the same ID.
func (s *InMemoryStore) SetStream(st *StreamState) {
	s.streams[st.ID] = st
}

func (s *InMemoryStore) ListStreamIDs() []StreamID {
	ids := make([]StreamID, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	return ids
}
