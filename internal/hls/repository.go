package hls

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Repository is the concurrency-safe contract for stream state.
type Repository interface {
	// RegisterSegment records seg, creating the stream and rendition on first
	// use. Duplicate sequence numbers are ignored. Ended streams and
	// renditions reject new segments.
	RegisterSegment(streamID StreamID, renditionID RenditionID, seg Segment) error

	// OpenRendition creates an empty stream and rendition so its playlist
	// can be served before the first segment arrives.
	OpenRendition(streamID StreamID, renditionID RenditionID) error

	// SetInitSegment sets the initialization segment URI of a rendition,
	// creating the stream and rendition on first use.
	SetInitSegment(streamID StreamID, renditionID RenditionID, path string) error

	// GetRenditionSnapshot returns a sorted copy of a rendition. ok is false
	// if the stream or rendition does not exist.
	GetRenditionSnapshot(streamID StreamID, renditionID RenditionID) (snap RenditionSnapshot, ok bool)

	// EndStream marks a stream and all its renditions ended. Ending an
	// unknown or already ended stream is a no-op.
	EndStream(streamID StreamID) error

	// ActiveStreamCount returns the number of streams that are not ended.
	ActiveStreamCount() int
}

var (
	ErrStreamEnded    = errors.New("stream has ended")
	ErrRenditionEnded = errors.New("rendition has ended")
)

// InMemoryRepository implements Repository over a Store, guarding it with a
// read/write mutex.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
	now   func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore returns a repository backed by store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (r *InMemoryRepository) RegisterSegment(streamID StreamID, renditionID RenditionID, seg Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rendition, err := r.openRenditionLocked(streamID, renditionID)
	if err != nil {
		return err
	}
	if _, exists := rendition.Segments[seg.Sequence]; exists {
		return nil
	}

	seg.ReceivedAt = r.now()
	rendition.Segments[seg.Sequence] = seg
	return nil
}

func (r *InMemoryRepository) OpenRendition(streamID StreamID, renditionID RenditionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.openRenditionLocked(streamID, renditionID)
	return err
}

func (r *InMemoryRepository) SetInitSegment(streamID StreamID, renditionID RenditionID, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rendition, err := r.openRenditionLocked(streamID, renditionID)
	if err != nil {
		return err
	}
	rendition.InitPath = path
	return nil
}

func (r *InMemoryRepository) GetRenditionSnapshot(streamID StreamID, renditionID RenditionID) (RenditionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stream, exists := r.store.GetStream(streamID)
	if !exists {
		return RenditionSnapshot{}, false
	}
	rendition, exists := stream.Renditions[renditionID]
	if !exists {
		return RenditionSnapshot{}, false
	}

	snap := RenditionSnapshot{InitPath: rendition.InitPath, Ended: rendition.Ended}
	if len(rendition.Segments) == 0 {
		return snap, true
	}

	snap.Segments = make([]Segment, 0, len(rendition.Segments))
	for _, seg := range rendition.Segments {
		snap.Segments = append(snap.Segments, seg)
	}
	sort.Slice(snap.Segments, func(i, j int) bool { return snap.Segments[i].Sequence < snap.Segments[j].Sequence })
	return snap, true
}

func (r *InMemoryRepository) EndStream(streamID StreamID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, exists := r.store.GetStream(streamID)
	if !exists || stream.Ended {
		return nil
	}

	stream.Ended = true
	for _, rendition := range stream.Renditions {
		rendition.Ended = true
	}
	return nil
}

func (r *InMemoryRepository) ActiveStreamCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListStreamIDs() {
		if st, ok := r.store.GetStream(id); ok && !st.Ended {
			n++
		}
	}
	return n
}

// openRenditionLocked returns a writable rendition, creating it and its
// stream as needed. Caller must hold r.mu in write mode.
func (r *InMemoryRepository) openRenditionLocked(streamID StreamID, renditionID RenditionID) (*RenditionState, error) {
	stream, ok := r.store.GetStream(streamID)
	if !ok {
		stream = &StreamState{
			ID:         streamID,
			Renditions: make(map[RenditionID]*RenditionState),
			CreatedAt:  r.now(),
		}
		r.store.SetStream(stream)
	}
	if stream.Ended {
		return nil, ErrStreamEnded
	}

	rendition, ok := stream.Renditions[renditionID]
	if !ok {
		rendition = &RenditionState{
			ID:       renditionID,
			Segments: make(map[int64]Segment),
		}
		stream.Renditions[renditionID] = rendition
	}
	if rendition.Ended {
		return nil, ErrRenditionEnded
	}
	return rendition, nil
}
