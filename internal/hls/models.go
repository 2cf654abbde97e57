package hls

import "time"

// StreamID uniquely identifies a published stream. Recorded streams use a uuid.
type StreamID string

// RenditionID identifies one rendition of a stream (e.g. "audio", "720p").
type RenditionID string

// Segment is one media segment listed in a playlist. It doubles as the JSON
// body for externally registered segments.
type Segment struct {
	Sequence int64   `json:"sequence"`
	Duration float64 `json:"duration"`
	Path     string  `json:"path"`

	ReceivedAt time.Time `json:"-"`
}

// RenditionState is the in-memory state of one rendition.
type RenditionState struct {
	ID       RenditionID
	Segments map[int64]Segment
	// InitPath is the fMP4 initialization segment URI, empty for
	// self-initializing segments.
	InitPath string
	Ended    bool
}

// StreamState is the in-memory state of one stream.
type StreamState struct {
	ID         StreamID
	Renditions map[RenditionID]*RenditionState
	Ended      bool
	CreatedAt  time.Time
}

// RenditionSnapshot is a copy of a rendition safe to use outside the repository.
// Segments are sorted by sequence.
type RenditionSnapshot struct {
	Segments []Segment
	InitPath string
	Ended    bool
}
