package hls

import (
	"errors"
	"fmt"
)

// DefaultWindowSize is the number of segments a live playlist lists by default.
const DefaultWindowSize = 6

// ErrInvalidSegment is returned for segments with a negative sequence, a
// non-positive duration or an empty path.
var ErrInvalidSegment = errors.New("invalid segment")

// Service builds sliding-window playlists over a Repository.
type Service struct {
	repo       Repository
	windowSize int
}

// NewService returns a Service listing at most windowSize segments per
// playlist. If windowSize <= 0, DefaultWindowSize is used.
func NewService(repo Repository, windowSize int) *Service {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Service{repo: repo, windowSize: windowSize}
}

// RegisterSegment validates and records a segment. Duplicates are idempotent.
func (s *Service) RegisterSegment(streamID StreamID, renditionID RenditionID, seg Segment) error {
	switch {
	case seg.Sequence < 0:
		return fmt.Errorf("%w: negative sequence %d", ErrInvalidSegment, seg.Sequence)
	case seg.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidSegment)
	case seg.Path == "":
		return fmt.Errorf("%w: empty path", ErrInvalidSegment)
	}
	return s.repo.RegisterSegment(streamID, renditionID, seg)
}

// OpenRendition makes an empty playlist available for a rendition.
func (s *Service) OpenRendition(streamID StreamID, renditionID RenditionID) error {
	return s.repo.OpenRendition(streamID, renditionID)
}

// SetInitSegment points the rendition's #EXT-X-MAP at path.
func (s *Service) SetInitSegment(streamID StreamID, renditionID RenditionID, path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty init path", ErrInvalidSegment)
	}
	return s.repo.SetInitSegment(streamID, renditionID, path)
}

// GetPlaylist returns the live playlist for a rendition: the last windowSize
// segments, cut at the first gap in sequence numbers.
func (s *Service) GetPlaylist(streamID StreamID, renditionID RenditionID) (m3u8 string, ok bool) {
	snap, ok := s.repo.GetRenditionSnapshot(streamID, renditionID)
	if !ok {
		return "", false
	}
	window := contiguousVisibleSegments(snap.Segments, s.windowSize)
	return BuildLivePlaylist(window, snap.InitPath, snap.Ended), true
}

// EndStream marks the stream as ended; new segments will be rejected.
func (s *Service) EndStream(streamID StreamID) error {
	return s.repo.EndStream(streamID)
}

// contiguousVisibleSegments slides the window first and then stops at the
// first gap, so a missing segment eventually falls off the back instead of
// freezing the playlist. segs must be sorted by Sequence.
func contiguousVisibleSegments(segs []Segment, windowSize int) []Segment {
	if len(segs) == 0 || windowSize <= 0 {
		return nil
	}

	start := 0
	if len(segs) > windowSize {
		start = len(segs) - windowSize
	}
	windowed := segs[start:]

	visible := make([]Segment, 0, len(windowed))
	for i, seg := range windowed {
		if i > 0 && seg.Sequence != windowed[i-1].Sequence+1 {
			break
		}
		visible = append(visible, seg)
	}
	return visible
}
