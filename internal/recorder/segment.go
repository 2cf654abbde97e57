package recorder

import "time"

// SegmentKind is the type tag the muxer attaches to each segment payload.
type SegmentKind int

const (
	SegmentKindUnknown SegmentKind = iota
	SegmentKindInitialization
	SegmentKindSeparable
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentKindInitialization:
		return "initialization"
	case SegmentKindSeparable:
		return "separable"
	default:
		return "unknown"
	}
}

// Segment is one HLS fragmented-MP4 payload produced during a session.
type Segment struct {
	// Index starts at 0 for every session and is shared by initialization
	// and media segments.
	Index                   int
	Data                    []byte
	IsInitializationSegment bool
	Report                  *SegmentReport
}

// SegmentReport is optional timing metadata supplied by the muxer.
type SegmentReport struct {
	Kind   SegmentKind
	Tracks []TrackReport
}

// TrackReport describes one track inside a segment.
type TrackReport struct {
	TrackID                  int
	MediaType                string
	EarliestPresentationTime time.Duration
	Duration                 time.Duration
}

// Duration returns the longest track duration in the report.
func (r *SegmentReport) Duration() time.Duration {
	if r == nil {
		return 0
	}
	var d time.Duration
	for _, t := range r.Tracks {
		if t.Duration > d {
			d = t.Duration
		}
	}
	return d
}

// SampleBuffer is a block of captured interleaved signed 16-bit PCM.
type SampleBuffer struct {
	PresentationTime time.Duration
	SampleRate       int
	Channels         int
	Data             []int16
}

// Frames returns the number of sample frames (samples per channel).
func (b *SampleBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration returns the playback duration of the buffer.
func (b *SampleBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}
