package hls

import (
	"fmt"
	"math"
	"strings"
)

const (
	playlistVersion     = 3
	playlistVersionFMP4 = 7
)

// BuildLivePlaylist renders a live media playlist from segments ordered by
// sequence. A non-empty initPath adds #EXT-X-MAP and raises the version to 7.
// Ended playlists close with #EXT-X-ENDLIST.
func BuildLivePlaylist(segments []Segment, initPath string, ended bool) string {
	var b strings.Builder

	version := playlistVersion
	if initPath != "" {
		version = playlistVersionFMP4
	}
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", version)

	var mediaSequence int64
	if len(segments) > 0 {
		mediaSequence = segments[0].Sequence
	}
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration(segments))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence)
	if initPath != "" {
		fmt.Fprintf(&b, "#EXT-X-MAP:URI=%q\n", initPath)
	}

	if len(segments) > 0 {
		b.WriteString("\n")
	}
	for _, seg := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.Duration)
		b.WriteString(seg.Path)
		b.WriteString("\n")
	}

	if ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// targetDuration is the ceiling of the longest segment, at least 1.
func targetDuration(segments []Segment) int {
	longest := 0.0
	for _, seg := range segments {
		longest = math.Max(longest, seg.Duration)
	}
	if longest <= 0 {
		return 1
	}
	return int(math.Ceil(longest))
}
