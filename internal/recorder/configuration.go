package recorder

import (
	"fmt"
	"strings"
	"time"
)

// Container defaults applied to every writer the controller configures.
const (
	OutputContentType     = "mp4"
	OutputFileTypeProfile = "mpeg4AppleHLS"
)

// Preset is the requested capture quality tier.
type Preset int

const (
	PresetHigh Preset = iota
	PresetMedium
	PresetLow
)

func (p Preset) String() string {
	switch p {
	case PresetHigh:
		return "high"
	case PresetMedium:
		return "medium"
	case PresetLow:
		return "low"
	default:
		return fmt.Sprintf("preset(%d)", int(p))
	}
}

// ParsePreset maps "high", "medium" or "low" (case-insensitive) to a Preset.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PresetHigh, nil
	case "medium":
		return PresetMedium, nil
	case "low":
		return PresetLow, nil
	default:
		return PresetHigh, fmt.Errorf("unknown preset %q", s)
	}
}

// OutputSettings is an opaque encoder settings mapping handed to the muxer.
type OutputSettings map[string]any

// Well-known OutputSettings keys.
const (
	SettingFormat     = "format"
	SettingSampleRate = "sample_rate"
	SettingChannels   = "channels"
	SettingBitRate    = "bit_rate"
)

// Int returns the integer value stored under key. Numeric values decoded from
// YAML or JSON (int, int64, float64) are accepted.
func (s OutputSettings) Int(key string) (int, bool) {
	switch v := s[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// String returns the string value stored under key.
func (s OutputSettings) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Configuration describes one recording session. It is consumed once by
// Controller.Start and never mutated.
type Configuration struct {
	// SegmentDuration is the target segment length in seconds.
	SegmentDuration             int
	StartTimeOffset             time.Duration
	ShouldOptimizeForNetworkUse bool
	// OutputSettings overrides the capture pipeline's recommended settings when non-nil.
	OutputSettings OutputSettings
	Preset         Preset
}

// DefaultConfiguration returns 6 second segments starting at 10s, optimized
// for network use, with recommended output settings and the high preset.
func DefaultConfiguration() Configuration {
	return Configuration{
		SegmentDuration:             6,
		StartTimeOffset:             10 * time.Second,
		ShouldOptimizeForNetworkUse: true,
		OutputSettings:              nil,
		Preset:                      PresetHigh,
	}
}

// Validate checks the configuration invariants.
func (c Configuration) Validate() error {
	if c.SegmentDuration <= 0 {
		return fmt.Errorf("%w: segment duration must be positive, got %d", ErrInvalidConfiguration, c.SegmentDuration)
	}
	if c.StartTimeOffset < 0 {
		return fmt.Errorf("%w: start time offset must not be negative, got %s", ErrInvalidConfiguration, c.StartTimeOffset)
	}
	switch c.Preset {
	case PresetHigh, PresetMedium, PresetLow:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, c.Preset)
	}
	return nil
}

// SegmentInterval returns SegmentDuration as a time.Duration.
func (c Configuration) SegmentInterval() time.Duration {
	return time.Duration(c.SegmentDuration) * time.Second
}
