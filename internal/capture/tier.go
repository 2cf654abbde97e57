package capture

import (
	"time"

	"hls-recorder/internal/recorder"
)

// Tier is a capture quality level: the sample rate the input is opened at and
// the length of each delivered buffer.
type Tier struct {
	SampleRate     int
	BufferDuration time.Duration
}

var tiers = map[recorder.Preset]Tier{
	recorder.PresetHigh:   {SampleRate: 48000, BufferDuration: 10 * time.Millisecond},
	recorder.PresetMedium: {SampleRate: 24000, BufferDuration: 20 * time.Millisecond},
	recorder.PresetLow:    {SampleRate: 16000, BufferDuration: 40 * time.Millisecond},
}

// defaultBufferDuration is used when no preset was applied and the input runs
// at its native rate.
const defaultBufferDuration = 20 * time.Millisecond

// TierFor returns the tier of a preset.
func TierFor(p recorder.Preset) (Tier, bool) {
	t, ok := tiers[p]
	return t, ok
}

// FramesPerBuffer returns the number of sample frames in one buffer.
func (t Tier) FramesPerBuffer() int {
	return int(int64(t.SampleRate) * int64(t.BufferDuration) / int64(time.Second))
}
