package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hls-recorder/internal/recorder"
)

func TestConnection_silence(t *testing.T) {
	c := newConnection(1)
	for _, l := range c.ChannelLevels() {
		assert.Equal(t, MinLevel, l.PeakHold)
		assert.Equal(t, MinLevel, l.AveragePower)
	}

	c.meter(&recorder.SampleBuffer{Channels: 1, SampleRate: 8000, Data: make([]int16, 80)})
	levels := c.ChannelLevels()
	require.Len(t, levels, 1)
	assert.Equal(t, MinLevel, levels[0].AveragePower)
}

func TestConnection_full_scale(t *testing.T) {
	c := newConnection(1)
	c.meter(&recorder.SampleBuffer{Channels: 1, Data: []int16{-32768, -32768}})

	levels := c.ChannelLevels()
	assert.InDelta(t, 0, levels[0].AveragePower, 1e-3)
	assert.InDelta(t, 0, levels[0].PeakHold, 1e-3)
}

func TestConnection_peak_hold_expires(t *testing.T) {
	now := time.Unix(0, 0)
	c := newConnection(1)
	c.now = func() time.Time { return now }

	c.meter(&recorder.SampleBuffer{Channels: 1, Data: []int16{16384}})
	held := c.ChannelLevels()[0].PeakHold

	now = now.Add(PeakHoldDuration / 2)
	c.meter(&recorder.SampleBuffer{Channels: 1, Data: []int16{1024}})
	assert.Equal(t, held, c.ChannelLevels()[0].PeakHold)

	now = now.Add(PeakHoldDuration)
	c.meter(&recorder.SampleBuffer{Channels: 1, Data: []int16{1024}})
	assert.Less(t, c.ChannelLevels()[0].PeakHold, held)
}

func TestConnection_ignores_mismatched_buffers(t *testing.T) {
	c := newConnection(2)
	c.meter(&recorder.SampleBuffer{Channels: 1, Data: []int16{32767}})

	for _, l := range c.ChannelLevels() {
		assert.Equal(t, MinLevel, l.PeakHold)
	}
}

func TestTier_FramesPerBuffer(t *testing.T) {
	for preset, want := range map[recorder.Preset]int{
		recorder.PresetHigh:   480,
		recorder.PresetMedium: 480,
		recorder.PresetLow:    640,
	} {
		tier, ok := TierFor(preset)
		require.True(t, ok)
		assert.Equal(t, want, tier.FramesPerBuffer(), preset.String())
	}
}
