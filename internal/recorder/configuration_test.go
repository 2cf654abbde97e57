package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfiguration(t *testing.T) {
	cfg := DefaultConfiguration()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.SegmentDuration)
	assert.Equal(t, 6*time.Second, cfg.SegmentInterval())
	assert.Equal(t, 10*time.Second, cfg.StartTimeOffset)
	assert.True(t, cfg.ShouldOptimizeForNetworkUse)
	assert.Nil(t, cfg.OutputSettings)
	assert.Equal(t, PresetHigh, cfg.Preset)
}

func TestConfiguration_Validate(t *testing.T) {
	tests := map[string]func(*Configuration){
		"zero_segment_duration":     func(c *Configuration) { c.SegmentDuration = 0 },
		"negative_segment_duration": func(c *Configuration) { c.SegmentDuration = -1 },
		"negative_start_offset":     func(c *Configuration) { c.StartTimeOffset = -time.Second },
		"unknown_preset":            func(c *Configuration) { c.Preset = Preset(7) },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfiguration()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)
		})
	}

	cfg := DefaultConfiguration()
	cfg.StartTimeOffset = 0
	assert.NoError(t, cfg.Validate(), "zero start offset is allowed")
}

func TestParsePreset(t *testing.T) {
	for in, want := range map[string]Preset{"high": PresetHigh, "Medium": PresetMedium, " LOW ": PresetLow} {
		got, err := ParsePreset(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}

	_, err := ParsePreset("ultra")
	assert.Error(t, err)
}

func mustParse(t *testing.T, s string) Preset {
	t.Helper()
	p, err := ParsePreset(s)
	require.NoError(t, err)
	return p
}

func TestOutputSettings_accessors(t *testing.T) {
	s := OutputSettings{
		SettingFormat:     "opus",
		SettingSampleRate: float64(48000),
		SettingChannels:   int64(2),
		SettingBitRate:    96000,
	}

	format, ok := s.String(SettingFormat)
	assert.True(t, ok)
	assert.Equal(t, "opus", format)

	for key, want := range map[string]int{SettingSampleRate: 48000, SettingChannels: 2, SettingBitRate: 96000} {
		got, ok := s.Int(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}

	_, ok = s.Int(SettingFormat)
	assert.False(t, ok)
	_, ok = s.String("missing")
	assert.False(t, ok)
}

func TestAggregateLevels(t *testing.T) {
	peak, avg := aggregateLevels([]ChannelLevel{
		{PeakHold: 0.1, AveragePower: 0.05},
		{PeakHold: 0.2, AveragePower: 0.10},
		{PeakHold: 0.3, AveragePower: 0.15},
	})
	assert.InDelta(t, 0.6, peak, 1e-6)
	assert.InDelta(t, 0.3, avg, 1e-6)

	peak, avg = aggregateLevels(nil)
	assert.Zero(t, peak)
	assert.Zero(t, avg)
}

func TestSampleBuffer(t *testing.T) {
	buf := &SampleBuffer{SampleRate: 48000, Channels: 2, Data: make([]int16, 960)}
	assert.Equal(t, 480, buf.Frames())
	assert.Equal(t, 10*time.Millisecond, buf.Duration())

	assert.Zero(t, (&SampleBuffer{}).Duration())
}

func TestSegmentReport_Duration(t *testing.T) {
	var nilReport *SegmentReport
	assert.Zero(t, nilReport.Duration())

	r := &SegmentReport{Tracks: []TrackReport{{Duration: 2 * time.Second}, {Duration: 6 * time.Second}}}
	assert.Equal(t, 6*time.Second, r.Duration())
}
