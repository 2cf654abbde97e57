package capture

import (
	"math"
	"sync"
	"time"

	"hls-recorder/internal/recorder"
)

const (
	// MinLevel is the reading of a silent channel, in dBFS.
	MinLevel float32 = -160
	// PeakHoldDuration is how long a peak is held before it may fall.
	PeakHoldDuration = time.Second

	fullScale = 32768.0
)

type channelMeter struct {
	peak   float32
	peakAt time.Time
	avg    float32
}

// Connection is the link between the capture input and its data output. It
// meters every delivered buffer per channel.
type Connection struct {
	mu       sync.Mutex
	channels []channelMeter
	now      func() time.Time
}

func newConnection(channels int) *Connection {
	c := &Connection{channels: make([]channelMeter, channels), now: time.Now}
	for i := range c.channels {
		c.channels[i] = channelMeter{peak: MinLevel, avg: MinLevel}
	}
	return c
}

// ChannelLevels implements recorder.Connection.
func (c *Connection) ChannelLevels() []recorder.ChannelLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recorder.ChannelLevel, len(c.channels))
	for i, m := range c.channels {
		out[i] = recorder.ChannelLevel{PeakHold: m.peak, AveragePower: m.avg}
	}
	return out
}

// meter updates the per-channel readings from one interleaved buffer.
func (c *Connection) meter(buf *recorder.SampleBuffer) {
	n := len(c.channels)
	if n == 0 || buf.Channels != n || buf.Frames() == 0 {
		return
	}

	sums := make([]float64, n)
	peaks := make([]float64, n)
	for i, s := range buf.Data {
		ch := i % n
		v := float64(s)
		sums[ch] += v * v
		if a := math.Abs(v); a > peaks[ch] {
			peaks[ch] = a
		}
	}

	now := c.now()
	frames := float64(buf.Frames())

	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.channels {
		m := &c.channels[ch]
		m.avg = toDecibels(math.Sqrt(sums[ch] / frames))
		peak := toDecibels(peaks[ch])
		if peak >= m.peak || now.Sub(m.peakAt) >= PeakHoldDuration {
			m.peak = peak
			m.peakAt = now
		}
	}
}

func toDecibels(amplitude float64) float32 {
	if amplitude <= 0 {
		return MinLevel
	}
	db := float32(20 * math.Log10(amplitude/fullScale))
	if db < MinLevel {
		return MinLevel
	}
	return db
}
