package recorder

import "fmt"

// handleBuffer runs on the session's serial queue for every captured buffer.
func (c *Controller) handleBuffer(s *session, buf *SampleBuffer, from Connection) {
	if c.active.Load() != s {
		return
	}
	if from != s.conn {
		c.abort(s, fmt.Errorf("%w: buffer from unregistered connection", ErrRuntime))
		return
	}
	if !s.muxer.IsReadyForMoreMediaData() || !s.muxer.Append(buf) {
		c.abort(s, runtimeError(s.muxer.Err()))
		return
	}

	if c.metrics != nil {
		c.metrics.IncBuffersCaptured()
	}

	d := c.currentDelegate()
	if d == nil {
		return
	}
	peak, avg := aggregateLevels(from.ChannelLevels())
	d.rawBuffer(buf)
	d.peakLevel(peak)
	d.averageLevel(avg)
	if c.metrics != nil {
		c.metrics.SetLevels(peak, avg)
	}
}

// aggregateLevels sums the per-channel readings.
func aggregateLevels(channels []ChannelLevel) (peak, avg float32) {
	for _, ch := range channels {
		peak += ch.PeakHold
		avg += ch.AveragePower
	}
	return peak, avg
}

func runtimeError(cause error) error {
	if cause == nil {
		return ErrRuntime
	}
	return fmt.Errorf("%w: %w", ErrRuntime, cause)
}
