// Package opus provides the Opus encoder for muxer.Writer.
package opus

import (
	"fmt"
	"time"

	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
	"layeh.com/gopus"

	"hls-recorder/internal/muxer"
	"hls-recorder/internal/recorder"
)

// Format is the output settings format handled by this package.
const Format = "opus"

const (
	// timeScale is fixed for Opus in MP4 regardless of the input rate.
	timeScale      = 48000
	frameDuration  = 20 * time.Millisecond
	maxPacketBytes = 4000
)

var supportedRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// Option registers the Opus encoder on a writer.
func Option() muxer.Option {
	return muxer.WithEncoder(Format, NewEncoder)
}

// Encoder packs 20 ms Opus frames, one per fMP4 sample.
type Encoder struct {
	format    muxer.AudioFormat
	enc       *gopus.Encoder
	frameSize int
	pending   []int16
}

// NewEncoder is a muxer.EncoderFactory. The optional bit_rate setting is in
// bits per second.
func NewEncoder(settings recorder.OutputSettings) (muxer.Encoder, error) {
	format, err := muxer.ParseAudioFormat(settings)
	if err != nil {
		return nil, err
	}
	if !supportedRates[format.SampleRate] {
		return nil, fmt.Errorf("%w: opus does not support %d Hz", muxer.ErrInvalidSettings, format.SampleRate)
	}
	if format.Channels > 2 {
		return nil, fmt.Errorf("%w: opus supports at most 2 channels, got %d", muxer.ErrInvalidSettings, format.Channels)
	}

	enc, err := gopus.NewEncoder(format.SampleRate, format.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if bitRate, ok := settings.Int(recorder.SettingBitRate); ok && bitRate > 0 {
		enc.SetBitrate(bitRate)
	}

	return &Encoder{
		format:    format,
		enc:       enc,
		frameSize: format.SampleRate * int(frameDuration/time.Millisecond) / 1000,
	}, nil
}

func (e *Encoder) Codec() fmp4.Codec {
	return &fmp4.CodecOpus{ChannelCount: e.format.Channels}
}

func (e *Encoder) TimeScale() uint32 { return timeScale }

func (e *Encoder) Encode(buf *recorder.SampleBuffer) ([]*fmp4.PartSample, error) {
	if err := e.format.Check(buf); err != nil {
		return nil, err
	}
	e.pending = append(e.pending, buf.Data...)
	return e.drain()
}

// Flush pads the last partial frame with silence.
func (e *Encoder) Flush() ([]*fmp4.PartSample, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	chunk := e.frameSize * e.format.Channels
	if rem := len(e.pending) % chunk; rem != 0 {
		e.pending = append(e.pending, make([]int16, chunk-rem)...)
	}
	return e.drain()
}

func (e *Encoder) drain() ([]*fmp4.PartSample, error) {
	chunk := e.frameSize * e.format.Channels
	var out []*fmp4.PartSample
	for len(e.pending) >= chunk {
		packet, err := e.enc.Encode(e.pending[:chunk], e.frameSize, maxPacketBytes)
		if err != nil {
			return out, fmt.Errorf("opus encode: %w", err)
		}
		out = append(out, &fmp4.PartSample{
			Duration: uint32(timeScale * frameDuration / time.Second),
			Payload:  packet,
		})
		e.pending = e.pending[chunk:]
	}
	if len(e.pending) == 0 {
		e.pending = nil
	}
	return out, nil
}
