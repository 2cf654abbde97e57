package muxer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"

	"hls-recorder/internal/recorder"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrInvalidSettings   = errors.New("invalid output settings")
	ErrFormatMismatch    = errors.New("buffer format does not match the writer input")
)

// FormatLPCM is the built-in uncompressed format.
const FormatLPCM = "lpcm"

// Encoder turns captured PCM into fMP4 samples for one track.
type Encoder interface {
	Codec() fmp4.Codec
	TimeScale() uint32
	// Encode may buffer input and return no samples.
	Encode(buf *recorder.SampleBuffer) ([]*fmp4.PartSample, error)
	// Flush returns whatever Encode still holds.
	Flush() ([]*fmp4.PartSample, error)
}

// EncoderFactory builds an Encoder from writer input settings.
type EncoderFactory func(settings recorder.OutputSettings) (Encoder, error)

// AudioFormat is the sample rate and channel count read from output settings.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// ParseAudioFormat reads sample_rate and channels from settings.
func ParseAudioFormat(settings recorder.OutputSettings) (AudioFormat, error) {
	rate, ok := settings.Int(recorder.SettingSampleRate)
	if !ok || rate <= 0 {
		return AudioFormat{}, fmt.Errorf("%w: %s", ErrInvalidSettings, recorder.SettingSampleRate)
	}
	channels, ok := settings.Int(recorder.SettingChannels)
	if !ok || channels <= 0 {
		return AudioFormat{}, fmt.Errorf("%w: %s", ErrInvalidSettings, recorder.SettingChannels)
	}
	return AudioFormat{SampleRate: rate, Channels: channels}, nil
}

// Check rejects buffers captured in a different format.
func (f AudioFormat) Check(buf *recorder.SampleBuffer) error {
	if buf.SampleRate != f.SampleRate || buf.Channels != f.Channels {
		return fmt.Errorf("%w: got %d Hz/%d ch, want %d Hz/%d ch",
			ErrFormatMismatch, buf.SampleRate, buf.Channels, f.SampleRate, f.Channels)
	}
	return nil
}

// lpcmEncoder stores every buffer as one little-endian 16-bit sample.
type lpcmEncoder struct {
	format AudioFormat
}

// NewLPCMEncoder is the EncoderFactory for FormatLPCM.
func NewLPCMEncoder(settings recorder.OutputSettings) (Encoder, error) {
	format, err := ParseAudioFormat(settings)
	if err != nil {
		return nil, err
	}
	return &lpcmEncoder{format: format}, nil
}

func (e *lpcmEncoder) Codec() fmp4.Codec {
	return &fmp4.CodecLPCM{
		LittleEndian: true,
		BitDepth:     16,
		SampleRate:   e.format.SampleRate,
		ChannelCount: e.format.Channels,
	}
}

func (e *lpcmEncoder) TimeScale() uint32 { return uint32(e.format.SampleRate) }

func (e *lpcmEncoder) Encode(buf *recorder.SampleBuffer) ([]*fmp4.PartSample, error) {
	if err := e.format.Check(buf); err != nil {
		return nil, err
	}
	frames := buf.Frames()
	if frames == 0 {
		return nil, nil
	}
	payload := make([]byte, 2*frames*buf.Channels)
	for i, s := range buf.Data[:frames*buf.Channels] {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(s))
	}
	return []*fmp4.PartSample{{Duration: uint32(frames), Payload: payload}}, nil
}

func (e *lpcmEncoder) Flush() ([]*fmp4.PartSample, error) { return nil, nil }
