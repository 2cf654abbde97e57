package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"hls-recorder/internal/recorder"
)

var (
	ErrInvalidWAV     = errors.New("not a valid WAV file")
	ErrFormatMismatch = errors.New("requested stream format does not match the input")
)

// WAVProvider exposes a single input device backed by a WAV file. Buffers are
// paced in real time.
type WAVProvider struct {
	log        *slog.Logger
	path       string
	loop       bool
	sampleRate int
	channels   int
	bitDepth   int
}

// NewWAVProvider validates the file header. When loop is set the file is
// replayed from the start when it ends.
func NewWAVProvider(path string, loop bool, log *slog.Logger) (*WAVProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	if dec.NumChans == 0 || dec.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %s has no audio format", ErrInvalidWAV, path)
	}

	p := &WAVProvider{
		log:        log,
		path:       path,
		loop:       loop,
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
	}
	log.Debug("loaded wav input",
		"path", path,
		"sample_rate", p.sampleRate,
		"channels", p.channels,
		"bit_depth", p.bitDepth)
	return p, nil
}

func (p *WAVProvider) DefaultInputDevice() (recorder.Device, bool) {
	return recorder.Device{
		ID:         "wav:" + filepath.Base(p.path),
		Name:       p.path,
		SampleRate: p.sampleRate,
		Channels:   p.channels,
	}, true
}

// SupportsSampleRate reports whether rate is the file's own rate. Files are
// never resampled.
func (p *WAVProvider) SupportsSampleRate(rate int) bool {
	return rate == p.sampleRate
}

func (p *WAVProvider) Open(_ recorder.Device, params StreamParams) (Source, error) {
	if params.SampleRate != p.sampleRate || params.Channels != p.channels {
		return nil, fmt.Errorf("%w: want %d Hz/%d ch, file is %d Hz/%d ch",
			ErrFormatMismatch, params.SampleRate, params.Channels, p.sampleRate, p.channels)
	}
	if params.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("%w: frames per buffer must be positive", ErrFormatMismatch)
	}

	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, err := wav.NewDecoder(f).FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}

	interval := time.Duration(params.FramesPerBuffer) * time.Second / time.Duration(params.SampleRate)
	return &wavSource{
		samples:  toInt16(pcm, p.bitDepth),
		chunk:    params.FramesPerBuffer * params.Channels,
		interval: interval,
		loop:     p.loop,
	}, nil
}

// toInt16 scales decoded samples of the given bit depth to signed 16 bits.
func toInt16(buf *goaudio.IntBuffer, bitDepth int) []int16 {
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case bitDepth == 8:
			out[i] = int16((v - 128) << 8)
		case bitDepth > 16:
			out[i] = int16(v >> (bitDepth - 16))
		default:
			out[i] = int16(v)
		}
	}
	return out
}

type wavSource struct {
	samples  []int16
	chunk    int
	interval time.Duration
	loop     bool
	pos      int
	ticker   *time.Ticker
}

func (s *wavSource) Start() error {
	s.ticker = time.NewTicker(s.interval)
	return nil
}

func (s *wavSource) Read(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.samples) {
		if !s.loop || len(s.samples) == 0 {
			return nil, io.EOF
		}
		s.pos = 0
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
	}

	end := min(s.pos+s.chunk, len(s.samples))
	out := make([]int16, s.chunk)
	copy(out, s.samples[s.pos:end])
	s.pos = end
	return out, nil
}

func (s *wavSource) Stop() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	return nil
}

func (s *wavSource) Close() error {
	s.samples = nil
	return nil
}
