package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"hls-recorder/internal/recorder"
)

var (
	ErrInputAlreadyAdded  = errors.New("capture input already added")
	ErrOutputAlreadyAdded = errors.New("capture output already added")
	ErrNoInput            = errors.New("capture has no input")
	ErrNoOutput           = errors.New("capture has no output")
	ErrInvalidDevice      = errors.New("device has no input channels")
	ErrSourceEnded        = errors.New("capture source ended")
)

// StreamParams describes how a Source is opened.
type StreamParams struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// Source is an opened input stream delivering interleaved int16 buffers.
type Source interface {
	Start() error
	// Read blocks until one buffer is available. io.EOF ends the stream.
	Read(ctx context.Context) ([]int16, error)
	Stop() error
	Close() error
}

// Provider lists input devices and opens sources on them.
type Provider interface {
	DefaultInputDevice() (recorder.Device, bool)
	SupportsSampleRate(rate int) bool
	Open(device recorder.Device, params StreamParams) (Source, error)
}

// Pipeline implements recorder.Capture over a Provider. A Pipeline serves a
// single session: one input, one output.
type Pipeline struct {
	log      *slog.Logger
	provider Provider

	mu      sync.Mutex
	tier    *Tier
	device  *recorder.Device
	sink    recorder.BufferSink
	queue   recorder.Dispatcher
	conn    *Connection
	source  Source
	running bool
	failed  func(error)
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPipeline returns an unconfigured pipeline. Without a preset the input
// runs at the device's native sample rate.
func NewPipeline(provider Provider, log *slog.Logger) *Pipeline {
	return &Pipeline{log: log, provider: provider}
}

// SelectPreset implements recorder.Capture.
func (p *Pipeline) SelectPreset(preset recorder.Preset) bool {
	t, ok := TierFor(preset)
	if !ok || !p.provider.SupportsSampleRate(t.SampleRate) {
		return false
	}
	p.mu.Lock()
	p.tier = &t
	p.mu.Unlock()
	return true
}

// DefaultInputDevice implements recorder.Capture.
func (p *Pipeline) DefaultInputDevice() (recorder.Device, bool) {
	return p.provider.DefaultInputDevice()
}

// AddInput implements recorder.Capture.
func (p *Pipeline) AddInput(d recorder.Device) error {
	if d.Channels <= 0 {
		return ErrInvalidDevice
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		return ErrInputAlreadyAdded
	}
	p.device = &d
	return nil
}

// AddOutput implements recorder.Capture.
func (p *Pipeline) AddOutput(sink recorder.BufferSink, queue recorder.Dispatcher) (recorder.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil, ErrNoInput
	}
	if p.conn != nil {
		return nil, ErrOutputAlreadyAdded
	}
	p.sink = sink
	p.queue = queue
	p.conn = newConnection(p.device.Channels)
	return p.conn, nil
}

// RecommendedOutputSettings returns LPCM settings matching the opened input.
// Only the mp4 content type has a recommendation.
func (p *Pipeline) RecommendedOutputSettings(contentType string) recorder.OutputSettings {
	if contentType != recorder.OutputContentType {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return nil
	}
	t := p.activeTier()
	return recorder.OutputSettings{
		recorder.SettingFormat:     "lpcm",
		recorder.SettingSampleRate: t.SampleRate,
		recorder.SettingChannels:   p.device.Channels,
	}
}

// activeTier must be called with mu held and an input added.
func (p *Pipeline) activeTier() Tier {
	if p.tier != nil {
		return *p.tier
	}
	return Tier{SampleRate: p.device.SampleRate, BufferDuration: defaultBufferDuration}
}

// SetFailureHandler implements recorder.Capture. h is called once the read
// loop has exited on its own, never after StopRunning.
func (p *Pipeline) SetFailureHandler(h func(error)) {
	p.mu.Lock()
	p.failed = h
	p.mu.Unlock()
}

// StartRunning opens the source and starts delivering buffers to the output.
func (p *Pipeline) StartRunning() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if p.device == nil {
		return ErrNoInput
	}
	if p.conn == nil {
		return ErrNoOutput
	}

	t := p.activeTier()
	params := StreamParams{
		SampleRate:      t.SampleRate,
		Channels:        p.device.Channels,
		FramesPerBuffer: t.FramesPerBuffer(),
	}
	src, err := p.provider.Open(*p.device, params)
	if err != nil {
		return err
	}
	if err := src.Start(); err != nil {
		src.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.source = src
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	go p.readLoop(ctx, src, params, p.done)

	p.log.Info("capture started",
		"device", p.device.Name,
		"sample_rate", params.SampleRate,
		"channels", params.Channels,
		"frames_per_buffer", params.FramesPerBuffer)
	return nil
}

func (p *Pipeline) readLoop(ctx context.Context, src Source, params StreamParams, done chan struct{}) {
	err := p.read(ctx, src, params)

	p.mu.Lock()
	p.running = false
	h := p.failed
	p.mu.Unlock()
	close(done)

	if err != nil && h != nil {
		h(err)
	}
}

// read delivers buffers until the source fails or ctx is cancelled. It
// returns nil on cancellation.
func (p *Pipeline) read(ctx context.Context, src Source, params StreamParams) error {
	sink, queue, conn := p.sink, p.queue, p.conn
	var frames int64
	for {
		samples, err := src.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, io.EOF):
				p.log.Info("capture source ended")
				return ErrSourceEnded
			default:
				p.log.Error("capture read failed", "error", err)
				return fmt.Errorf("capture read: %w", err)
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		buf := &recorder.SampleBuffer{
			PresentationTime: time.Duration(frames) * time.Second / time.Duration(params.SampleRate),
			SampleRate:       params.SampleRate,
			Channels:         params.Channels,
			Data:             samples,
		}
		frames += int64(buf.Frames())

		queue.Dispatch(func() {
			conn.meter(buf)
			sink(buf, conn)
		})
	}
}

// StopRunning halts delivery and closes the source. It may be called from a
// buffer callback.
func (p *Pipeline) StopRunning() {
	p.mu.Lock()
	cancel, done, src := p.cancel, p.done, p.source
	p.cancel, p.source = nil, nil
	p.running = false
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	if err := src.Stop(); err != nil {
		p.log.Warn("capture stop failed", "error", err)
	}
	if err := src.Close(); err != nil {
		p.log.Warn("capture close failed", "error", err)
	}
	p.log.Info("capture stopped")
}

// IsRunning implements recorder.Capture.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
