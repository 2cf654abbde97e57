// Package mic captures from the host's audio input devices through PortAudio.
package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"hls-recorder/internal/capture"
	"hls-recorder/internal/recorder"
)

// maxChannels caps the channels opened on multi-input interfaces.
const maxChannels = 2

var ErrDeviceNotFound = errors.New("input device not found")

// Provider implements capture.Provider for PortAudio input devices.
type Provider struct {
	log *slog.Logger
}

// New initializes PortAudio. Close must be called to release it.
func New(log *slog.Logger) (*Provider, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	return &Provider{log: log}, nil
}

func (p *Provider) Close() error {
	return portaudio.Terminate()
}

// Devices lists the devices that have input channels.
func (p *Provider) Devices() ([]recorder.Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var out []recorder.Device
	for _, info := range infos {
		if info.MaxInputChannels > 0 {
			out = append(out, toDevice(info))
		}
	}
	return out, nil
}

func (p *Provider) DefaultInputDevice() (recorder.Device, bool) {
	info, err := portaudio.DefaultInputDevice()
	if err != nil || info == nil || info.MaxInputChannels <= 0 {
		if err != nil {
			p.log.Warn("no default input device", "error", err)
		}
		return recorder.Device{}, false
	}
	return toDevice(info), true
}

// SupportsSampleRate asks the default input device whether it can run at rate.
func (p *Provider) SupportsSampleRate(rate int) bool {
	info, err := portaudio.DefaultInputDevice()
	if err != nil || info == nil {
		return false
	}
	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = channelsOf(info)
	params.SampleRate = float64(rate)
	return portaudio.IsFormatSupported(params, make([]int16, 1)) == nil
}

func (p *Provider) Open(d recorder.Device, sp capture.StreamParams) (capture.Source, error) {
	info, err := lookup(d.ID)
	if err != nil {
		return nil, err
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = sp.Channels
	params.SampleRate = float64(sp.SampleRate)
	params.FramesPerBuffer = sp.FramesPerBuffer

	buf := make([]int16, sp.FramesPerBuffer*sp.Channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", info.Name, err)
	}
	return &source{log: p.log, stream: stream, buf: buf}, nil
}

func lookup(id string) (*portaudio.DeviceInfo, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.MaxInputChannels > 0 && deviceID(info) == id {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
}

func toDevice(info *portaudio.DeviceInfo) recorder.Device {
	return recorder.Device{
		ID:         deviceID(info),
		Name:       info.Name,
		SampleRate: int(info.DefaultSampleRate),
		Channels:   channelsOf(info),
	}
}

func deviceID(info *portaudio.DeviceInfo) string {
	if info.HostApi != nil {
		return info.HostApi.Name + ":" + info.Name
	}
	return info.Name
}

func channelsOf(info *portaudio.DeviceInfo) int {
	return min(info.MaxInputChannels, maxChannels)
}

type source struct {
	log    *slog.Logger
	stream *portaudio.Stream
	buf    []int16
}

func (s *source) Start() error { return s.stream.Start() }
func (s *source) Stop() error  { return s.stream.Stop() }
func (s *source) Close() error { return s.stream.Close() }

// Read blocks for one buffer. Input overflows lose audio but keep the stream
// alive.
func (s *source) Read(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, err
		}
		s.log.Warn("input overflowed")
	}
	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	return out, nil
}
