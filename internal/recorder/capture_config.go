package recorder

import (
	"fmt"
	"log/slog"
)

// configureCapture assembles the capture side of a session: preset, one
// input device and one audio data output delivered through queue.
func configureCapture(log *slog.Logger, capture Capture, cfg Configuration, sink BufferSink, queue Dispatcher) (Connection, error) {
	if !capture.SelectPreset(cfg.Preset) {
		log.Info("capture preset unsupported, keeping pipeline default",
			slog.String("preset", cfg.Preset.String()))
	}

	device, ok := capture.DefaultInputDevice()
	if !ok {
		return nil, ErrMicrophoneDeviceNotFound
	}
	if err := capture.AddInput(device); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotAddMicrophoneInput, err)
	}

	conn, err := capture.AddOutput(sink, queue)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotAddAudioDataOutput, err)
	}

	log.Debug("capture configured",
		slog.String("device_id", device.ID),
		slog.String("device_name", device.Name),
		slog.Int("channels", device.Channels))
	return conn, nil
}
