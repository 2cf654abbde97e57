package recorder

import (
	"fmt"
	"maps"
)

const mediaTypeAudio = "audio"

// configureWriter adds the real-time audio input, applies the container
// parameters and starts writing at the configured start time offset.
func configureWriter(muxer Muxer, cfg Configuration, recommended OutputSettings, handler SegmentHandler) error {
	settings, err := resolveOutputSettings(cfg.OutputSettings, recommended)
	if err != nil {
		return err
	}

	spec := InputSpec{
		MediaType:                  mediaTypeAudio,
		Settings:                   settings,
		ExpectsMediaDataInRealTime: true,
	}
	if !muxer.AddInput(spec) {
		return ErrCannotAddWriterInput
	}

	muxer.Configure(ContainerConfig{
		ContentType:             OutputContentType,
		Profile:                 OutputFileTypeProfile,
		SegmentInterval:         cfg.SegmentInterval(),
		InitialSegmentStartTime: cfg.StartTimeOffset,
		OptimizeForNetworkUse:   cfg.ShouldOptimizeForNetworkUse,
	})
	muxer.SetSegmentHandler(handler)

	if !muxer.StartWriting() {
		if err := muxer.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCannotStartWriting, err)
		}
		return ErrCannotStartWriting
	}
	muxer.StartSession(cfg.StartTimeOffset)
	return nil
}

// resolveOutputSettings completes explicit settings with the sample rate and
// channel count of the capture input. An explicit value that differs from the
// input is refused: the writer does not resample or remix.
func resolveOutputSettings(explicit, recommended OutputSettings) (OutputSettings, error) {
	if explicit == nil {
		return recommended, nil
	}
	settings := maps.Clone(explicit)
	for _, key := range []string{SettingSampleRate, SettingChannels} {
		want, ok := recommended.Int(key)
		if !ok {
			continue
		}
		got, set := explicit.Int(key)
		if !set {
			settings[key] = want
			continue
		}
		if got != want {
			return nil, fmt.Errorf("%w: %s %d does not match capture input %d", ErrCannotAddWriterInput, key, got, want)
		}
	}
	return settings, nil
}
