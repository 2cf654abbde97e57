package hls

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"hls-recorder/internal/platform/metrics"
	"hls-recorder/internal/recorder"
)

// retainedStreams is how many recorded streams keep their payloads cached,
// the current one included.
const retainedStreams = 4

// Controller is the recording controller as seen by Recordings.
type Controller interface {
	Start(ctx context.Context, cfg recorder.Configuration) error
	Stop(ctx context.Context) error
	SetDelegate(d *recorder.Delegate)
	State() recorder.State
	Err() error
	PermissionStatus() recorder.PermissionStatus
	RequestRecordPermission(ctx context.Context) (bool, error)
}

// StartOptions overrides the default session configuration. Zero values
// keep the defaults.
type StartOptions struct {
	SegmentDuration int    `json:"segment_duration,omitempty"`
	Preset          string `json:"preset,omitempty"`
}

// RecordingStatus is the JSON view of the recorder and its current stream.
type RecordingStatus struct {
	State        string  `json:"state"`
	Permission   string  `json:"permission"`
	StreamID     string  `json:"stream_id,omitempty"`
	Playlist     string  `json:"playlist,omitempty"`
	Segments     int64   `json:"segments"`
	Buffers      int64   `json:"buffers"`
	PeakLevel    float32 `json:"peak_level"`
	AverageLevel float32 `json:"average_level"`
	Error        string  `json:"error,omitempty"`
}

// Recordings runs recording sessions and publishes each one as a new stream.
type Recordings struct {
	ctrl    Controller
	svc     *Service
	cache   *SegmentCache
	log     *slog.Logger
	metrics *metrics.Metrics
	base    recorder.Configuration
	newID   func() StreamID

	mu      sync.Mutex
	current *Publisher
	history []StreamID
}

// NewRecordings returns Recordings starting sessions from base. Metrics may be nil.
func NewRecordings(ctrl Controller, svc *Service, cache *SegmentCache, base recorder.Configuration, log *slog.Logger, m *metrics.Metrics) *Recordings {
	return &Recordings{
		ctrl:    ctrl,
		svc:     svc,
		cache:   cache,
		log:     log,
		metrics: m,
		base:    base,
		newID:   func() StreamID { return StreamID(uuid.NewString()) },
	}
}

// PlaylistPath returns the URL path of a recorded stream's playlist.
func PlaylistPath(id StreamID) string {
	return fmt.Sprintf("/streams/%s/renditions/%s/playlist.m3u8", id, AudioRendition)
}

// RequestPermission prompts for record permission if it is undetermined.
func (r *Recordings) RequestPermission(ctx context.Context) (bool, error) {
	return r.ctrl.RequestRecordPermission(ctx)
}

// Start begins a session published under a new stream ID.
func (r *Recordings) Start(ctx context.Context, opts StartOptions) (StreamID, error) {
	cfg, err := r.configure(opts)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctrl.State() == recorder.StateRunning {
		return "", recorder.ErrAlreadyRunning
	}

	pub := NewPublisher(r.newID(), r.svc, r.cache, cfg.SegmentInterval(), r.log, r.metrics)
	if err := r.svc.OpenRendition(pub.Stream(), AudioRendition); err != nil {
		return "", err
	}

	r.ctrl.SetDelegate(pub.Delegate())
	if err := r.ctrl.Start(ctx, cfg); err != nil {
		if r.current != nil {
			r.ctrl.SetDelegate(r.current.Delegate())
		} else {
			r.ctrl.SetDelegate(nil)
		}
		_ = r.svc.EndStream(pub.Stream())
		return "", err
	}

	r.current = pub
	r.retainLocked(pub.Stream())
	r.log.Info("recording published",
		slog.String("stream_id", string(pub.Stream())),
		slog.String("playlist", PlaylistPath(pub.Stream())))
	return pub.Stream(), nil
}

// Stop ends the current session and its stream. The stream's segments stay
// available until enough newer recordings push them out. Without a running
// session it returns an empty ID and leaves every stream alone.
func (r *Recordings) Stop(ctx context.Context) (StreamID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	running := r.ctrl.State() == recorder.StateRunning
	err := r.ctrl.Stop(ctx)
	if !running || r.current == nil {
		return "", err
	}

	id := r.current.Stream()
	if endErr := r.svc.EndStream(id); endErr != nil {
		r.log.Error("end stream failed", slog.String("stream_id", string(id)), slog.String("error", endErr.Error()))
	}
	if r.metrics != nil {
		r.metrics.IncStreamsEnded()
	}
	return id, err
}

// Status reports the controller state and the current stream's statistics.
func (r *Recordings) Status() RecordingStatus {
	r.mu.Lock()
	pub := r.current
	r.mu.Unlock()

	st := RecordingStatus{
		State:        r.ctrl.State().String(),
		Permission:   r.ctrl.PermissionStatus().String(),
		PeakLevel:    silenceLevel,
		AverageLevel: silenceLevel,
	}
	if err := r.ctrl.Err(); err != nil {
		st.Error = err.Error()
	}
	if pub == nil {
		return st
	}

	stats := pub.Stats()
	st.StreamID = string(pub.Stream())
	st.Playlist = PlaylistPath(pub.Stream())
	st.Segments = stats.Segments
	st.Buffers = stats.Buffers
	st.PeakLevel = stats.PeakLevel
	st.AverageLevel = stats.AverageLevel
	if st.Error == "" && stats.Err != nil {
		st.Error = stats.Err.Error()
	}
	return st
}

func (r *Recordings) configure(opts StartOptions) (recorder.Configuration, error) {
	cfg := r.base
	if opts.SegmentDuration != 0 {
		cfg.SegmentDuration = opts.SegmentDuration
	}
	if opts.Preset != "" {
		p, err := recorder.ParsePreset(opts.Preset)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", recorder.ErrInvalidConfiguration, err)
		}
		cfg.Preset = p
	}
	return cfg, cfg.Validate()
}

// retainLocked drops cached payloads of streams older than retainedStreams.
func (r *Recordings) retainLocked(id StreamID) {
	r.history = append(r.history, id)
	for len(r.history) > retainedStreams {
		r.cache.RemoveStream(r.history[0])
		r.history = r.history[1:]
	}
}
