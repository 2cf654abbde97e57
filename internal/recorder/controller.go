package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"hls-recorder/internal/platform/metrics"
)

// State is the lifecycle state of a Controller.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CaptureFactory returns a fresh capture pipeline for a new session.
type CaptureFactory func() Capture

// MuxerFactory returns a fresh muxer for a new session.
type MuxerFactory func() Muxer

// session owns the collaborators of one recording. It is created by Start and
// released exactly once, either by Stop or by a runtime failure.
type session struct {
	capture   Capture
	conn      Connection
	muxer     Muxer
	queue     *serialQueue
	seq       *sequencer
	startedAt time.Time
}

// Controller drives a capture pipeline and an HLS muxer as one recording
// session and forwards their output to a Delegate.
type Controller struct {
	log        *slog.Logger
	metrics    *metrics.Metrics
	gate       *PermissionGate
	newCapture CaptureFactory
	newMuxer   MuxerFactory

	// mu serializes Start and Stop. Callback paths never take it.
	mu       sync.Mutex
	active   atomic.Pointer[session]
	delegate atomic.Pointer[weak.Pointer[Delegate]]

	stateMu sync.Mutex
	state   State
	err     error
}

// NewController returns an idle controller. Metrics may be nil.
func NewController(perms Permissions, newCapture CaptureFactory, newMuxer MuxerFactory, log *slog.Logger, m *metrics.Metrics) *Controller {
	return &Controller{
		log:        log,
		metrics:    m,
		gate:       NewPermissionGate(perms),
		newCapture: newCapture,
		newMuxer:   newMuxer,
	}
}

// SetDelegate installs d without taking ownership of it: once the caller drops
// its last reference, events are no longer delivered. Passing nil clears it.
func (c *Controller) SetDelegate(d *Delegate) {
	if d == nil {
		c.delegate.Store(nil)
		return
	}
	ref := weak.Make(d)
	c.delegate.Store(&ref)
}

func (c *Controller) currentDelegate() *Delegate {
	ref := c.delegate.Load()
	if ref == nil {
		return nil
	}
	return ref.Value()
}

// PermissionStatus returns the record permission without prompting.
func (c *Controller) PermissionStatus() PermissionStatus {
	return c.gate.Check()
}

// RequestRecordPermission prompts for record permission if it is undetermined.
func (c *Controller) RequestRecordPermission(ctx context.Context) (bool, error) {
	return c.gate.Request(ctx)
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Err returns the reason of the last failure, or nil.
func (c *Controller) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.err
}

func (c *Controller) setState(s State, err error) {
	c.stateMu.Lock()
	c.state = s
	c.err = err
	c.stateMu.Unlock()
	if c.metrics != nil {
		c.metrics.SetRecording(s == StateRunning)
	}
}

// IsRecording reports whether capture is running and the muxer is writing.
func (c *Controller) IsRecording() bool {
	s := c.active.Load()
	return s != nil && s.capture.IsRunning() && s.muxer.Status() == WriterStatusWriting
}

// Start checks permission, assembles the capture and writer pipelines and
// starts capturing. Assembly is all-or-nothing: on error nothing is left
// running and the state is unchanged.
func (c *Controller) Start(ctx context.Context, cfg Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active.Load() != nil {
		return ErrAlreadyRunning
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := c.gate.authorize(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s := &session{
		capture: c.newCapture(),
		muxer:   c.newMuxer(),
		queue:   newSerialQueue(bufferQueueSize),
	}
	s.seq = newSequencer(c.emitSegment)
	fail := func(err error) { c.abort(s, runtimeError(err)) }
	s.capture.SetFailureHandler(fail)
	s.muxer.SetFailureHandler(fail)

	sink := func(buf *SampleBuffer, from Connection) { c.handleBuffer(s, buf, from) }
	conn, err := configureCapture(c.log, s.capture, cfg, sink, s.queue)
	if err != nil {
		s.queue.Close()
		c.log.Warn("capture assembly failed", slog.String("error", err.Error()))
		return err
	}
	s.conn = conn

	recommended := s.capture.RecommendedOutputSettings(OutputContentType)
	if err := configureWriter(s.muxer, cfg, recommended, s.seq.handle); err != nil {
		s.queue.Close()
		if s.muxer.Status() == WriterStatusWriting {
			s.muxer.CancelWriting()
		}
		c.log.Warn("writer assembly failed", slog.String("error", err.Error()))
		return err
	}

	prevState, prevErr := c.State(), c.Err()
	s.startedAt = time.Now()
	c.setState(StateRunning, nil)
	c.active.Store(s)

	if err := s.capture.StartRunning(); err != nil {
		if c.active.CompareAndSwap(s, nil) {
			s.muxer.CancelWriting()
			c.release(s)
			c.setState(prevState, prevErr)
		}
		c.log.Warn("capture failed to start", slog.String("error", err.Error()))
		return fmt.Errorf("start capture: %w", err)
	}

	if c.metrics != nil {
		c.metrics.IncRecordingsStarted()
	}
	c.log.Info("recording started",
		slog.String("preset", cfg.Preset.String()),
		slog.Int("segment_duration", cfg.SegmentDuration),
		slog.Duration("start_time_offset", cfg.StartTimeOffset))
	return nil
}

// Stop halts capture, drains the muxer and waits for it to finalize. It is a
// no-op when no session is running. Once called it runs to completion: the
// context's cancellation is ignored. Session resources are released on every
// path.
func (c *Controller) Stop(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.active.Load()
	if s == nil || !c.active.CompareAndSwap(s, nil) {
		return nil
	}

	defer func() {
		c.release(s)
		if err != nil {
			c.setState(StateFailed, err)
			c.log.Error("recording finished with error", slog.String("error", err.Error()))
			return
		}
		c.setState(StateStopped, nil)
		c.log.Info("recording stopped", slog.Duration("duration", time.Since(s.startedAt)))
	}()

	s.capture.StopRunning()
	s.queue.Close()
	s.muxer.MarkInputFinished()
	s.muxer.FinishWriting(context.WithoutCancel(ctx))

	if s.muxer.Status() != WriterStatusCompleted {
		s.muxer.CancelWriting()
		if cause := s.muxer.Err(); cause != nil {
			return fmt.Errorf("%w: %w", ErrFinishWritingWithError, cause)
		}
		return ErrFinishWritingWithError
	}
	return nil
}

// abort tears a session down after a failure on the buffer path, the segment
// path or the capture source. Only the first caller for a session has any
// effect. No segment reaches the delegate after the error.
func (c *Controller) abort(s *session, err error) {
	if !c.active.CompareAndSwap(s, nil) {
		return
	}
	s.seq.close()
	c.log.Error("recording aborted", slog.String("error", err.Error()))
	if c.metrics != nil {
		c.metrics.IncRuntimeErrors()
	}

	c.currentDelegate().error(err)

	s.queue.Close()
	s.capture.StopRunning()
	s.muxer.CancelWriting()
	c.release(s)
	c.setState(StateFailed, err)
}

// release is the single teardown path for session-owned state.
func (c *Controller) release(s *session) {
	s.queue.Close()
	s.seq.reset()
}

func (c *Controller) emitSegment(seg Segment) {
	if c.metrics != nil {
		kind := SegmentKindSeparable
		if seg.IsInitializationSegment {
			kind = SegmentKindInitialization
		}
		c.metrics.IncSegmentsEmitted(kind.String(), len(seg.Data))
	}
	c.currentDelegate().segment(seg)
}
