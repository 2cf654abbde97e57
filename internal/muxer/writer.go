// Package muxer writes captured audio as HLS fragmented-MP4 segments.
package muxer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bluenviron/mediacommon/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/pkg/formats/fmp4/seekablebuffer"

	"hls-recorder/internal/recorder"
)

const (
	trackID          = 1
	defaultQueueSize = 256
)

var (
	ErrNoInput            = errors.New("writer has no input")
	ErrInputAlreadyAdded  = errors.New("writer input already added")
	ErrUnsupportedMedia   = errors.New("unsupported media type")
	ErrUnsupportedContent = errors.New("unsupported container content type")
	ErrInvalidInterval    = errors.New("segment interval must be positive")
	ErrNotWriting         = errors.New("writer is not writing")
	ErrSessionNotStarted  = errors.New("writer session not started")
	ErrQueueFull          = errors.New("writer queue is full")
)

// Option configures a Writer.
type Option func(*Writer)

// WithEncoder registers factory for the given output settings format.
func WithEncoder(format string, factory EncoderFactory) Option {
	return func(w *Writer) { w.encoders[format] = factory }
}

// WithQueueSize sets how many buffers may wait for the writer goroutine.
func WithQueueSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// Writer implements recorder.Muxer. It accepts one audio input, encodes it on
// its own goroutine and cuts a media segment every segment interval. The
// initialization segment is emitted right before the first media segment.
type Writer struct {
	log       *slog.Logger
	encoders  map[string]EncoderFactory
	queueSize int

	mu            sync.Mutex
	status        recorder.WriterStatus
	err           error
	enc           Encoder
	cfg           recorder.ContainerConfig
	handler       recorder.SegmentHandler
	onFailure     func(error)
	started       bool
	inputFinished bool

	buffers chan *recorder.SampleBuffer
	quit    chan struct{}
	done    chan struct{}
	stop    sync.Once
}

// New returns a writer that knows FormatLPCM plus any encoders passed as options.
func New(log *slog.Logger, opts ...Option) *Writer {
	w := &Writer{
		log:       log,
		encoders:  map[string]EncoderFactory{FormatLPCM: NewLPCMEncoder},
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AddInput accepts a single audio input whose format has a registered encoder.
func (w *Writer) AddInput(spec recorder.InputSpec) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	fail := func(err error) bool {
		w.err = err
		w.log.Warn("writer input rejected", "error", err)
		return false
	}
	if w.enc != nil {
		return fail(ErrInputAlreadyAdded)
	}
	if w.status != recorder.WriterStatusUnknown {
		return fail(ErrNotWriting)
	}
	if spec.MediaType != "audio" {
		return fail(fmt.Errorf("%w: %q", ErrUnsupportedMedia, spec.MediaType))
	}

	format, ok := spec.Settings.String(recorder.SettingFormat)
	if !ok {
		format = FormatLPCM
	}
	factory, ok := w.encoders[format]
	if !ok {
		return fail(fmt.Errorf("%w: %q", ErrUnsupportedFormat, format))
	}
	enc, err := factory(spec.Settings)
	if err != nil {
		return fail(err)
	}
	w.enc = enc
	return true
}

func (w *Writer) Configure(cfg recorder.ContainerConfig) {
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
}

func (w *Writer) SetSegmentHandler(h recorder.SegmentHandler) {
	w.mu.Lock()
	w.handler = h
	w.mu.Unlock()
}

// SetFailureHandler implements recorder.Muxer. h runs on the writer goroutine
// after it has exited, when encoding or segmenting a queued buffer failed.
func (w *Writer) SetFailureHandler(h func(error)) {
	w.mu.Lock()
	w.onFailure = h
	w.mu.Unlock()
}

// StartWriting validates the container configuration and starts the writer
// goroutine.
func (w *Writer) StartWriting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	switch {
	case w.status != recorder.WriterStatusUnknown:
		err = ErrNotWriting
	case w.enc == nil:
		err = ErrNoInput
	case w.cfg.ContentType != recorder.OutputContentType:
		err = fmt.Errorf("%w: %q", ErrUnsupportedContent, w.cfg.ContentType)
	case w.cfg.SegmentInterval <= 0:
		err = ErrInvalidInterval
	}
	if err != nil {
		w.status = recorder.WriterStatusFailed
		w.err = err
		return false
	}

	w.buffers = make(chan *recorder.SampleBuffer, w.queueSize)
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	w.status = recorder.WriterStatusWriting
	w.err = nil

	go w.run(newSegmenter(w.enc, w.cfg, w.handler))

	w.log.Debug("writer started",
		"profile", w.cfg.Profile,
		"segment_interval", w.cfg.SegmentInterval,
		"initial_segment_start_time", w.cfg.InitialSegmentStartTime,
		"optimize_for_network_use", w.cfg.OptimizeForNetworkUse)
	return true
}

// StartSession opens the media timeline. Buffers are laid out contiguously
// from the container's initial segment start time.
func (w *Writer) StartSession(at time.Duration) {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	w.log.Debug("writer session started", "source_time", at)
}

func (w *Writer) IsReadyForMoreMediaData() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status == recorder.WriterStatusWriting && w.started && !w.inputFinished &&
		len(w.buffers) < cap(w.buffers)
}

// Append queues buf for encoding. A rejected buffer fails the writer, except
// after MarkInputFinished where late buffers are refused without side effects.
func (w *Writer) Append(buf *recorder.SampleBuffer) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.status != recorder.WriterStatusWriting || w.inputFinished {
		return false
	}
	var err error
	if !w.started {
		err = ErrSessionNotStarted
	}
	if err == nil {
		select {
		case w.buffers <- buf:
			return true
		default:
			err = ErrQueueFull
		}
	}
	w.failLocked(err)
	return false
}

// MarkInputFinished closes the input; buffers already queued are still written.
func (w *Writer) MarkInputFinished() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inputFinished || w.buffers == nil {
		return
	}
	w.inputFinished = true
	close(w.buffers)
}

// FinishWriting drains the queue, flushes the encoder and emits the final
// partial segment. It returns once the status is terminal or ctx is done.
func (w *Writer) FinishWriting(ctx context.Context) {
	w.MarkInputFinished()

	w.mu.Lock()
	done := w.done
	w.mu.Unlock()
	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
		w.mu.Lock()
		w.failLocked(ctx.Err())
		w.mu.Unlock()
		w.halt()
	}
}

// CancelWriting stops the writer goroutine and drops unwritten media.
func (w *Writer) CancelWriting() {
	w.mu.Lock()
	if w.status == recorder.WriterStatusWriting {
		w.status = recorder.WriterStatusCancelled
	}
	w.mu.Unlock()
	w.halt()
}

func (w *Writer) halt() {
	w.mu.Lock()
	quit, done := w.quit, w.done
	w.mu.Unlock()
	if quit == nil {
		return
	}
	w.stop.Do(func() { close(quit) })
	<-done
}

func (w *Writer) Status() recorder.WriterStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// failLocked reports whether it moved the writer to the failed status.
func (w *Writer) failLocked(err error) bool {
	if w.status != recorder.WriterStatusWriting {
		return false
	}
	w.status = recorder.WriterStatusFailed
	w.err = err
	w.log.Error("writer failed", "error", err)
	return true
}

// run owns the segmenter. The failure handler is called once done is closed,
// so it may cancel the writer itself.
func (w *Writer) run(s *segmenter) {
	err := w.loop(s)

	w.mu.Lock()
	h := w.onFailure
	w.mu.Unlock()
	close(w.done)

	if err != nil && h != nil {
		h(err)
	}
}

// loop returns the error that failed the writer, if this goroutine failed it.
func (w *Writer) loop(s *segmenter) error {
	for {
		select {
		case <-w.quit:
			return nil
		case buf, ok := <-w.buffers:
			if !ok {
				w.finish(s)
				return nil
			}
			if err := s.add(buf); err != nil {
				w.mu.Lock()
				failed := w.failLocked(err)
				w.mu.Unlock()
				if failed {
					return err
				}
				return nil
			}
		}
	}
}

func (w *Writer) finish(s *segmenter) {
	err := s.flush()

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.failLocked(err)
		return
	}
	if w.status == recorder.WriterStatusWriting {
		w.status = recorder.WriterStatusCompleted
	}
}

// segmenter accumulates encoded samples and cuts segments. It is owned by the
// writer goroutine.
type segmenter struct {
	enc       Encoder
	handler   recorder.SegmentHandler
	timeScale uint32
	interval  uint64

	initSent bool
	sequence uint32
	baseTime uint64
	pending  []*fmp4.PartSample
	duration uint64
}

func newSegmenter(enc Encoder, cfg recorder.ContainerConfig, handler recorder.SegmentHandler) *segmenter {
	ts := enc.TimeScale()
	return &segmenter{
		enc:       enc,
		handler:   handler,
		timeScale: ts,
		interval:  toTimeScale(cfg.SegmentInterval, ts),
		baseTime:  toTimeScale(cfg.InitialSegmentStartTime, ts),
	}
}

func (s *segmenter) add(buf *recorder.SampleBuffer) error {
	samples, err := s.enc.Encode(buf)
	if err != nil {
		return err
	}
	return s.push(samples)
}

func (s *segmenter) push(samples []*fmp4.PartSample) error {
	for _, sample := range samples {
		s.pending = append(s.pending, sample)
		s.duration += uint64(sample.Duration)
		if s.duration >= s.interval {
			if err := s.cut(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *segmenter) flush() error {
	samples, err := s.enc.Flush()
	if err != nil {
		return err
	}
	if err := s.push(samples); err != nil {
		return err
	}
	if len(s.pending) == 0 {
		return nil
	}
	return s.cut()
}

func (s *segmenter) cut() error {
	if !s.initSent {
		if err := s.emitInit(); err != nil {
			return err
		}
	}

	part := fmp4.Part{
		SequenceNumber: s.sequence,
		Tracks: []*fmp4.PartTrack{{
			ID:       trackID,
			BaseTime: s.baseTime,
			Samples:  s.pending,
		}},
	}
	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("marshal segment %d: %w", s.sequence, err)
	}

	report := &recorder.SegmentReport{
		Kind: recorder.SegmentKindSeparable,
		Tracks: []recorder.TrackReport{{
			TrackID:                  trackID,
			MediaType:                "audio",
			EarliestPresentationTime: fromTimeScale(s.baseTime, s.timeScale),
			Duration:                 fromTimeScale(s.duration, s.timeScale),
		}},
	}

	s.sequence++
	s.baseTime += s.duration
	s.pending = nil
	s.duration = 0

	s.emit(buf.Bytes(), recorder.SegmentKindSeparable, report)
	return nil
}

func (s *segmenter) emitInit() error {
	ini := fmp4.Init{
		Tracks: []*fmp4.InitTrack{{
			ID:        trackID,
			TimeScale: s.timeScale,
			Codec:     s.enc.Codec(),
		}},
	}
	var buf seekablebuffer.Buffer
	if err := ini.Marshal(&buf); err != nil {
		return fmt.Errorf("marshal init: %w", err)
	}
	s.initSent = true
	s.emit(buf.Bytes(), recorder.SegmentKindInitialization, &recorder.SegmentReport{
		Kind:   recorder.SegmentKindInitialization,
		Tracks: []recorder.TrackReport{{TrackID: trackID, MediaType: "audio"}},
	})
	return nil
}

func (s *segmenter) emit(payload []byte, kind recorder.SegmentKind, report *recorder.SegmentReport) {
	if s.handler != nil {
		s.handler(payload, kind, report)
	}
}

func toTimeScale(d time.Duration, ts uint32) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d) * uint64(ts) / uint64(time.Second)
}

func fromTimeScale(v uint64, ts uint32) time.Duration {
	return time.Duration(v * uint64(time.Second) / uint64(ts))
}
