package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type stubPermissions struct {
	mu      sync.Mutex
	status  PermissionStatus
	answer  bool
	prompts int
	release chan struct{}
}

func (p *stubPermissions) RecordPermission() PermissionStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *stubPermissions) RequestRecordPermission(ctx context.Context) (bool, error) {
	p.mu.Lock()
	p.prompts++
	release := p.release
	p.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.answer {
		p.status = PermissionGranted
	} else {
		p.status = PermissionDenied
	}
	return p.answer, nil
}

func (p *stubPermissions) promptCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts
}

type stubConnection struct {
	levels []ChannelLevel
}

func (c *stubConnection) ChannelLevels() []ChannelLevel {
	return c.levels
}

type stubCapture struct {
	mu              sync.Mutex
	presetSupported bool
	preset          Preset
	noDevice        bool
	inputErr        error
	outputErr       error
	startErr        error
	conn            *stubConnection
	sink            BufferSink
	queue           Dispatcher
	input           *Device
	running         bool
	stops           int
	failure         func(error)
}

func newStubCapture() *stubCapture {
	return &stubCapture{
		presetSupported: true,
		preset:          PresetMedium,
		conn:            &stubConnection{levels: []ChannelLevel{{PeakHold: -3, AveragePower: -12}}},
	}
}

func (c *stubCapture) SelectPreset(p Preset) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.presetSupported {
		return false
	}
	c.preset = p
	return true
}

func (c *stubCapture) DefaultInputDevice() (Device, bool) {
	if c.noDevice {
		return Device{}, false
	}
	return Device{ID: "stub-0", Name: "Stub Microphone", SampleRate: 48000, Channels: len(c.conn.levels)}, true
}

func (c *stubCapture) AddInput(d Device) error {
	if c.inputErr != nil {
		return c.inputErr
	}
	c.input = &d
	return nil
}

func (c *stubCapture) AddOutput(sink BufferSink, queue Dispatcher) (Connection, error) {
	if c.outputErr != nil {
		return nil, c.outputErr
	}
	c.sink = sink
	c.queue = queue
	return c.conn, nil
}

func (c *stubCapture) RecommendedOutputSettings(contentType string) OutputSettings {
	return OutputSettings{SettingFormat: "lpcm", SettingSampleRate: 48000, SettingChannels: len(c.conn.levels)}
}

func (c *stubCapture) StartRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.running = true
	return nil
}

func (c *stubCapture) StopRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.stops++
}

func (c *stubCapture) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *stubCapture) SetFailureHandler(h func(error)) {
	c.mu.Lock()
	c.failure = h
	c.mu.Unlock()
}

// fail simulates the source ending on its own.
func (c *stubCapture) fail(err error) {
	c.mu.Lock()
	c.running = false
	h := c.failure
	c.mu.Unlock()
	h(err)
}

func (c *stubCapture) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

// deliver pushes buf through the registered queue and waits until the sink ran.
func (c *stubCapture) deliver(buf *SampleBuffer) bool {
	return c.deliverFrom(buf, c.conn)
}

func (c *stubCapture) deliverFrom(buf *SampleBuffer, from Connection) bool {
	done := make(chan struct{})
	c.queue.Dispatch(func() {
		c.sink(buf, from)
		close(done)
	})
	select {
	case <-done:
		return true
	case <-time.After(time.Second):
		return false
	}
}

type stubMuxer struct {
	mu           sync.Mutex
	rejectInput  bool
	failStart    bool
	startErr     error
	failFinish   bool
	finishErr    error
	rejectAppend bool
	notReady     bool
	appendErr    error

	spec         InputSpec
	cfg          ContainerConfig
	handler      SegmentHandler
	status       WriterStatus
	err          error
	sessionStart time.Duration
	appended     []*SampleBuffer
	finished     bool
	cancelled    int
	failure      func(error)
}

func (m *stubMuxer) AddInput(spec InputSpec) bool {
	if m.rejectInput {
		return false
	}
	m.spec = spec
	return true
}

func (m *stubMuxer) Configure(cfg ContainerConfig) { m.cfg = cfg }

func (m *stubMuxer) SetSegmentHandler(h SegmentHandler) { m.handler = h }

func (m *stubMuxer) StartWriting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStart {
		m.status = WriterStatusFailed
		m.err = m.startErr
		return false
	}
	m.status = WriterStatusWriting
	return true
}

func (m *stubMuxer) StartSession(at time.Duration) { m.sessionStart = at }

func (m *stubMuxer) IsReadyForMoreMediaData() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.notReady && m.status == WriterStatusWriting
}

func (m *stubMuxer) Append(buf *SampleBuffer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejectAppend {
		m.status = WriterStatusFailed
		m.err = m.appendErr
		return false
	}
	m.appended = append(m.appended, buf)
	return true
}

func (m *stubMuxer) MarkInputFinished() {
	m.mu.Lock()
	m.finished = true
	m.mu.Unlock()
}

func (m *stubMuxer) FinishWriting(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFinish {
		m.status = WriterStatusFailed
		m.err = m.finishErr
		return
	}
	m.status = WriterStatusCompleted
}

func (m *stubMuxer) CancelWriting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled++
	if m.status != WriterStatusCompleted {
		m.status = WriterStatusCancelled
	}
}

func (m *stubMuxer) Status() WriterStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *stubMuxer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *stubMuxer) SetFailureHandler(h func(error)) {
	m.mu.Lock()
	m.failure = h
	m.mu.Unlock()
}

// fail simulates the writer goroutine failing on a queued buffer.
func (m *stubMuxer) fail(err error) {
	m.mu.Lock()
	if m.status == WriterStatusWriting {
		m.status = WriterStatusFailed
		m.err = err
	}
	h := m.failure
	m.mu.Unlock()
	h(err)
}

// emit simulates the muxer delivering a segment from its own goroutine.
func (m *stubMuxer) emit(payload []byte, kind SegmentKind) {
	m.handler(payload, kind, &SegmentReport{Kind: kind})
}

func (m *stubMuxer) appendedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appended)
}

func (m *stubMuxer) cancelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// eventLog records delegate callbacks. It keeps the delegate reachable for as
// long as the log itself is.
type eventLog struct {
	mu       sync.Mutex
	segments []Segment
	errs     []error
	buffers  []*SampleBuffer
	peaks    []float32
	averages []float32
	delegate *Delegate
}

func newEventLog() *eventLog {
	l := &eventLog{}
	l.delegate = &Delegate{
		OnSegment: func(s Segment) {
			l.mu.Lock()
			l.segments = append(l.segments, s)
			l.mu.Unlock()
		},
		OnError: func(err error) {
			l.mu.Lock()
			l.errs = append(l.errs, err)
			l.mu.Unlock()
		},
		OnRawBuffer: func(b *SampleBuffer) {
			l.mu.Lock()
			l.buffers = append(l.buffers, b)
			l.mu.Unlock()
		},
		OnPeakLevel: func(v float32) {
			l.mu.Lock()
			l.peaks = append(l.peaks, v)
			l.mu.Unlock()
		},
		OnAverageLevel: func(v float32) {
			l.mu.Lock()
			l.averages = append(l.averages, v)
			l.mu.Unlock()
		},
	}
	return l
}

func (l *eventLog) snapshot() (segments []Segment, errs []error, buffers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Segment(nil), l.segments...), append([]error(nil), l.errs...), len(l.buffers)
}

var errStub = errors.New("stub failure")

type testRig struct {
	ctrl     *Controller
	perms    *stubPermissions
	events   *eventLog
	captures []*stubCapture
	muxers   []*stubMuxer

	// prepare hooks run on each new collaborator before it is handed out.
	prepareCapture func(*stubCapture)
	prepareMuxer   func(*stubMuxer)
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		perms:  &stubPermissions{status: PermissionGranted, answer: true},
		events: newEventLog(),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	rig.ctrl = NewController(rig.perms,
		func() Capture {
			c := newStubCapture()
			if rig.prepareCapture != nil {
				rig.prepareCapture(c)
			}
			rig.captures = append(rig.captures, c)
			return c
		},
		func() Muxer {
			m := &stubMuxer{}
			if rig.prepareMuxer != nil {
				rig.prepareMuxer(m)
			}
			rig.muxers = append(rig.muxers, m)
			return m
		},
		log, nil)
	rig.ctrl.SetDelegate(rig.events.delegate)
	return rig
}

func (r *testRig) capture() *stubCapture { return r.captures[len(r.captures)-1] }

func (r *testRig) muxer() *stubMuxer { return r.muxers[len(r.muxers)-1] }

func testBuffer(frames, channels int) *SampleBuffer {
	return &SampleBuffer{SampleRate: 48000, Channels: channels, Data: make([]int16, frames*channels)}
}
