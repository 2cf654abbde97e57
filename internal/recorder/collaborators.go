package recorder

import (
	"context"
	"time"
)

// PermissionStatus is the current microphone access decision.
type PermissionStatus int

const (
	PermissionUndetermined PermissionStatus = iota
	PermissionGranted
	PermissionDenied
)

func (s PermissionStatus) String() string {
	switch s {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "undetermined"
	}
}

// Permissions is the capture subsystem's record-permission authority.
type Permissions interface {
	RecordPermission() PermissionStatus

	// RequestRecordPermission prompts for access and blocks until answered.
	RequestRecordPermission(ctx context.Context) (bool, error)
}

// Device is an audio input device offered by a capture pipeline.
type Device struct {
	ID         string
	Name       string
	SampleRate int
	Channels   int
}

// ChannelLevel holds the meter readings of one audio channel.
type ChannelLevel struct {
	PeakHold     float32
	AveragePower float32
}

// Connection links the capture input to the registered audio data output.
type Connection interface {
	ChannelLevels() []ChannelLevel
}

// Dispatcher runs submitted functions one at a time, in order.
type Dispatcher interface {
	Dispatch(fn func())
}

// BufferSink receives every captured buffer together with the connection it
// arrived on.
type BufferSink func(buf *SampleBuffer, from Connection)

// Capture is one capture pipeline instance. A pipeline is owned by a single
// session and is never reused after StopRunning.
type Capture interface {
	// SelectPreset applies the preset if supported and reports whether it did.
	SelectPreset(p Preset) bool
	DefaultInputDevice() (Device, bool)
	AddInput(d Device) error
	// AddOutput registers the sink; buffers must be delivered through queue.
	AddOutput(sink BufferSink, queue Dispatcher) (Connection, error)
	RecommendedOutputSettings(contentType string) OutputSettings
	StartRunning() error
	StopRunning()
	IsRunning() bool
	// SetFailureHandler registers h for failures that end capture on its own,
	// such as a read error or the source running dry. h is called at most once,
	// never while StopRunning is waiting on the pipeline.
	SetFailureHandler(h func(error))
}

// WriterStatus is the muxer's lifecycle status.
type WriterStatus int

const (
	WriterStatusUnknown WriterStatus = iota
	WriterStatusWriting
	WriterStatusCompleted
	WriterStatusFailed
	WriterStatusCancelled
)

func (s WriterStatus) String() string {
	switch s {
	case WriterStatusWriting:
		return "writing"
	case WriterStatusCompleted:
		return "completed"
	case WriterStatusFailed:
		return "failed"
	case WriterStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// InputSpec describes the single media input added to a muxer.
type InputSpec struct {
	MediaType                  string
	Settings                   OutputSettings
	ExpectsMediaDataInRealTime bool
}

// ContainerConfig holds the container-level parameters of a muxer.
type ContainerConfig struct {
	ContentType             string
	Profile                 string
	SegmentInterval         time.Duration
	InitialSegmentStartTime time.Duration
	OptimizeForNetworkUse   bool
}

// SegmentHandler receives every segment payload produced by a muxer.
type SegmentHandler func(payload []byte, kind SegmentKind, report *SegmentReport)

// Muxer is one encoder/segmenter instance owned by a single session.
type Muxer interface {
	AddInput(spec InputSpec) bool
	Configure(cfg ContainerConfig)
	SetSegmentHandler(h SegmentHandler)
	StartWriting() bool
	StartSession(at time.Duration)
	IsReadyForMoreMediaData() bool
	Append(buf *SampleBuffer) bool
	MarkInputFinished()
	// FinishWriting blocks until the muxer reaches a terminal status.
	FinishWriting(ctx context.Context)
	CancelWriting()
	Status() WriterStatus
	Err() error
	// SetFailureHandler registers h for failures on the segment path that no
	// Append or FinishWriting call observes. h must not be called while
	// CancelWriting would block on it.
	SetFailureHandler(h func(error))
}
