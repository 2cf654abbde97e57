package hls

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hls-recorder/internal/platform/metrics"
	"hls-recorder/internal/recorder"
)

// AudioRendition is the rendition recorded sessions publish to.
const AudioRendition RenditionID = "audio"

const initSegmentName = "init.mp4"

// silenceLevel is the level reported before any buffer arrives.
const silenceLevel float32 = -160

func mediaSegmentName(seq int64) string {
	return fmt.Sprintf("segment_%d.m4s", seq)
}

// Publisher turns one recording session's output into a live HLS stream.
// Its delegate callbacks may run on different goroutines.
type Publisher struct {
	stream   StreamID
	svc      *Service
	cache    *SegmentCache
	log      *slog.Logger
	metrics  *metrics.Metrics
	fallback time.Duration

	mu       sync.Mutex
	next     int64
	peak     float32
	average  float32
	buffers  int64
	err      error
	delegate *recorder.Delegate
}

// NewPublisher returns a publisher for stream. fallback is the segment
// duration listed when the muxer reports no timing. Metrics may be nil.
func NewPublisher(stream StreamID, svc *Service, cache *SegmentCache, fallback time.Duration, log *slog.Logger, m *metrics.Metrics) *Publisher {
	p := &Publisher{
		stream:   stream,
		svc:      svc,
		cache:    cache,
		log:      log.With(slog.String("stream_id", string(stream))),
		metrics:  m,
		fallback: fallback,
		peak:     silenceLevel,
		average:  silenceLevel,
	}
	p.delegate = &recorder.Delegate{
		OnSegment:      p.handleSegment,
		OnError:        p.handleError,
		OnRawBuffer:    p.handleBuffer,
		OnPeakLevel:    p.handlePeak,
		OnAverageLevel: p.handleAverage,
	}
	return p
}

// Delegate returns the recorder delegate. The controller only holds it
// weakly, so the publisher must outlive the session.
func (p *Publisher) Delegate() *recorder.Delegate { return p.delegate }

// Stream returns the stream the publisher writes to.
func (p *Publisher) Stream() StreamID { return p.stream }

// PublisherStats is a point-in-time view of a publisher.
type PublisherStats struct {
	Segments     int64
	Buffers      int64
	PeakLevel    float32
	AverageLevel float32
	Err          error
}

func (p *Publisher) Stats() PublisherStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublisherStats{
		Segments:     p.next,
		Buffers:      p.buffers,
		PeakLevel:    p.peak,
		AverageLevel: p.average,
		Err:          p.err,
	}
}

func (p *Publisher) handleSegment(seg recorder.Segment) {
	if seg.IsInitializationSegment {
		p.cache.Put(p.stream, AudioRendition, initSegmentName, seg.Data, true)
		if err := p.svc.SetInitSegment(p.stream, AudioRendition, initSegmentName); err != nil {
			p.log.Warn("init segment rejected", slog.String("error", err.Error()))
		}
		return
	}

	duration := seg.Report.Duration()
	if duration <= 0 {
		duration = p.fallback
	}

	p.mu.Lock()
	seq := p.next
	p.next++
	p.mu.Unlock()

	name := mediaSegmentName(seq)
	p.cache.Put(p.stream, AudioRendition, name, seg.Data, false)
	err := p.svc.RegisterSegment(p.stream, AudioRendition, Segment{
		Sequence: seq,
		Duration: duration.Seconds(),
		Path:     name,
	})
	if err != nil {
		p.log.Warn("segment rejected",
			slog.Int64("sequence", seq),
			slog.String("error", err.Error()))
		return
	}

	p.log.Debug("segment published",
		slog.Int64("sequence", seq),
		slog.Int("index", seg.Index),
		slog.Int("bytes", len(seg.Data)),
		slog.Duration("duration", duration))
	if p.metrics != nil {
		p.metrics.IncSegmentsRegistered()
	}
}

// handleError ends the stream: the session that fed it has been torn down.
func (p *Publisher) handleError(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()

	p.log.Error("recording failed", slog.String("error", err.Error()))
	if endErr := p.svc.EndStream(p.stream); endErr != nil {
		p.log.Error("end stream failed", slog.String("error", endErr.Error()))
	}
}

func (p *Publisher) handleBuffer(*recorder.SampleBuffer) {
	p.mu.Lock()
	p.buffers++
	p.mu.Unlock()
}

func (p *Publisher) handlePeak(v float32) {
	p.mu.Lock()
	p.peak = v
	p.mu.Unlock()
}

func (p *Publisher) handleAverage(v float32) {
	p.mu.Lock()
	p.average = v
	p.mu.Unlock()
}
