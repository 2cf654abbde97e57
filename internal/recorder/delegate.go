package recorder

// Delegate receives session output. Every callback slot is optional.
//
// Callbacks are invoked from the capture queue goroutine (buffers and levels)
// and from the muxer goroutine (segments); implementations must be safe for
// concurrent use.
type Delegate struct {
	OnSegment      func(Segment)
	OnError        func(error)
	OnRawBuffer    func(*SampleBuffer)
	OnPeakLevel    func(float32)
	OnAverageLevel func(float32)
}

func (d *Delegate) segment(s Segment) {
	if d != nil && d.OnSegment != nil {
		d.OnSegment(s)
	}
}

func (d *Delegate) error(err error) {
	if d != nil && d.OnError != nil {
		d.OnError(err)
	}
}

func (d *Delegate) rawBuffer(b *SampleBuffer) {
	if d != nil && d.OnRawBuffer != nil {
		d.OnRawBuffer(b)
	}
}

func (d *Delegate) peakLevel(v float32) {
	if d != nil && d.OnPeakLevel != nil {
		d.OnPeakLevel(v)
	}
}

func (d *Delegate) averageLevel(v float32) {
	if d != nil && d.OnAverageLevel != nil {
		d.OnAverageLevel(v)
	}
}
