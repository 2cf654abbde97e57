package recorder

import "sync"

// sequencer numbers the segments of one session. Index assignment and
// delegate dispatch happen under the same lock so segments reach the
// delegate in index order.
type sequencer struct {
	mu     sync.Mutex
	next   int
	closed bool
	emit   func(Segment)
}

func newSequencer(emit func(Segment)) *sequencer {
	return &sequencer{emit: emit}
}

// handle implements SegmentHandler. Unknown kinds are dropped.
func (q *sequencer) handle(payload []byte, kind SegmentKind, report *SegmentReport) {
	var isInit bool
	switch kind {
	case SegmentKindInitialization:
		isInit = true
	case SegmentKindSeparable:
		isInit = false
	default:
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	seg := Segment{
		Index:                   q.next,
		Data:                    payload,
		IsInitializationSegment: isInit,
		Report:                  report,
	}
	q.next++
	q.emit(seg)
}

func (q *sequencer) reset() {
	q.mu.Lock()
	q.next = 0
	q.mu.Unlock()
}

// close drops every later segment. A segment being delivered finishes first.
func (q *sequencer) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
