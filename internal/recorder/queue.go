package recorder

import "sync"

const bufferQueueSize = 64

// serialQueue is the dedicated execution context for captured buffers. It runs
// tasks on one goroutine, in submission order, until closed.
type serialQueue struct {
	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSerialQueue(size int) *serialQueue {
	q := &serialQueue{
		tasks: make(chan func(), size),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

// Dispatch implements Dispatcher. Tasks submitted after Close are dropped.
func (q *serialQueue) Dispatch(fn func()) {
	select {
	case <-q.quit:
		return
	default:
	}
	select {
	case q.tasks <- fn:
	case <-q.quit:
	}
}

func (q *serialQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		case fn := <-q.tasks:
			fn()
		}
	}
}

// Close stops the queue. It is safe to call from a queued task.
func (q *serialQueue) Close() {
	q.closeOnce.Do(func() { close(q.quit) })
}
