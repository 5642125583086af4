package attribution

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Queue runs callbacks one at a time on a single logical context.
// Handlers are only ever invoked through the coordinator's Queue.
type Queue interface {
	Dispatch(fn func())
}

// SerialQueue executes dispatched functions in order on one goroutine.
// Dispatch never blocks; the backlog is unbounded.
type SerialQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
	logger *slog.Logger
}

// NewSerialQueue starts a queue goroutine.
func NewSerialQueue(logger *slog.Logger) *SerialQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &SerialQueue{
		done:   make(chan struct{}),
		logger: logger.With("component", "attribution.queue"),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Dispatch enqueues fn. Functions dispatched after Close are dropped.
func (q *SerialQueue) Dispatch(fn func()) {
	q.TryDispatch(fn)
}

// TryDispatch enqueues fn and reports false if the queue is closed.
func (q *SerialQueue) TryDispatch(fn func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
	return true
}

// Flush blocks until everything dispatched before the call has run.
// Must not be called from the queue itself.
func (q *SerialQueue) Flush() {
	done := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.tasks = append(q.tasks, func() { close(done) })
	q.cond.Signal()
	q.mu.Unlock()
	<-done
}

// Close drains pending work and stops the queue goroutine.
func (q *SerialQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

func (q *SerialQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.execute(fn)
	}
}

// execute runs fn; a panicking handler must not kill the queue.
func (q *SerialQueue) execute(fn func()) {
	defer func() {
		if rvr := recover(); rvr != nil {
			q.logger.Error("panic recovered",
				slog.Any("panic", rvr),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}
