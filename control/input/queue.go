package input

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueSize is the capacity of a Queue.  The main loop drains it many times a second, so it only
// fills up if the main loop is stuck.
const QueueSize = 16

var droppedEdges = promauto.NewCounter(prometheus.CounterOpts{
	Name: "input_dropped_edges",
	Help: "count of debounced edges dropped because the queue was full",
})

// Queue is a fixed-capacity FIFO of ButtonEdges between the edge goroutines and the main loop.
type Queue struct {
	mu      sync.Mutex
	buf     [QueueSize]ButtonEdge
	head    int
	n       int
	dropped uint64
}

// Push appends e.  If the queue is full, e is dropped and counted.
func (q *Queue) Push(e ButtonEdge) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.n == QueueSize {
		q.dropped++
		droppedEdges.Inc()
		return false
	}
	q.buf[(q.head+q.n)%QueueSize] = e
	q.n++
	return true
}

// Drain appends every queued edge to dst, oldest first, and empties the queue.
func (q *Queue) Drain(dst []ButtonEdge) []ButtonEdge {
	q.mu.Lock()
	defer q.mu.Unlock()
	for ; q.n > 0; q.n-- {
		dst = append(dst, q.buf[q.head])
		q.head = (q.head + 1) % QueueSize
	}
	return dst
}

// Len returns the number of queued edges.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Dropped returns the number of edges dropped because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
