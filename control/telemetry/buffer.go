package telemetry

// ringBuffer is a fixed-capacity FIFO of payloads waiting for the broker.  When it is full, new
// payloads are dropped, so the one at the front is never replaced while it is being sent.  Not
// safe for concurrent use.
type ringBuffer struct {
	buf     [][]byte
	head    int
	count   int
	dropped uint64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([][]byte, capacity)}
}

func (r *ringBuffer) push(p []byte) bool {
	if r.count == len(r.buf) {
		r.dropped++
		return false
	}
	r.buf[(r.head+r.count)%len(r.buf)] = p
	r.count++
	return true
}

func (r *ringBuffer) peek() ([]byte, bool) {
	if r.count == 0 {
		return nil, false
	}
	return r.buf[r.head], true
}

func (r *ringBuffer) pop() {
	if r.count == 0 {
		return
	}
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.count--
}

func (r *ringBuffer) len() int {
	return r.count
}
