package input

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultStepsPerClick is the number of quarter steps between detents on the encoders we use.
const DefaultStepsPerClick = 4

var invalidTransitions = promauto.NewCounter(prometheus.CounterOpts{
	Name: "encoder_invalid_transitions",
	Help: "count of encoder transitions where both phases changed at once",
})

// transitions is indexed by previous<<2 | current, where a state is A<<1 | B.  Gray code order
// clockwise is 00 -> 01 -> 11 -> 10.
var transitions = [16]int8{
	0, +1, -1, 0,
	-1, 0, 0, +1,
	+1, 0, 0, -1,
	0, -1, +1, 0,
}

// invalid marks the transitions where both phases changed, which means an edge was missed.
var invalid = [16]bool{3: true, 6: true, 9: true, 12: true}

// Quadrature decodes the encoder's two phase lines.
type Quadrature struct {
	stepsPerClick int

	mu       sync.Mutex
	prev     uint8
	quarter  int
	clicks   int
	nInvalid uint64
}

// NewQuadrature returns a decoder that reports one click per stepsPerClick quarter steps.  a and b
// are the phase levels at startup.
func NewQuadrature(stepsPerClick int, a, b bool) *Quadrature {
	if stepsPerClick < 1 {
		stepsPerClick = DefaultStepsPerClick
	}
	return &Quadrature{stepsPerClick: stepsPerClick, prev: phase(a, b)}
}

func phase(a, b bool) uint8 {
	var s uint8
	if a {
		s |= 2
	}
	if b {
		s |= 1
	}
	return s
}

// Sample records the current levels of the phase lines.  Call it on every edge of either line.
func (q *Quadrature) Sample(a, b bool) {
	cur := phase(a, b)
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.prev<<2 | cur
	q.prev = cur
	if invalid[i] {
		q.nInvalid++
		invalidTransitions.Inc()
		return
	}
	q.quarter += int(transitions[i])
	switch {
	case q.quarter >= q.stepsPerClick:
		q.quarter -= q.stepsPerClick
		q.clicks++
	case q.quarter <= -q.stepsPerClick:
		q.quarter += q.stepsPerClick
		q.clicks--
	}
}

// Reset forgets any partial click and takes a and b as the current phase levels.
func (q *Quadrature) Reset(a, b bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prev = phase(a, b)
	q.quarter = 0
}

// Poll returns the clicks since the last Poll.
func (q *Quadrature) Poll() EncoderState {
	q.mu.Lock()
	n := q.clicks
	q.clicks = 0
	q.mu.Unlock()

	s := EncoderState{Delta: n}
	switch {
	case n > 0:
		s.Direction = CW
	case n < 0:
		s.Direction = CCW
	}
	return s
}

// Invalid returns the number of transitions that were dropped because both phases changed.
func (q *Quadrature) Invalid() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nInvalid
}
