package input

import (
	"sync"
	"time"
)

const (
	DefaultDebounce  = 30 * time.Millisecond
	DefaultLongPress = time.Second
)

type line struct {
	window    time.Duration
	longPress time.Duration

	stable    bool
	raw       bool
	accepted  time.Time // when stable last changed
	pressedAt time.Time
}

// Debouncer filters contact bounce out of button and switch edges.
//
// The first edge that changes a source's level is accepted immediately, and then the source is
// locked out for the debounce window: edges inside the window only update the raw level.  Once
// the window has passed, Poll accepts the raw level if it ended up different from the accepted one,
// so a tap shorter than the window still produces both edges.
type Debouncer struct {
	q *Queue

	mu    sync.Mutex
	lines [numSources]line
}

// NewDebouncer returns a Debouncer that pushes accepted edges onto q.  Long presses are only
// reported for the buttons; the toggle switch never has one.
func NewDebouncer(q *Queue, window, longPress time.Duration) *Debouncer {
	d := &Debouncer{q: q}
	for s := range d.lines {
		d.lines[s].window = window
		if Source(s) != ToggleSwitch {
			d.lines[s].longPress = longPress
		}
	}
	return d
}

// Init sets the level of a source at startup without emitting an edge.
func (d *Debouncer) Init(s Source, pressed bool) {
	if s >= numSources {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines[s].stable = pressed
	d.lines[s].raw = pressed
}

// Edge records a raw level change from the edge source.
func (d *Debouncer) Edge(s Source, pressed bool, at time.Time) {
	if s >= numSources {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &d.lines[s]
	l.raw = pressed
	if pressed == l.stable {
		return
	}
	if !l.accepted.IsZero() && at.Sub(l.accepted) < l.window {
		return
	}
	d.accept(s, at)
}

// Poll accepts any level that has been left pending by an edge inside a debounce window that has
// since expired.  The main loop calls it every iteration.
func (d *Debouncer) Poll(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for s := range d.lines {
		l := &d.lines[s]
		if l.raw != l.stable && now.Sub(l.accepted) >= l.window {
			d.accept(Source(s), now)
		}
	}
}

// Level returns the accepted level of a source.
func (d *Debouncer) Level(s Source) bool {
	if s >= numSources {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines[s].stable
}

// accept must be called with mu held.
func (d *Debouncer) accept(s Source, at time.Time) {
	l := &d.lines[s]
	l.stable = l.raw
	l.accepted = at
	e := ButtonEdge{Source: s, At: at}
	if l.stable {
		e.Edge = Pressed
		l.pressedAt = at
	} else {
		e.Edge = Released
		if !l.pressedAt.IsZero() {
			e.Held = at.Sub(l.pressedAt)
			e.Long = l.longPress > 0 && e.Held >= l.longPress
		}
	}
	d.q.Push(e)
}
