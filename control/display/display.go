// Package display multiplexes the six seven-segment digits.
//
// Only one digit is lit at any instant.  Every refresh tick the Engine lights the next digit, so
// at the default 2ms tick a full pass over the six digits takes 12ms and each digit is refreshed
// at about 83Hz, which is fast enough that they all appear lit at once.
package display

import (
	"sync"
	"time"

	"github.com/jrockway/alarm-clock/control/shiftreg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultRefresh is the time each digit stays lit before the engine moves on to the next one.
const DefaultRefresh = 2 * time.Millisecond

// Indicator LEDs on the aux register.  They aren't multiplexed; whatever is latched stays lit.
const (
	AuxColon byte = 1 << iota
	AuxAlarmArmed
	AuxRinging
	AuxPM // the hour shown is 12 or later
)

var (
	passesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "display_scan_passes",
		Help: "count of complete passes over all six digits",
	})
	framesCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "display_frames_published",
		Help: "count of frames handed to the multiplex engine",
	})
)

// Digits holds segment patterns for the six positions, left to right: hour tens, hour ones, minute
// tens, minute ones, second tens, second ones.
type Digits [shiftreg.NumDigits]byte

// Frame is everything the digit chain shows.
type Frame struct {
	Digits Digits
	Aux    byte
}

// Buffer passes frames from the main loop to the engine.  The writer always replaces a whole
// frame, and the engine reads a whole frame, so the engine never sees a half-written time.
type Buffer struct {
	mu    sync.Mutex
	frame Frame
}

// Publish replaces the frame.
func (b *Buffer) Publish(f Frame) {
	b.mu.Lock()
	b.frame = f
	b.mu.Unlock()
	framesCounter.Inc()
}

// Snapshot returns a copy of the current frame.
func (b *Buffer) Snapshot() Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame
}

// Driver is the shift register chain the digits are attached to.
type Driver interface {
	ShiftOut(pattern byte, target shiftreg.Target)
	Off()
}

// Engine lights one digit per Step.  It is owned by the timer goroutine.
type Engine struct {
	drv Driver
	buf *Buffer

	index    int
	pass     Frame
	aux      byte
	auxValid bool
}

// NewEngine returns an engine that shows frames from buf on drv.
func NewEngine(drv Driver, buf *Buffer) *Engine {
	return &Engine{drv: drv, buf: buf}
}

// Step lights the next digit.  A new frame is only picked up at the start of a pass, so every pass
// shows digits from exactly one frame.
func (e *Engine) Step() {
	if e.index == 0 {
		e.pass = e.buf.Snapshot()
		if !e.auxValid || e.pass.Aux != e.aux {
			e.drv.ShiftOut(e.pass.Aux, shiftreg.Auxiliary)
			e.aux, e.auxValid = e.pass.Aux, true
		}
	}
	e.drv.ShiftOut(e.pass.Digits[e.index], shiftreg.Target(e.index))
	e.index = (e.index + 1) % shiftreg.NumDigits
	if e.index == 0 {
		passesCounter.Inc()
	}
}

// Index returns the position the next Step will light.
func (e *Engine) Index() int {
	return e.index
}

// Blank turns every digit and indicator off, and restarts the scan at the first digit.
func (e *Engine) Blank() {
	e.drv.Off()
	e.index = 0
	e.auxValid = false
}
