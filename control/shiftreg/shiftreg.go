// Package shiftreg drives the serial-in, parallel-out shift registers that the clock's
// seven-segment digits and character LCD hang off of.
//
// The digit chain is three daisy-chained 8-bit registers sharing one clock and one latch line:
//
//	[aux] -> [select] -> [segments]
//
// The segment register drives the A-G and DP lines common to all six digits, the select register
// grounds exactly one digit's common cathode, and the aux register drives the indicator LEDs
// (colon, alarm armed, ringing, PM), which are not multiplexed.  A frame is 24 bits, shifted aux
// first and most significant bit first, followed by one latch pulse.
package shiftreg

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Target is the thing a shifted pattern is meant for.
type Target uint8

const (
	Digit0 Target = iota
	Digit1
	Digit2
	Digit3
	Digit4
	Digit5
	Auxiliary
)

// NumDigits is the number of multiplexed digit positions on the chain.
const NumDigits = 6

// allOff is the select byte with no digit enabled.  Enables are active-low.
const allOff = 0xff

var shiftErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "shift_register_errors",
	Help: "count of frames that could not be written to a shift register chain",
})

// Driver writes frames to the digit chain.  It is not safe for concurrent use; the multiplex
// engine is its only caller.
type Driver struct {
	bus    bus
	frame  [3]byte // aux, select, segments
	failed bool
}

// New returns a Driver that bit-bangs the chain over the provided lines.  pulse is the time the
// clock line is held high, usually MinClockWidth; the latch is held for pulse or MinLatchWidth,
// whichever is longer.
func New(data, clock, latch gpio.PinOut, pulse time.Duration) *Driver {
	return newDriver(&pinBus{data: data, clock: clock, latch: latch, pulse: pulse})
}

// NewSPI returns a Driver that shifts frames with an SPI controller and latches them with the
// provided line.
func NewSPI(conn spi.Conn, latch gpio.PinOut) *Driver {
	return newDriver(&spiBus{conn: conn, latch: latch})
}

func newDriver(b bus) *Driver {
	return &Driver{bus: b, frame: [3]byte{0, allOff, 0}}
}

// ShiftOut latches pattern into the chain.  For a digit target the pattern becomes the segment
// byte and only that digit is enabled.  For Auxiliary the pattern replaces the aux byte and the
// digit currently lit stays lit.
//
// There is nothing useful a caller can do about a failed GPIO write in the middle of a refresh, so
// failures are counted and the first one is logged.
func (d *Driver) ShiftOut(pattern byte, target Target) {
	switch {
	case target == Auxiliary:
		d.frame[0] = pattern
	case target < NumDigits:
		d.frame[1] = selectByte(target)
		d.frame[2] = pattern
	default:
		return
	}
	d.write()
}

// Off disables every digit and clears the indicator LEDs.
func (d *Driver) Off() {
	d.frame = [3]byte{0, allOff, 0}
	d.write()
}

func (d *Driver) write() {
	if err := d.bus.shift(d.frame[:]); err != nil {
		shiftErrors.Inc()
		if !d.failed {
			log.Printf("shift out to digit chain: %v", err)
			d.failed = true
		}
	}
}

func selectByte(t Target) byte {
	return ^byte(1 << t)
}
