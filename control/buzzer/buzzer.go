// Package buzzer beeps the piezo while the alarm is ringing.
package buzzer

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

const (
	DefaultOn  = 500 * time.Millisecond
	DefaultOff = 500 * time.Millisecond
)

var pinErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "buzzer_pin_errors",
	Help: "count of failed writes to the buzzer pin",
})

// Buzzer drives the piezo with a repeating on/off pattern.  SetActive is called from the main loop
// and Tick from the timer goroutine.
type Buzzer struct {
	pin  gpio.PinOut
	tone physic.Frequency

	onTicks, period int

	mu     sync.Mutex
	active bool
	phase  int
	failed bool
}

// New returns a silent Buzzer.  on and off are the lengths of the beep and the gap, and tick is
// the interval Tick is called at.  If tone is non-zero, the pin is driven with a square wave of
// that frequency for a passive piezo; otherwise it is held high for an active one.
func New(pin gpio.PinOut, tone physic.Frequency, on, off, tick time.Duration) *Buzzer {
	onTicks := int(on / tick)
	if onTicks < 1 {
		onTicks = 1
	}
	offTicks := int(off / tick)
	if offTicks < 1 {
		offTicks = 1
	}
	return &Buzzer{pin: pin, tone: tone, onTicks: onTicks, period: onTicks + offTicks}
}

// SetActive starts or stops the pattern.  Starting begins with a beep; stopping silences the pin
// immediately.
func (b *Buzzer) SetActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if active == b.active {
		return
	}
	b.active = active
	b.phase = 0
	b.drive(active)
}

// Active reports whether the pattern is running.
func (b *Buzzer) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Tick advances the pattern by one tick.
func (b *Buzzer) Tick() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return
	}
	b.phase = (b.phase + 1) % b.period
	switch b.phase {
	case 0:
		b.drive(true)
	case b.onTicks:
		b.drive(false)
	}
}

// drive must be called with mu held.
func (b *Buzzer) drive(on bool) {
	var err error
	switch {
	case !on:
		err = b.pin.Out(gpio.Low)
	case b.tone > 0:
		err = b.pin.PWM(gpio.DutyHalf, b.tone)
	default:
		err = b.pin.Out(gpio.High)
	}
	if err != nil {
		pinErrors.Inc()
		if !b.failed {
			log.Printf("drive buzzer %s: %v", b.pin, err)
			b.failed = true
		}
	}
}
