package shiftreg

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// ErrNotImplemented is returned for pin operations a shift register output can't do.
var ErrNotImplemented = errors.New("shiftreg: not implemented")

const registerPins = 8

// Register is a single latched 8-bit register whose outputs are used as individual GPIO pins.
// The character LCD is wired to one: RS, E and D4-D7 are register outputs, and every pin write
// reshifts and relatches the whole byte.
type Register struct {
	name string

	mu    sync.Mutex
	bus   bus
	value byte

	pins []gpio.PinOut
}

// NewRegister returns a Register bit-banged over the provided lines.  pulse is as for New.
func NewRegister(name string, data, clock, latch gpio.PinOut, pulse time.Duration) *Register {
	r := &Register{name: name, bus: &pinBus{data: data, clock: clock, latch: latch, pulse: pulse}}
	r.pins = make([]gpio.PinOut, registerPins)
	for i := range r.pins {
		r.pins[i] = &Pin{reg: r, number: i, name: fmt.Sprintf("%s_Q%d", name, i)}
	}
	return r
}

// Pins returns the register outputs.  Pin i is output Qi.
func (r *Register) Pins() []gpio.PinOut {
	return r.pins
}

// Value returns the byte currently latched.
func (r *Register) Value() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

func (r *Register) set(bit int, l gpio.Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.value &^ (1 << uint(bit))
	if l {
		v |= 1 << uint(bit)
	}
	if err := r.bus.shift([]byte{v}); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	r.value = v
	return nil
}

func (r *Register) String() string {
	return r.name
}

// Pin is one output of a Register.
type Pin struct {
	reg    *Register
	name   string
	number int
}

var _ gpio.PinOut = &Pin{}

// Out sets the output and relatches the register.
func (p *Pin) Out(l gpio.Level) error {
	return p.reg.set(p.number, l)
}

// PWM is not available on a shift register output.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return ErrNotImplemented
}

// Name returns the name of the pin.
func (p *Pin) Name() string { return p.name }

// Number returns the output number on the register.
func (p *Pin) Number() int { return p.number }

// Function returns "Out".
func (p *Pin) Function() string { return "Out" }

// Halt implements conn.Resource.
func (p *Pin) Halt() error { return nil }

func (p *Pin) String() string { return p.name }
