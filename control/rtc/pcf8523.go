// Package rtc reads and sets the battery-backed PCF8523 real time clock.
//
// Datasheet: https://www.nxp.com/docs/en/data-sheet/PCF8523.pdf
package rtc

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Addr is the fixed I2C address of the PCF8523.
const Addr = 0x68

type Register uint8

const (
	RegisterControl1 Register = 0x00
	RegisterControl3 Register = 0x02
	RegisterSeconds  Register = 0x03
)

const (
	control1Keep     = 0b1000_0111 // CAP_SEL and the interrupt enables; STOP and 12_24 cleared
	secondsOscStop   = 0x80
	control3Defaults = 0x00 // battery switchover in standard mode, battery interrupts off
)

// ErrInvalid means the RTC doesn't know what time it is, usually because it lost power.
var ErrInvalid = errors.New("rtc: time not valid")

// PCF8523 is the RTC on an I2C bus.
type PCF8523 struct {
	dev i2c.Dev
	loc *time.Location
}

// New returns the RTC on bus.  The RTC counts local time in loc.
func New(bus i2c.Bus, loc *time.Location) *PCF8523 {
	if loc == nil {
		loc = time.Local
	}
	return &PCF8523{dev: i2c.Dev{Bus: bus, Addr: Addr}, loc: loc}
}

func (p *PCF8523) String() string {
	return fmt.Sprintf("pcf8523@%s", p.dev.String())
}

func (p *PCF8523) readRegisters(r Register, buf []byte) error {
	if err := p.dev.Tx([]byte{byte(r)}, buf); err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

func (p *PCF8523) writeRegisters(r Register, data ...byte) error {
	w := make([]byte, 1, len(data)+1)
	w[0] = byte(r)
	w = append(w, data...)
	if err := p.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

// Read returns the current time.
func (p *PCF8523) Read() (time.Time, error) {
	var buf [7]byte
	if err := p.readRegisters(RegisterSeconds, buf[:]); err != nil {
		return time.Time{}, fmt.Errorf("read time registers: %w", err)
	}
	if buf[0]&secondsOscStop != 0 {
		return time.Time{}, fmt.Errorf("oscillator stopped: %w", ErrInvalid)
	}
	var fields [7]int
	limits := [7]struct {
		mask     byte
		min, max int
	}{
		{0x7f, 0, 59}, // seconds
		{0x7f, 0, 59}, // minutes
		{0x3f, 0, 23}, // hours, 24 hour mode
		{0x3f, 1, 31}, // days
		{0x07, 0, 6},  // weekdays
		{0x1f, 1, 12}, // months
		{0xff, 0, 99}, // years
	}
	for i, l := range limits {
		v, ok := fromBCD(buf[i] & l.mask)
		if !ok || v < l.min || v > l.max {
			return time.Time{}, fmt.Errorf("register 0x%02x holds %#02x: %w", int(RegisterSeconds)+i, buf[i], ErrInvalid)
		}
		fields[i] = v
	}
	return time.Date(2000+fields[6], time.Month(fields[5]), fields[3], fields[2], fields[1], fields[0], 0, p.loc), nil
}

// Write sets the time, and makes sure the oscillator is running in 24 hour mode.
func (p *PCF8523) Write(t time.Time) error {
	t = t.In(p.loc)
	if y := t.Year(); y < 2000 || y > 2099 {
		return fmt.Errorf("year %d out of range", y)
	}
	var control [1]byte
	if err := p.readRegisters(RegisterControl1, control[:]); err != nil {
		return fmt.Errorf("read control 1: %w", err)
	}
	if err := p.writeRegisters(RegisterControl1, control[0]&control1Keep); err != nil {
		return fmt.Errorf("write control 1: %w", err)
	}
	// Writing the seconds register also clears the oscillator stop flag.
	if err := p.writeRegisters(RegisterSeconds,
		toBCD(t.Second()),
		toBCD(t.Minute()),
		toBCD(t.Hour()),
		toBCD(t.Day()),
		toBCD(int(t.Weekday())),
		toBCD(int(t.Month())),
		toBCD(t.Year()-2000),
	); err != nil {
		return fmt.Errorf("write time registers: %w", err)
	}
	if err := p.writeRegisters(RegisterControl3, control3Defaults); err != nil {
		return fmt.Errorf("write control 3: %w", err)
	}
	return nil
}

func toBCD(v int) byte {
	return byte(v/10<<4 | v%10)
}

func fromBCD(b byte) (int, bool) {
	hi, lo := b>>4, b&0x0f
	if hi > 9 || lo > 9 {
		return 0, false
	}
	return int(hi)*10 + int(lo), true
}
