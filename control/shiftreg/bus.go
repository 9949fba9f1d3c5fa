package shiftreg

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// TPIC6595 timing, page 4 of https://www.ti.com/lit/ds/symlink/tpic6595.pdf.  The clock is held
// high for the pulse width the bus was built with; the latch is always held at least
// MinLatchWidth.
const (
	MinClockWidth = 20 * time.Nanosecond
	MinLatchWidth = 20 * time.Nanosecond
)

// bus clocks a frame into a register chain, most significant bit of frame[0] first, and then
// pulses the latch so every register in the chain updates its outputs at once.
type bus interface {
	shift(frame []byte) error
}

// pinBus bit-bangs the chain over three GPIO lines.
type pinBus struct {
	data, clock, latch gpio.PinOut
	pulse              time.Duration
}

func (b *pinBus) shift(frame []byte) error {
	for _, v := range frame {
		for bit := 7; bit >= 0; bit-- {
			if err := b.data.Out(gpio.Level(v&(1<<uint(bit)) != 0)); err != nil {
				return fmt.Errorf("write data line: %w", err)
			}
			if err := b.clock.Out(gpio.High); err != nil {
				return fmt.Errorf("raise clock line: %w", err)
			}
			spin(b.pulse)
			if err := b.clock.Out(gpio.Low); err != nil {
				return fmt.Errorf("lower clock line: %w", err)
			}
		}
	}
	return pulseLatch(b.latch, max(b.pulse, MinLatchWidth))
}

// spiBus uses the SPI controller for data (MOSI) and clock (SCLK) and a GPIO line for the latch.
type spiBus struct {
	conn  spi.Conn
	latch gpio.PinOut
}

func (b *spiBus) shift(frame []byte) error {
	if err := b.conn.Tx(frame, nil); err != nil {
		return fmt.Errorf("spi tx: %w", err)
	}
	return pulseLatch(b.latch, MinLatchWidth)
}

func pulseLatch(latch gpio.PinOut, width time.Duration) error {
	if err := latch.Out(gpio.High); err != nil {
		return fmt.Errorf("raise latch line: %w", err)
	}
	spin(width)
	if err := latch.Out(gpio.Low); err != nil {
		return fmt.Errorf("lower latch line: %w", err)
	}
	return nil
}

// spin busy-waits for d.  Sleeping would hand the thread back to the scheduler for far longer
// than a pulse width.
func spin(d time.Duration) {
	if d <= 0 {
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}
