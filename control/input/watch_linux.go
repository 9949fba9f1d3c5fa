//go:build linux

package input

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// Watcher delivers edges from the GPIO character device to a Quadrature and a Debouncer.  The
// kernel queues edges, so none are lost while a handler runs.
type Watcher struct {
	chip    *gpiocdev.Chip
	encoder *gpiocdev.Lines
	buttons *gpiocdev.Lines

	mu   sync.Mutex
	a, b bool
}

// Watch requests the input lines from chip and starts delivering their edges.  All lines are
// pulled up; the buttons and switch short to ground when active.
func Watch(chip string, l Lines, q *Quadrature, d *Debouncer) (*Watcher, error) {
	c, err := gpiocdev.NewChip(chip, gpiocdev.WithConsumer("alarm-clock"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %q: %w", chip, err)
	}
	w := &Watcher{chip: c}

	encoderOffsets := []int{l.EncoderA, l.EncoderB}
	w.encoder, err = c.RequestLines(encoderOffsets,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			w.encoderEdge(l, q, evt)
		}))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request encoder lines %v: %w", encoderOffsets, err)
	}
	vals := make([]int, 2)
	if err := w.encoder.Values(vals); err != nil {
		w.Close()
		return nil, fmt.Errorf("read encoder lines: %w", err)
	}
	w.mu.Lock()
	w.a, w.b = vals[0] == 1, vals[1] == 1
	q.Reset(w.a, w.b)
	w.mu.Unlock()

	sources := map[int]Source{
		l.EncoderButton: EncoderButton,
		l.Snooze:        Snooze,
		l.ToggleSwitch:  ToggleSwitch,
	}
	buttonOffsets := []int{l.EncoderButton, l.Snooze, l.ToggleSwitch}
	w.buttons, err = c.RequestLines(buttonOffsets,
		gpiocdev.AsInput,
		gpiocdev.AsActiveLow,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			s, ok := sources[evt.Offset]
			if !ok {
				return
			}
			d.Edge(s, evt.Type == gpiocdev.LineEventRisingEdge, edgeTime(evt.Timestamp))
		}))
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("request button lines %v: %w", buttonOffsets, err)
	}
	vals = make([]int, len(buttonOffsets))
	if err := w.buttons.Values(vals); err != nil {
		w.Close()
		return nil, fmt.Errorf("read button lines: %w", err)
	}
	for i, off := range buttonOffsets {
		d.Init(sources[off], vals[i] == 1)
	}
	return w, nil
}

// edgeTime converts a kernel edge timestamp, which is on CLOCK_MONOTONIC, to the wall clock the
// main loop polls the debouncer with.
func edgeTime(ts time.Duration) time.Time {
	now := time.Now()
	var mono unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &mono); err != nil {
		return now
	}
	return monotonicToWall(ts, time.Duration(mono.Nano()), now)
}

// monotonicToWall returns the time ts happened, given that the monotonic clock read mono at now.
// Timestamps from the future or from before boot are taken as now.
func monotonicToWall(ts, mono time.Duration, now time.Time) time.Time {
	if ts <= 0 {
		return now
	}
	age := mono - ts
	if age < 0 {
		return now
	}
	return now.Add(-age)
}

func (w *Watcher) encoderEdge(l Lines, q *Quadrature, evt gpiocdev.LineEvent) {
	level := evt.Type == gpiocdev.LineEventRisingEdge
	w.mu.Lock()
	defer w.mu.Unlock()
	switch evt.Offset {
	case l.EncoderA:
		w.a = level
	case l.EncoderB:
		w.b = level
	default:
		return
	}
	q.Sample(w.a, w.b)
}

// Close releases the lines and the chip.
func (w *Watcher) Close() error {
	var errs []error
	if w.buttons != nil {
		if err := w.buttons.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button lines: %w", err))
		}
	}
	if w.encoder != nil {
		if err := w.encoder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close encoder lines: %w", err))
		}
	}
	if err := w.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	return errors.Join(errs...)
}
