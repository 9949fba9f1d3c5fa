// Package input turns raw edges from the rotary encoder, the snooze button, and the alarm toggle
// switch into the discrete events the state machine acts on.
//
// Edges arrive on their own goroutines (see Watch); everything here is safe to feed from those
// goroutines while the main loop polls.
package input

import (
	"fmt"
	"time"
)

// Source identifies a debounced two-state input.
type Source uint8

const (
	EncoderButton Source = iota
	Snooze
	ToggleSwitch
	numSources
)

func (s Source) String() string {
	switch s {
	case EncoderButton:
		return "encoder button"
	case Snooze:
		return "snooze"
	case ToggleSwitch:
		return "toggle switch"
	}
	return fmt.Sprintf("Source(%d)", uint8(s))
}

// Edge is the direction of a debounced transition.  For the toggle switch, Pressed means the
// alarm was switched on.
type Edge uint8

const (
	Pressed Edge = iota
	Released
)

func (e Edge) String() string {
	if e == Pressed {
		return "pressed"
	}
	return "released"
}

// ButtonEdge is one debounced transition.
type ButtonEdge struct {
	Source Source
	Edge   Edge
	At     time.Time

	// Held and Long are only set on Released edges.  Held is the time since the Pressed edge was
	// accepted, and Long is true if that reached the source's long press threshold.
	Held time.Duration
	Long bool
}

func (e ButtonEdge) String() string {
	if e.Edge == Released {
		return fmt.Sprintf("%v %v after %v (long=%v)", e.Source, e.Edge, e.Held, e.Long)
	}
	return fmt.Sprintf("%v %v", e.Source, e.Edge)
}

// Direction of encoder rotation.
type Direction int8

const (
	None Direction = 0
	CW   Direction = 1
	CCW  Direction = -1
)

func (d Direction) String() string {
	switch d {
	case CW:
		return "CW"
	case CCW:
		return "CCW"
	}
	return "None"
}

// Lines are the GPIO chip offsets the inputs are wired to.
type Lines struct {
	EncoderA, EncoderB int
	EncoderButton      int
	Snooze             int
	ToggleSwitch       int
}

// EncoderState is the rotation accumulated since the last poll.  Delta is in clicks, positive
// clockwise.
type EncoderState struct {
	Delta     int
	Direction Direction
}
