package alarm

import (
	"fmt"
	"time"
)

// WallTime is a time of day with one second resolution.
type WallTime struct {
	Hour, Minute, Second int
}

// FromTime returns the time of day of t in t's location.
func FromTime(t time.Time) WallTime {
	h, m, s := t.Clock()
	return WallTime{Hour: h, Minute: m, Second: s}
}

// Advance returns the time one second later, wrapping from 23:59:59 to 00:00:00.
func (t WallTime) Advance() WallTime {
	t.Second++
	if t.Second < 60 {
		return t
	}
	t.Second = 0
	t.Minute++
	if t.Minute < 60 {
		return t
	}
	t.Minute = 0
	t.Hour = (t.Hour + 1) % 24
	return t
}

// Valid reports whether every field is in range.
func (t WallTime) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60 && t.Second >= 0 && t.Second < 60
}

// On returns the instant at this time of day on the same date as day.
func (t WallTime) On(day time.Time) time.Time {
	y, mo, d := day.Date()
	return time.Date(y, mo, d, t.Hour, t.Minute, t.Second, 0, day.Location())
}

func (t WallTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// AlarmConfig is the alarm schedule.
type AlarmConfig struct {
	Hour, Minute int
	Enabled      bool
}

func (a AlarmConfig) String() string {
	state := "off"
	if a.Enabled {
		state = "on"
	}
	return fmt.Sprintf("%02d:%02d %s", a.Hour, a.Minute, state)
}

func wrap(v, delta, n int) int {
	v = (v + delta) % n
	if v < 0 {
		v += n
	}
	return v
}
