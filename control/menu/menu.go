// Package menu renders the clock state as text for the 16x2 character display.
package menu

import (
	"fmt"
	"time"

	"github.com/jrockway/alarm-clock/control/alarm"
)

const (
	Lines = 2
	Cols  = 16
)

// Text is the contents of the character display, space padded.
type Text [Lines][Cols]byte

// Line returns line i as a string.
func (t Text) Line(i int) string {
	return string(t[i][:])
}

func (t Text) String() string {
	return t.Line(0) + "\n" + t.Line(1)
}

func (t *Text) set(i int, s string) {
	for j := range t[i] {
		t[i][j] = ' '
	}
	copy(t[i][:], s)
}

// Render returns the text for v.
func Render(v alarm.View) Text {
	var t Text
	var top, bottom string
	switch v.Mode {
	case alarm.Clock:
		top = "    " + v.Time.String()
		bottom = fmt.Sprintf("Alarm %02d:%02d  %s", v.Alarm.Hour, v.Alarm.Minute, alarmState(v))
	case alarm.SetHour, alarm.SetMinute:
		top = "Set time"
		bottom = editLine(v)
	case alarm.SetAlarmHour, alarm.SetAlarmMinute:
		top = "Set alarm"
		bottom = editLine(v)
	case alarm.Alarming:
		top = "    WAKE UP!"
		bottom = "    " + v.Time.String()
	case alarm.Snoozed:
		top = fmt.Sprintf("Snoozed   %02d:%02d", v.Time.Hour, v.Time.Minute)
		left := v.SnoozeLeft.Round(time.Second)
		bottom = fmt.Sprintf("Ring in %02d:%02d", int(left/time.Minute), int(left%time.Minute/time.Second))
	}
	t.set(0, top)
	t.set(1, bottom)
	return t
}

func alarmState(v alarm.View) string {
	switch {
	case !v.Alarm.Enabled:
		return "OFF"
	case !v.Switch:
		return "SW"
	}
	return "ON"
}

// editLine brackets the field the encoder is changing.
func editLine(v alarm.View) string {
	h := fmt.Sprintf("%02d", v.Shadow.Hour)
	m := fmt.Sprintf("%02d", v.Shadow.Minute)
	if v.Mode == alarm.SetHour || v.Mode == alarm.SetAlarmHour {
		h = "[" + h + "]"
	} else {
		m = "[" + m + "]"
	}
	return "    " + h + ":" + m
}
