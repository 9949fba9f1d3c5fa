// Package alarm is the clock's state machine.  It keeps the time of day, owns the alarm schedule,
// decides when the alarm rings, and handles the editing gestures.
//
// The Machine does no I/O and has no notion of real time; it advances only when Tick is called,
// once per second, and changes mode only in response to Handle.  Everything it knows can be read
// out as plain data with View and Face.
package alarm

import (
	"fmt"
	"time"
)

// DefaultSnooze is how long the alarm stays quiet after the snooze button is pressed.
const DefaultSnooze = 9 * time.Minute

// Mode is what the clock is currently doing.
type Mode int

const (
	Clock Mode = iota
	SetHour
	SetMinute
	SetAlarmHour
	SetAlarmMinute
	Alarming
	Snoozed
)

func (m Mode) String() string {
	switch m {
	case Clock:
		return "CLOCK"
	case SetHour:
		return "SET_HOUR"
	case SetMinute:
		return "SET_MINUTE"
	case SetAlarmHour:
		return "SET_ALARM_HOUR"
	case SetAlarmMinute:
		return "SET_ALARM_MINUTE"
	case Alarming:
		return "ALARMING"
	case Snoozed:
		return "SNOOZED"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Input is a logical input event.
type Input int

const (
	Increment Input = iota
	Decrement
	EncoderPress
	EncoderLongPress
	SnoozePress
	SnoozeLongPress
	SwitchOn
	SwitchOff
)

func (i Input) String() string {
	switch i {
	case Increment:
		return "increment"
	case Decrement:
		return "decrement"
	case EncoderPress:
		return "encoder press"
	case EncoderLongPress:
		return "encoder long press"
	case SnoozePress:
		return "snooze press"
	case SnoozeLongPress:
		return "snooze long press"
	case SwitchOn:
		return "switch on"
	case SwitchOff:
		return "switch off"
	}
	return fmt.Sprintf("Input(%d)", int(i))
}

// NoticeKind says what a Notice is about.
type NoticeKind int

const (
	// ModeChanged is sent on every mode transition.
	ModeChanged NoticeKind = iota
	// TimeSet is sent when an edited time is committed.
	TimeSet
	// AlarmSet is sent when the alarm schedule or its enable flag changes.
	AlarmSet
)

func (k NoticeKind) String() string {
	switch k {
	case ModeChanged:
		return "mode changed"
	case TimeSet:
		return "time set"
	case AlarmSet:
		return "alarm set"
	}
	return fmt.Sprintf("NoticeKind(%d)", int(k))
}

// Notice records something the machine did that the outside world may want to act on.
type Notice struct {
	Kind     NoticeKind
	From, To Mode // for ModeChanged
	Time     WallTime
	Alarm    AlarmConfig
}

// View is a snapshot of the machine for renderers.
type View struct {
	Mode   Mode
	Time   WallTime
	Shadow WallTime // the value being edited in the Set modes; seconds are always 0
	Alarm  AlarmConfig
	Switch bool

	// SnoozeLeft is the time until the alarm rings again, in Snoozed mode.
	SnoozeLeft time.Duration
}

// Face is what the six digits show.
type Face struct {
	Hour, Minute, Second int
	Seconds              bool // false blanks the seconds digits
}

// Machine is the clock state machine.  It is not safe for concurrent use; the main loop owns it.
type Machine struct {
	snooze int // seconds

	mode        Mode
	now         WallTime
	alarm       AlarmConfig
	shadow      WallTime
	alarmShadow WallTime
	switchOn    bool

	fired               bool
	firedHour, firedMin int
	snoozeLeft          int

	notices []Notice
}

// New returns a Machine in Clock mode.
func New(snooze time.Duration, now WallTime, alarm AlarmConfig) *Machine {
	s := int(snooze / time.Second)
	if s < 1 {
		s = int(DefaultSnooze / time.Second)
	}
	return &Machine{
		snooze:  s,
		now:     now,
		alarm:   alarm,
		notices: make([]Notice, 0, 8),
	}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	return m.mode
}

// Ringing reports whether the buzzer should sound.
func (m *Machine) Ringing() bool {
	return m.mode == Alarming
}

// Now returns the current time of day.
func (m *Machine) Now() WallTime {
	return m.now
}

// Alarm returns the committed alarm schedule.
func (m *Machine) Alarm() AlarmConfig {
	return m.alarm
}

// SetSwitch records the level of the alarm toggle switch at startup.  Use Handle for changes.
func (m *Machine) SetSwitch(on bool) {
	m.switchOn = on
}

// Sync replaces the time of day with one read from the RTC.  Edits in progress are not affected.
func (m *Machine) Sync(t WallTime) {
	if !t.Valid() {
		return
	}
	m.now = t
}

// Tick advances the clock by one second and checks the alarm.
func (m *Machine) Tick() {
	m.now = m.now.Advance()
	if m.fired && (m.now.Hour != m.firedHour || m.now.Minute != m.firedMin) {
		m.fired = false
	}
	switch m.mode {
	case Clock:
		if m.due() {
			m.fired, m.firedHour, m.firedMin = true, m.now.Hour, m.now.Minute
			m.setMode(Alarming)
		}
	case Snoozed:
		m.snoozeLeft--
		if m.snoozeLeft <= 0 {
			m.setMode(Alarming)
		}
	}
}

func (m *Machine) due() bool {
	return !m.fired && m.alarm.Enabled && m.switchOn &&
		m.now.Hour == m.alarm.Hour && m.now.Minute == m.alarm.Minute
}

// Handle applies one input.  Inputs that mean nothing in the current mode are ignored.
func (m *Machine) Handle(in Input) {
	switch in {
	case SwitchOn:
		m.switchOn = true
		return
	case SwitchOff:
		m.switchOn = false
		if m.mode == Alarming || m.mode == Snoozed {
			m.setMode(Clock)
		}
		return
	}

	switch m.mode {
	case Clock:
		switch in {
		case EncoderLongPress:
			m.shadow = WallTime{Hour: m.now.Hour, Minute: m.now.Minute}
			m.setMode(SetHour)
		case SnoozeLongPress:
			m.alarmShadow = WallTime{Hour: m.alarm.Hour, Minute: m.alarm.Minute}
			m.setMode(SetAlarmHour)
		case EncoderPress:
			m.alarm.Enabled = !m.alarm.Enabled
			m.notify(Notice{Kind: AlarmSet})
		}

	case SetHour, SetMinute, SetAlarmHour, SetAlarmMinute:
		m.edit(in)

	case Alarming:
		if in == SnoozePress || in == SnoozeLongPress {
			m.snoozeLeft = m.snooze
			m.setMode(Snoozed)
		}
	}
}

func (m *Machine) edit(in Input) {
	v := &m.shadow
	if m.mode == SetAlarmHour || m.mode == SetAlarmMinute {
		v = &m.alarmShadow
	}
	switch in {
	case Increment, Decrement:
		d := 1
		if in == Decrement {
			d = -1
		}
		if m.mode == SetHour || m.mode == SetAlarmHour {
			v.Hour = wrap(v.Hour, d, 24)
		} else {
			v.Minute = wrap(v.Minute, d, 60)
		}
	case EncoderPress, EncoderLongPress:
		switch m.mode {
		case SetHour:
			m.setMode(SetMinute)
		case SetAlarmHour:
			m.setMode(SetAlarmMinute)
		case SetMinute:
			m.now = m.shadow
			m.notify(Notice{Kind: TimeSet})
			m.setMode(Clock)
		case SetAlarmMinute:
			m.alarm = AlarmConfig{Hour: m.alarmShadow.Hour, Minute: m.alarmShadow.Minute, Enabled: true}
			m.notify(Notice{Kind: AlarmSet})
			m.setMode(Clock)
		}
	case SnoozePress, SnoozeLongPress:
		m.setMode(Clock)
	}
}

func (m *Machine) setMode(to Mode) {
	if to == m.mode {
		return
	}
	from := m.mode
	m.mode = to
	m.notify(Notice{Kind: ModeChanged, From: from, To: to})
}

func (m *Machine) notify(n Notice) {
	n.Time = m.now
	n.Alarm = m.alarm
	m.notices = append(m.notices, n)
}

// Notices appends the notices produced since the last call to dst, oldest first.
func (m *Machine) Notices(dst []Notice) []Notice {
	dst = append(dst, m.notices...)
	m.notices = m.notices[:0]
	return dst
}

// View returns a snapshot of the machine.
func (m *Machine) View() View {
	v := View{
		Mode:   m.mode,
		Time:   m.now,
		Alarm:  m.alarm,
		Switch: m.switchOn,
	}
	switch m.mode {
	case SetHour, SetMinute:
		v.Shadow = m.shadow
	case SetAlarmHour, SetAlarmMinute:
		v.Shadow = m.alarmShadow
	case Snoozed:
		v.SnoozeLeft = time.Duration(m.snoozeLeft) * time.Second
	}
	return v
}

// Face returns what the digits should show: the live time, or the value being edited without
// seconds.
func (m *Machine) Face() Face {
	switch m.mode {
	case SetHour, SetMinute:
		return Face{Hour: m.shadow.Hour, Minute: m.shadow.Minute}
	case SetAlarmHour, SetAlarmMinute:
		return Face{Hour: m.alarmShadow.Hour, Minute: m.alarmShadow.Minute}
	}
	return Face{Hour: m.now.Hour, Minute: m.now.Minute, Second: m.now.Second, Seconds: true}
}
