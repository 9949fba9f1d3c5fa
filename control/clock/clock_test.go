package clock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrockway/alarm-clock/control/alarm"
	"github.com/jrockway/alarm-clock/control/display"
	"github.com/jrockway/alarm-clock/control/input"
	"github.com/jrockway/alarm-clock/control/menu"
	"github.com/jrockway/alarm-clock/control/telemetry"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

func TestTick(t *testing.T) {
	ctx, c := context.WithCancel(context.Background())
	timeout := 1500 * time.Millisecond
	perSecond := uint64(25) // a second every 50ms

	var ticks, steps atomic.Uint64
	tch := make(chan time.Time)
	errch := make(chan error)
	go func() {
		errch <- Tick(ctx, 2*time.Millisecond, perSecond, func() { steps.Add(1) }, &ticks, tch)
		close(errch)
	}()

	// Check that seconds arrive after the right number of ticks.
	var a, b time.Time
	select {
	case <-time.After(timeout):
		t.Fatal("timeout waiting for first second")
	case err := <-errch:
		t.Fatalf("unexpected error waiting for first second: %v", err)
	case a = <-tch:
		if got := ticks.Load(); got < perSecond {
			t.Errorf("ticks at first second:\n  got: %v\n want: >= %v", got, perSecond)
		}
	}
	select {
	case <-time.After(timeout):
		t.Fatal("timeout waiting for second second")
	case err := <-errch:
		t.Fatalf("unexpected error waiting for second second: %v", err)
	case b = <-tch:
		if !b.After(a) {
			t.Errorf("seconds out of order: %v then %v", a, b)
		}
	}

	// Check that missed seconds do not block the ticker.
	before := ticks.Load()
	select {
	case <-time.After(300 * time.Millisecond):
	case err := <-errch:
		t.Fatalf("unexpected error while sleeping: %v", err)
	}
	if got := ticks.Load(); got <= before+perSecond {
		t.Errorf("ticker stalled while nobody listened: %v ticks before, %v after", before, got)
	}

	select {
	case <-time.After(timeout):
		t.Fatal("timeout waiting for third second")
	case err := <-errch:
		t.Fatalf("unexpected error waiting for third second: %v", err)
	case <-tch:
	}

	// Check that cancelling the context stops the ticking.
	c()
	select {
	case <-time.After(timeout):
		t.Fatal("timeout waiting for cancel")
	case err := <-errch:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error after cancel: %v", err)
		}
	}
	if got, want := steps.Load(), ticks.Load(); got != want {
		t.Errorf("steps:\n  got: %v\n want: %v", got, want)
	}
}

type fakeRTC struct {
	t        time.Time
	err      error // returned by Read
	writeErr error // returned by Write
	writes   []time.Time
}

func (r *fakeRTC) Read() (time.Time, error) { return r.t, r.err }

func (r *fakeRTC) Write(t time.Time) error {
	r.writes = append(r.writes, t)
	if r.writeErr != nil {
		return r.writeErr
	}
	r.t = t
	return nil
}

type piezo struct {
	*gpiotest.Pin
	sounding bool
}

func (p *piezo) Out(l gpio.Level) error {
	p.sounding = bool(l)
	return nil
}

func (p *piezo) PWM(d gpio.Duty, f physic.Frequency) error {
	p.sounding = d > 0
	return nil
}

type lastShown struct {
	frame display.Frame
	text  menu.Text
	count int
}

func (s *lastShown) Show(f display.Frame, t menu.Text) {
	s.frame, s.text = f, t
	s.count++
}

type fixture struct {
	c       *Clock
	rtc     *fakeRTC
	pin     *piezo
	events  *telemetry.Fake
	preview *lastShown
	pos     int // encoder phase, see gray
}

func newFixture(boot time.Time, a alarm.AlarmConfig) *fixture {
	f := &fixture{
		rtc:     &fakeRTC{t: boot},
		pin:     &piezo{Pin: &gpiotest.Pin{N: "BUZZER"}},
		events:  &telemetry.Fake{},
		preview: &lastShown{},
		pos:     2, // New starts the encoder with both lines high
	}
	cfg := DefaultConfig()
	cfg.Alarm = a
	cfg.Location = time.UTC
	f.c = New(cfg, Hardware{
		Buzzer:  f.pin,
		RTC:     f.rtc,
		Events:  f.events,
		Preview: f.preview,
	})
	return f
}

// seconds makes the timer goroutine's tick count n seconds later.
func (f *fixture) seconds(n int) {
	f.c.ticks.Add(uint64(n) * f.c.perSecond)
}

// press presses and releases a button.
func (f *fixture) press(s input.Source, at time.Time, held time.Duration) {
	f.c.Buttons().Edge(s, true, at)
	f.c.Buttons().Edge(s, false, at.Add(held))
}

// gray is the clockwise phase sequence as (A, B).
var gray = [4][2]bool{{false, false}, {false, true}, {true, true}, {true, false}}

func (f *fixture) turn(clicks int) {
	for steps := clicks * input.DefaultStepsPerClick; steps != 0; {
		if steps > 0 {
			f.pos = (f.pos + 1) % 4
			steps--
		} else {
			f.pos = (f.pos + 3) % 4
			steps++
		}
		f.c.Encoder().Sample(gray[f.pos][0], gray[f.pos][1])
	}
}

// shown decodes the digits currently published to the display.
func (f *fixture) shown() [6]int {
	var result [6]int
	for i, p := range f.c.frames.Snapshot().Digits {
		d, ok := display.Decode(p)
		if !ok {
			d = -1
		}
		result[i] = d
	}
	return result
}

func equalTypes(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestAlarmRingsAndSwitchSilences(t *testing.T) {
	boot := time.Date(2024, 7, 9, 6, 59, 58, 0, time.UTC)
	f := newFixture(boot, alarm.AlarmConfig{Hour: 7, Minute: 0, Enabled: true})
	f.c.Buttons().Init(input.ToggleSwitch, true)
	f.c.machine.SetSwitch(true)
	now := time.Now()

	f.c.iterate(now)
	if got, want := f.shown(), [6]int{0, 6, 5, 9, 5, 8}; got != want {
		t.Errorf("digits at boot:\n  got: %v\n want: %v", got, want)
	}
	if f.pin.sounding {
		t.Error("buzzer sounding before the alarm")
	}

	f.seconds(2)
	f.c.iterate(now)
	if got, want := f.c.machine.Mode(), alarm.Alarming; got != want {
		t.Fatalf("mode:\n  got: %v\n want: %v", got, want)
	}
	if got, want := f.shown(), [6]int{0, 7, 0, 0, 0, 0}; got != want {
		t.Errorf("digits at alarm:\n  got: %v\n want: %v", got, want)
	}
	if got, want := f.c.frames.Snapshot().Aux, display.AuxColon|display.AuxAlarmArmed|display.AuxRinging; got != want {
		t.Errorf("aux:\n  got: %08b\n want: %08b", got, want)
	}
	if !f.pin.sounding {
		t.Error("buzzer silent while alarming")
	}
	if got, want := f.preview.frame, f.c.frames.Snapshot(); got != want {
		t.Errorf("preview:\n  got: %v\n want: %v", got, want)
	}

	// Turning the switch off silences the buzzer in the same iteration.
	f.c.Buttons().Edge(input.ToggleSwitch, false, now)
	f.c.iterate(now)
	if f.pin.sounding {
		t.Error("buzzer still sounding after switch off")
	}
	if got, want := f.c.machine.Mode(), alarm.Clock; got != want {
		t.Errorf("mode after switch off:\n  got: %v\n want: %v", got, want)
	}
	if got, want := f.c.frames.Snapshot().Aux, display.AuxColon; got != want {
		t.Errorf("aux after switch off:\n  got: %08b\n want: %08b", got, want)
	}
	if got, want := f.events.Types(), []string{telemetry.AlarmFired, telemetry.Silenced}; !equalTypes(got, want) {
		t.Errorf("events:\n  got: %v\n want: %v", got, want)
	}
}

func TestSnooze(t *testing.T) {
	boot := time.Date(2024, 7, 9, 6, 59, 59, 0, time.UTC)
	f := newFixture(boot, alarm.AlarmConfig{Hour: 7, Minute: 0, Enabled: true})
	f.c.machine.SetSwitch(true)
	now := time.Now()

	f.seconds(1)
	f.c.iterate(now)
	if !f.pin.sounding {
		t.Fatal("buzzer silent at alarm time")
	}

	f.press(input.Snooze, now, 100*time.Millisecond)
	f.c.iterate(now.Add(100 * time.Millisecond))
	if got, want := f.c.machine.Mode(), alarm.Snoozed; got != want {
		t.Fatalf("mode after snooze:\n  got: %v\n want: %v", got, want)
	}
	if f.pin.sounding {
		t.Error("buzzer sounding while snoozed")
	}

	f.seconds(int(alarm.DefaultSnooze / time.Second))
	f.c.iterate(now.Add(time.Second))
	if got, want := f.c.machine.Mode(), alarm.Alarming; got != want {
		t.Errorf("mode after snooze period:\n  got: %v\n want: %v", got, want)
	}
	if !f.pin.sounding {
		t.Error("buzzer silent after snooze period")
	}
	want := []string{telemetry.AlarmFired, telemetry.Snoozed, telemetry.AlarmFired}
	if got := f.events.Types(); !equalTypes(got, want) {
		t.Errorf("events:\n  got: %v\n want: %v", got, want)
	}
}

func TestSetTime(t *testing.T) {
	boot := time.Date(2024, 7, 9, 10, 20, 30, 0, time.UTC)
	f := newFixture(boot, alarm.AlarmConfig{Hour: 7})
	now := boot

	f.press(input.EncoderButton, now, 1500*time.Millisecond)
	now = now.Add(1500 * time.Millisecond)
	f.c.iterate(now)
	if got, want := f.c.machine.Mode(), alarm.SetHour; got != want {
		t.Fatalf("mode after long press:\n  got: %v\n want: %v", got, want)
	}

	f.turn(1)
	f.c.iterate(now)
	if got, want := f.shown(), [6]int{1, 1, 2, 0, -1, -1}; got != want {
		t.Errorf("digits while setting hour:\n  got: %v\n want: %v", got, want)
	}

	now = now.Add(time.Second)
	f.press(input.EncoderButton, now, 100*time.Millisecond)
	now = now.Add(100 * time.Millisecond)
	f.c.iterate(now)
	if got, want := f.c.machine.Mode(), alarm.SetMinute; got != want {
		t.Fatalf("mode after press:\n  got: %v\n want: %v", got, want)
	}

	f.turn(-1)
	now = now.Add(time.Second)
	f.press(input.EncoderButton, now, 100*time.Millisecond)
	now = now.Add(100 * time.Millisecond)
	f.c.iterate(now)
	if got, want := f.c.machine.Mode(), alarm.Clock; got != want {
		t.Fatalf("mode after confirm:\n  got: %v\n want: %v", got, want)
	}
	if got, want := f.shown(), [6]int{1, 1, 1, 9, 0, 0}; got != want {
		t.Errorf("digits after confirm:\n  got: %v\n want: %v", got, want)
	}
	if len(f.rtc.writes) != 1 {
		t.Fatalf("rtc writes:\n  got: %v\n want: 1 write", f.rtc.writes)
	}
	if got, want := f.rtc.writes[0], time.Date(2024, 7, 9, 11, 19, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("rtc write:\n  got: %v\n want: %v", got, want)
	}
	if got, want := f.events.Types(), []string{telemetry.TimeSet}; !equalTypes(got, want) {
		t.Errorf("events:\n  got: %v\n want: %v", got, want)
	}
}

func TestFailedSaveKeepsEditedTime(t *testing.T) {
	boot := time.Date(2024, 7, 9, 10, 20, 30, 0, time.UTC)
	f := newFixture(boot, alarm.AlarmConfig{Hour: 7})
	f.rtc.writeErr = errors.New("nack")
	now := time.Now()

	// Set the time to 11:20.
	f.press(input.EncoderButton, now, 1500*time.Millisecond)
	now = now.Add(1500 * time.Millisecond)
	f.c.iterate(now)
	f.turn(1)
	f.c.iterate(now)
	now = now.Add(time.Second)
	f.press(input.EncoderButton, now, 100*time.Millisecond)
	now = now.Add(100 * time.Millisecond)
	f.c.iterate(now)
	now = now.Add(time.Second)
	f.press(input.EncoderButton, now, 100*time.Millisecond)
	now = now.Add(100 * time.Millisecond)
	f.c.iterate(now)
	if got, want := f.c.machine.Now(), (alarm.WallTime{Hour: 11, Minute: 20}); got != want {
		t.Fatalf("time after confirm:\n  got: %v\n want: %v", got, want)
	}
	if got, want := len(f.rtc.writes), 1; got != want {
		t.Fatalf("rtc writes after confirm:\n  got: %v\n want: %v", got, want)
	}

	// The RTC still holds 10:20:30; resyncing must not bring it back.
	f.c.iterate(now.Add(2 * time.Minute))
	if got, want := f.c.machine.Now().Hour, 11; got != want {
		t.Errorf("hour after resync with unsaved time:\n  got: %v\n want: %v", got, want)
	}
	if got, want := len(f.rtc.writes), 2; got != want {
		t.Errorf("rtc writes after resync:\n  got: %v\n want: %v", got, want)
	}

	// Once a write lands, resyncing reads the RTC again.
	f.rtc.writeErr = nil
	f.c.iterate(now.Add(4 * time.Minute))
	if got, want := len(f.rtc.writes), 3; got != want {
		t.Fatalf("rtc writes after recovery:\n  got: %v\n want: %v", got, want)
	}
	if got, want := f.rtc.t.Hour(), 11; got != want {
		t.Errorf("rtc hour after recovery:\n  got: %v\n want: %v", got, want)
	}
	f.c.iterate(now.Add(6 * time.Minute))
	if got, want := f.c.machine.Now(), (alarm.WallTime{Hour: 11, Minute: 20}); got != want {
		t.Errorf("time after recovered resync:\n  got: %v\n want: %v", got, want)
	}
	if got, want := len(f.rtc.writes), 3; got != want {
		t.Errorf("rtc writes after recovered resync:\n  got: %v\n want: %v", got, want)
	}
}

func TestFrame(t *testing.T) {
	testData := []struct {
		name string
		view alarm.View
		face alarm.Face
		want byte
	}{
		{
			name: "morning",
			face: alarm.Face{Hour: 7, Seconds: true},
			want: display.AuxColon,
		},
		{
			name: "noon",
			face: alarm.Face{Hour: 12, Seconds: true},
			want: display.AuxColon | display.AuxPM,
		},
		{
			name: "armed evening",
			view: alarm.View{Alarm: alarm.AlarmConfig{Hour: 7, Enabled: true}, Switch: true},
			face: alarm.Face{Hour: 23, Minute: 59, Seconds: true},
			want: display.AuxColon | display.AuxAlarmArmed | display.AuxPM,
		},
		{
			name: "enabled but switched off",
			view: alarm.View{Alarm: alarm.AlarmConfig{Hour: 7, Enabled: true}},
			face: alarm.Face{Hour: 11, Minute: 59, Seconds: true},
			want: display.AuxColon,
		},
		{
			name: "editing an afternoon alarm",
			view: alarm.View{Mode: alarm.SetAlarmHour},
			face: alarm.Face{Hour: 14},
			want: display.AuxColon | display.AuxPM,
		},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			if got, want := Frame(test.view, test.face).Aux, test.want; got != want {
				t.Errorf("aux:\n  got: %08b\n want: %08b", got, want)
			}
		})
	}
}

func TestResync(t *testing.T) {
	boot := time.Date(2024, 7, 9, 10, 0, 0, 0, time.UTC)
	f := newFixture(boot, alarm.AlarmConfig{Hour: 7})

	f.seconds(1)
	f.c.iterate(time.Now())
	if got, want := f.c.machine.Now(), (alarm.WallTime{Hour: 10, Second: 1}); got != want {
		t.Errorf("time before resync:\n  got: %v\n want: %v", got, want)
	}

	f.rtc.t = boot.Add(3 * time.Second)
	f.c.iterate(time.Now().Add(2 * time.Minute))
	if got, want := f.c.machine.Now(), (alarm.WallTime{Hour: 10, Second: 3}); got != want {
		t.Errorf("time after resync:\n  got: %v\n want: %v", got, want)
	}

	// A failed read keeps the tick-maintained time.
	f.rtc.err = errors.New("nack")
	f.seconds(1)
	f.c.iterate(time.Now().Add(4 * time.Minute))
	if got, want := f.c.machine.Now(), (alarm.WallTime{Hour: 10, Second: 4}); got != want {
		t.Errorf("time after failed resync:\n  got: %v\n want: %v", got, want)
	}
}

func TestBootWithoutRTC(t *testing.T) {
	before := alarm.FromTime(time.Now().In(time.UTC))
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	c := New(cfg, Hardware{RTC: &fakeRTC{err: errors.New("no device")}})
	got := c.machine.Now()
	if got.Hour != before.Hour && got.Hour != (before.Hour+1)%24 {
		t.Errorf("boot time:\n  got: %v\n want: about %v", got, before)
	}
	// Nothing attached; iterating must not panic.
	c.iterate(time.Now())
}

func TestDrift(t *testing.T) {
	testData := []struct {
		a, b alarm.WallTime
		want int
	}{
		{alarm.WallTime{Hour: 10, Second: 3}, alarm.WallTime{Hour: 10, Second: 1}, 2},
		{alarm.WallTime{Hour: 10}, alarm.WallTime{Hour: 10, Second: 1}, -1},
		{alarm.WallTime{Hour: 0, Second: 1}, alarm.WallTime{Hour: 23, Minute: 59, Second: 59}, 2},
		{alarm.WallTime{Hour: 23, Minute: 59, Second: 59}, alarm.WallTime{Hour: 0, Second: 1}, -2},
	}
	for _, test := range testData {
		if got := drift(test.a, test.b); got != test.want {
			t.Errorf("drift(%v, %v):\n  got: %v\n want: %v", test.a, test.b, got, test.want)
		}
	}
}

func TestTranslate(t *testing.T) {
	testData := []struct {
		edge input.ButtonEdge
		want alarm.Input
		ok   bool
	}{
		{input.ButtonEdge{Source: input.ToggleSwitch, Edge: input.Pressed}, alarm.SwitchOn, true},
		{input.ButtonEdge{Source: input.ToggleSwitch, Edge: input.Released}, alarm.SwitchOff, true},
		{input.ButtonEdge{Source: input.EncoderButton, Edge: input.Pressed}, 0, false},
		{input.ButtonEdge{Source: input.EncoderButton, Edge: input.Released}, alarm.EncoderPress, true},
		{input.ButtonEdge{Source: input.EncoderButton, Edge: input.Released, Long: true}, alarm.EncoderLongPress, true},
		{input.ButtonEdge{Source: input.Snooze, Edge: input.Released}, alarm.SnoozePress, true},
		{input.ButtonEdge{Source: input.Snooze, Edge: input.Released, Long: true}, alarm.SnoozeLongPress, true},
	}
	for _, test := range testData {
		got, ok := translate(test.edge)
		if got != test.want || ok != test.ok {
			t.Errorf("translate(%v):\n  got: %v, %v\n want: %v, %v", test.edge, got, ok, test.want, test.ok)
		}
	}
}
