// Package clock runs the alarm clock: a timer goroutine that scans the digits and drives the
// buzzer, and a main loop that feeds the inputs to the state machine and publishes what it shows.
package clock

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/jrockway/alarm-clock/control/alarm"
	"github.com/jrockway/alarm-clock/control/buzzer"
	"github.com/jrockway/alarm-clock/control/display"
	"github.com/jrockway/alarm-clock/control/input"
	"github.com/jrockway/alarm-clock/control/menu"
	"github.com/jrockway/alarm-clock/control/shiftreg"
	"github.com/jrockway/alarm-clock/control/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

var (
	missedTicksCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "missed_ticks",
		Help: "count of seconds signalled by the timer but never received by the main loop",
	})

	stepDurationMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tick_step_duration",
		Help:    "time spent scanning the display and driving the buzzer on each tick, in nanoseconds",
		Buckets: prometheus.ExponentialBuckets(1000, 10, 8),
	})

	driftMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtc_drift_seconds",
		Help:    "rtc time minus the tick-maintained time at each resync",
		Buckets: prometheus.LinearBuckets(-5, 1, 11),
	})

	inputsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inputs",
		Help: "count of inputs handled by the state machine, by input",
	}, []string{"input"})

	lcdErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lcd_errors",
		Help: "count of failed writes to the character display",
	})
)

// Tick calls step every period and counts the call in ticks.  Every perSecond ticks, it sends the
// time to ch.  An absent listener will not receive an outdated time; the second will be skipped and
// the missedTicksCounter incremented.  The listener can recover the skipped second from ticks.
// Cancelling the context causes this to return immediately.
func Tick(ctx context.Context, period time.Duration, perSecond uint64, step func(), ticks *atomic.Uint64, ch chan<- time.Time) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		var now time.Time
		select {
		case now = <-t.C:
		case <-ctx.Done():
			return fmt.Errorf("waiting for next tick: %w", ctx.Err())
		}

		start := time.Now()
		step()
		stepDurationMetric.Observe(float64(time.Since(start).Nanoseconds()))

		if n := ticks.Add(1); n%perSecond == 0 {
			select {
			case ch <- now:
			default:
				missedTicksCounter.Inc()
			}
		}
	}
}

// Config controls the timing of the clock.
type Config struct {
	Refresh       time.Duration // timer period; each tick lights the next digit
	Poll          time.Duration // how often the main loop looks at the inputs
	Resync        time.Duration // how often the time is re-read from the RTC
	Snooze        time.Duration
	Debounce      time.Duration
	LongPress     time.Duration
	BeepOn        time.Duration
	BeepOff       time.Duration
	StepsPerClick int
	Alarm         alarm.AlarmConfig // the alarm at boot
	Location      *time.Location
}

// DefaultConfig returns the configuration the clock is built for.
func DefaultConfig() Config {
	return Config{
		Refresh:       display.DefaultRefresh,
		Poll:          10 * time.Millisecond,
		Resync:        time.Minute,
		Snooze:        alarm.DefaultSnooze,
		Debounce:      input.DefaultDebounce,
		LongPress:     input.DefaultLongPress,
		BeepOn:        buzzer.DefaultOn,
		BeepOff:       buzzer.DefaultOff,
		StepsPerClick: input.DefaultStepsPerClick,
		Alarm:         alarm.AlarmConfig{Hour: 7},
		Location:      time.Local,
	}
}

// RTC keeps the time while the clock is unplugged.  *rtc.Monitor satisfies it.
type RTC interface {
	Read() (time.Time, error)
	Write(time.Time) error
}

// Preview shows a copy of the displays somewhere else.  *screen.Preview satisfies it.
type Preview interface {
	Show(display.Frame, menu.Text)
}

// Hardware is what the clock is attached to.  Anything may be nil.
type Hardware struct {
	Digits  display.Driver
	Buzzer  gpio.PinOut
	Tone    physic.Frequency // zero for an active buzzer
	LCD     menu.LCD
	RTC     RTC
	Events  telemetry.Publisher
	Preview Preview
}

type nopDriver struct{}

func (nopDriver) ShiftOut(byte, shiftreg.Target) {}
func (nopDriver) Off()                           {}

// Clock ties the state machine to the hardware.
type Clock struct {
	cfg Config
	hw  Hardware

	machine *alarm.Machine
	frames  *display.Buffer
	engine  *display.Engine
	buzzer  *buzzer.Buzzer
	menu    *menu.Writer

	queue   *input.Queue
	encoder *input.Quadrature
	buttons *input.Debouncer

	ticks     atomic.Uint64 // written by the timer goroutine
	perSecond uint64

	// Owned by the main loop.
	seconds  uint64 // seconds of ticks already applied to the machine
	lastSync time.Time
	unsaved  bool // the RTC doesn't have the last time the user set
	edges    []input.ButtonEdge
	notices  []alarm.Notice
	dirty    bool
}

// New reads the time from the RTC, falling back to the system time, and returns a clock showing it.
func New(cfg Config, hw Hardware) *Clock {
	if cfg.Refresh <= 0 {
		cfg.Refresh = display.DefaultRefresh
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Millisecond
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	perSecond := uint64(time.Second / cfg.Refresh)
	if perSecond == 0 {
		perSecond = 1
	}

	boot := time.Now()
	if hw.RTC != nil {
		t, err := hw.RTC.Read()
		if err != nil {
			log.Printf("rtc unavailable, starting from system time: %v", err)
		} else {
			boot = t
		}
	}

	c := &Clock{
		cfg:       cfg,
		hw:        hw,
		machine:   alarm.New(cfg.Snooze, alarm.FromTime(boot.In(cfg.Location)), cfg.Alarm),
		frames:    new(display.Buffer),
		queue:     new(input.Queue),
		encoder:   input.NewQuadrature(cfg.StepsPerClick, true, true),
		perSecond: perSecond,
		lastSync:  time.Now(),
		edges:     make([]input.ButtonEdge, 0, input.QueueSize),
		notices:   make([]alarm.Notice, 0, 8),
		dirty:     true,
	}
	c.buttons = input.NewDebouncer(c.queue, cfg.Debounce, cfg.LongPress)
	drv := hw.Digits
	if drv == nil {
		drv = nopDriver{}
	}
	c.engine = display.NewEngine(drv, c.frames)
	if hw.Buzzer != nil {
		c.buzzer = buzzer.New(hw.Buzzer, hw.Tone, cfg.BeepOn, cfg.BeepOff, cfg.Refresh)
	}
	if hw.LCD != nil {
		c.menu = menu.NewWriter(hw.LCD)
	}
	return c
}

// Encoder returns the quadrature accumulator to feed encoder edges into.
func (c *Clock) Encoder() *input.Quadrature {
	return c.encoder
}

// Buttons returns the debouncer to feed button and switch edges into.
func (c *Clock) Buttons() *input.Debouncer {
	return c.buttons
}

// Run runs the clock until the context is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	c.machine.SetSwitch(c.buttons.Level(input.ToggleSwitch))
	c.publish()

	tickErrCh := make(chan error, 1)
	secondCh := make(chan time.Time, 1)
	go func() {
		tickErrCh <- Tick(ctx, c.cfg.Refresh, c.perSecond, c.step, &c.ticks, secondCh)
	}()

	poll := time.NewTicker(c.cfg.Poll)
	defer poll.Stop()
	for {
		select {
		case err := <-tickErrCh:
			c.shutdown()
			return fmt.Errorf("ticker: %w", err)
		case now := <-secondCh:
			c.iterate(now)
		case now := <-poll.C:
			c.iterate(now)
		}
	}
}

// step runs on the timer goroutine.
func (c *Clock) step() {
	c.engine.Step()
	if c.buzzer != nil {
		c.buzzer.Tick()
	}
}

// shutdown leaves the hardware dark and quiet.  The timer goroutine must have exited.
func (c *Clock) shutdown() {
	if c.buzzer != nil {
		c.buzzer.SetActive(false)
	}
	c.engine.Blank()
}

// iterate is one pass of the main loop.
func (c *Clock) iterate(now time.Time) {
	if st := c.encoder.Poll(); st.Delta != 0 {
		in, n := alarm.Increment, st.Delta
		if n < 0 {
			in, n = alarm.Decrement, -n
		}
		for i := 0; i < n; i++ {
			c.handle(in)
		}
	}

	c.buttons.Poll(now)
	c.edges = c.queue.Drain(c.edges[:0])
	for _, e := range c.edges {
		if in, ok := translate(e); ok {
			c.handle(in)
		}
	}

	for elapsed := c.ticks.Load() / c.perSecond; c.seconds < elapsed; c.seconds++ {
		c.machine.Tick()
		c.dirty = true
	}

	if c.hw.RTC != nil && now.Sub(c.lastSync) >= c.cfg.Resync {
		c.resync(now)
	}

	c.notices = c.machine.Notices(c.notices[:0])
	for _, n := range c.notices {
		c.notice(now, n)
	}

	if c.dirty {
		c.publish()
		c.dirty = false
	}
}

// translate maps a debounced edge to the input it means.  Buttons act when released, because
// that's when a long press can be told apart from a short one.
func translate(e input.ButtonEdge) (alarm.Input, bool) {
	switch e.Source {
	case input.ToggleSwitch:
		if e.Edge == input.Pressed {
			return alarm.SwitchOn, true
		}
		return alarm.SwitchOff, true
	case input.EncoderButton:
		if e.Edge == input.Released {
			if e.Long {
				return alarm.EncoderLongPress, true
			}
			return alarm.EncoderPress, true
		}
	case input.Snooze:
		if e.Edge == input.Released {
			if e.Long {
				return alarm.SnoozeLongPress, true
			}
			return alarm.SnoozePress, true
		}
	}
	return 0, false
}

func (c *Clock) handle(in alarm.Input) {
	inputsCounter.WithLabelValues(in.String()).Inc()
	c.machine.Handle(in)
	c.dirty = true
}

// resync replaces the tick-maintained time with the RTC's.  A failed read keeps counting ticks.
// While a time the user set hasn't reached the RTC, the write is retried instead, so the RTC's stale
// time never replaces it.
func (c *Clock) resync(now time.Time) {
	c.lastSync = now
	if c.unsaved {
		c.save(now, c.machine.Now())
		return
	}
	t, err := c.hw.RTC.Read()
	if err != nil {
		return
	}
	rtcTime := alarm.FromTime(t.In(c.cfg.Location))
	driftMetric.Observe(float64(drift(rtcTime, c.machine.Now())))
	c.machine.Sync(rtcTime)
	c.dirty = true
}

// drift returns a-b in seconds, taking the shorter way around midnight.
func drift(a, b alarm.WallTime) int {
	const day = 24 * 60 * 60
	d := secondOfDay(a) - secondOfDay(b)
	switch {
	case d > day/2:
		d -= day
	case d < -day/2:
		d += day
	}
	return d
}

func secondOfDay(t alarm.WallTime) int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

func (c *Clock) notice(now time.Time, n alarm.Notice) {
	switch n.Kind {
	case alarm.ModeChanged:
		log.Printf("%v -> %v at %v", n.From, n.To, n.Time)
		switch {
		case n.To == alarm.Alarming:
			c.report(now, telemetry.AlarmFired)
		case n.To == alarm.Snoozed:
			c.report(now, telemetry.Snoozed)
		case n.To == alarm.Clock && (n.From == alarm.Alarming || n.From == alarm.Snoozed):
			c.report(now, telemetry.Silenced)
		}
	case alarm.TimeSet:
		log.Printf("time set to %v", n.Time)
		if c.hw.RTC != nil {
			c.save(now, n.Time)
			c.lastSync = now
		}
		c.report(now, telemetry.TimeSet)
	case alarm.AlarmSet:
		log.Printf("alarm set to %v", n.Alarm)
		c.report(now, telemetry.AlarmSet)
	}
}

// save writes t on today's date to the RTC.
func (c *Clock) save(now time.Time, t alarm.WallTime) {
	if err := c.hw.RTC.Write(t.On(now.In(c.cfg.Location))); err != nil {
		log.Printf("saving time: %v", err)
		c.unsaved = true
		return
	}
	c.unsaved = false
}

func (c *Clock) report(now time.Time, typ string) {
	if c.hw.Events == nil {
		return
	}
	v := c.machine.View()
	err := c.hw.Events.Publish(telemetry.Event{
		Timestamp: now,
		Type:      typ,
		Mode:      v.Mode.String(),
		Time:      v.Time.String(),
		Alarm:     v.Alarm.String(),
	})
	if err != nil {
		log.Printf("report %s: %v", typ, err)
	}
}

// Frame returns what the digit chain should show for v.
func Frame(v alarm.View, face alarm.Face) display.Frame {
	f := display.Frame{
		Digits: display.FaceDigits(face.Hour, face.Minute, face.Second, face.Seconds),
		Aux:    display.AuxColon,
	}
	if v.Alarm.Enabled && v.Switch {
		f.Aux |= display.AuxAlarmArmed
	}
	if v.Mode == alarm.Alarming {
		f.Aux |= display.AuxRinging
	}
	if face.Hour >= 12 {
		f.Aux |= display.AuxPM
	}
	return f
}

// publish sends the machine's state to every output.
func (c *Clock) publish() {
	v := c.machine.View()
	f := Frame(v, c.machine.Face())
	text := menu.Render(v)

	c.frames.Publish(f)
	if c.buzzer != nil {
		c.buzzer.SetActive(c.machine.Ringing())
	}
	if c.menu != nil {
		if err := c.menu.Write(text); err != nil {
			lcdErrors.Inc()
			log.Printf("lcd: %v", err)
		}
	}
	if c.hw.Preview != nil {
		c.hw.Preview.Show(f, text)
	}
}
