package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrockway/alarm-clock/control/clock"
	"github.com/jrockway/alarm-clock/control/input"
	"github.com/jrockway/alarm-clock/control/rtc"
	"github.com/jrockway/alarm-clock/control/screen"
	"github.com/jrockway/alarm-clock/control/shiftreg"
	"github.com/jrockway/alarm-clock/control/telemetry"
	"github.com/peterbourgon/ff/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/trace"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/hd44780"
	"periph.io/x/host/v3"
)

var (
	fs   = flag.NewFlagSet("run-alarm-clock", flag.ExitOnError)
	bind = fs.String("bind", ":8080", "address to bind for debug/metrics server")
	tz   = fs.String("timezone", "Local", "time zone the clock shows")

	digitData  = fs.String("digit-data", "P9_18", "data pin of the digit shift register chain")
	digitClock = fs.String("digit-clock", "P9_22", "clock pin of the digit shift register chain")
	digitLatch = fs.String("digit-latch", "P9_17", "latch pin of the digit shift register chain")
	digitSPI   = fs.String("digit-spi", "", "if set, spi port to shift the digit chain out of instead of bit-banging data and clock")
	lcdData    = fs.String("lcd-data", "P8_7", "data pin of the lcd shift register")
	lcdClock   = fs.String("lcd-clock", "P8_8", "clock pin of the lcd shift register")
	lcdLatch   = fs.String("lcd-latch", "P8_9", "latch pin of the lcd shift register; empty to run without the lcd")
	buzzerPin  = fs.String("buzzer", "P8_13", "buzzer pin; empty to run silently")
	i2cBus     = fs.String("i2c", "", "i2c bus the rtc is on; empty for the default bus, \"none\" for no rtc")

	gpioChip   = fs.String("gpiochip", "gpiochip0", "gpio chip the encoder and buttons are on; empty to run without inputs")
	encoderA   = fs.Int("encoder-a", 26, "line offset of encoder channel A")
	encoderB   = fs.Int("encoder-b", 27, "line offset of encoder channel B")
	encoderBtn = fs.Int("encoder-button", 14, "line offset of the encoder push button")
	snoozeBtn  = fs.Int("snooze", 15, "line offset of the snooze button")
	toggle     = fs.Int("alarm-switch", 16, "line offset of the alarm on/off switch")

	broker   = fs.String("mqtt-broker", "", "mqtt broker to report events to, like tcp://mqtt:1883; empty to disable")
	clientID = fs.String("mqtt-client-id", "alarm-clock", "mqtt client id")
	topic    = fs.String("mqtt-topic", telemetry.DefaultTopic, "mqtt topic for events")

	defaults      = clock.DefaultConfig()
	refresh       = fs.Duration("refresh", defaults.Refresh, "how long each digit stays lit")
	resync        = fs.Duration("resync", defaults.Resync, "how often to re-read the time from the rtc")
	snooze        = fs.Duration("snooze", defaults.Snooze, "snooze length")
	debounce      = fs.Duration("debounce", defaults.Debounce, "button debounce window")
	longPress     = fs.Duration("long-press", defaults.LongPress, "how long a button must be held to count as a long press")
	beepOn        = fs.Duration("beep-on", defaults.BeepOn, "length of each beep")
	beepOff       = fs.Duration("beep-off", defaults.BeepOff, "gap between beeps")
	stepsPerClick = fs.Int("steps-per-click", defaults.StepsPerClick, "encoder quarter steps per detent")

	tone physic.Frequency
)

func pin(name string) gpio.PinOut {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("no gpio pin named %q", name)
	}
	return p
}

func main() {
	fs.Var(&tone, "tone", "square wave frequency for a passive piezo, like 2kHz; 0 holds the pin high for an active buzzer")
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("ALARM_CLOCK")); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if _, err := host.Init(); err != nil {
		log.Fatalf("init periph.io: %v", err)
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		log.Fatalf("load timezone %q: %v", *tz, err)
	}

	cfg := clock.Config{
		Refresh:       *refresh,
		Poll:          defaults.Poll,
		Resync:        *resync,
		Snooze:        *snooze,
		Debounce:      *debounce,
		LongPress:     *longPress,
		BeepOn:        *beepOn,
		BeepOff:       *beepOff,
		StepsPerClick: *stepsPerClick,
		Alarm:         defaults.Alarm,
		Location:      loc,
	}
	var hw clock.Hardware

	if *digitSPI != "" {
		port, err := spireg.Open(*digitSPI)
		if err != nil {
			log.Fatalf("open spi port %q: %v", *digitSPI, err)
		}
		defer port.Close()
		conn, err := port.Connect(physic.MegaHertz, spi.Mode0, 8)
		if err != nil {
			log.Fatalf("configure spi port %q: %v", *digitSPI, err)
		}
		hw.Digits = shiftreg.NewSPI(conn, pin(*digitLatch))
	} else {
		hw.Digits = shiftreg.New(pin(*digitData), pin(*digitClock), pin(*digitLatch), shiftreg.MinClockWidth)
	}

	if *lcdLatch != "" {
		reg := shiftreg.NewRegister("LCD", pin(*lcdData), pin(*lcdClock), pin(*lcdLatch), shiftreg.MinClockWidth)
		q := reg.Pins()
		// Q0 is RS, Q1 is E, Q4-Q7 are D4-D7.
		lcd, err := hd44780.New(q[4:8], q[0], q[1])
		if err != nil {
			log.Fatalf("init lcd on %v: %v", reg, err)
		}
		hw.LCD = lcd
	}

	if *buzzerPin != "" {
		hw.Buzzer = pin(*buzzerPin)
		hw.Tone = tone
	}

	if *i2cBus != "none" {
		bus, err := i2creg.Open(*i2cBus)
		if err != nil {
			log.Fatalf("open i2c bus %q: %v", *i2cBus, err)
		}
		defer bus.Close()
		m := rtc.NewMonitor("pcf8523", rtc.New(bus, loc))
		defer m.Finish()
		hw.RTC = m
	}

	preview := screen.NewPreview()
	hw.Preview = preview

	hw.Events = telemetry.Discard{}
	if *broker != "" {
		hw.Events = telemetry.NewMQTT(*broker, *clientID, *topic)
	}
	defer hw.Events.Close()
	if err := hw.Events.Publish(telemetry.Event{Timestamp: time.Now(), Type: telemetry.Startup}); err != nil {
		log.Printf("report startup: %v", err)
	}

	cl := clock.New(cfg, hw)

	if *gpioChip != "" {
		w, err := input.Watch(*gpioChip, input.Lines{
			EncoderA:      *encoderA,
			EncoderB:      *encoderB,
			EncoderButton: *encoderBtn,
			Snooze:        *snoozeBtn,
			ToggleSwitch:  *toggle,
		}, cl.Encoder(), cl.Buttons())
		if err != nil {
			log.Fatalf("watch inputs: %v", err)
		}
		defer w.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Show the trace pages to any host, not just localhost.
	trace.AuthRequest = func(req *http.Request) (any, sensitive bool) { return true, true }
	http.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/display.png", http.StatusFound)
	})
	http.Handle("/display.png", preview)
	http.Handle("/metrics", promhttp.Handler())

	httpDoneCh := make(chan error)
	httpServer := http.Server{Addr: *bind}
	go func() {
		log.Printf("http server listening on %s", httpServer.Addr)
		err := httpServer.ListenAndServe()
		select {
		case httpDoneCh <- err:
		case <-ctx.Done():
		}
		close(httpDoneCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	loopDoneCh := make(chan error, 1)
	go func() {
		loopDoneCh <- cl.Run(ctx)
	}()

	httpAlive, loopAlive := true, true
	select {
	case err := <-httpDoneCh:
		log.Printf("http server died: %v", err)
		httpAlive = false
	case err := <-loopDoneCh:
		log.Printf("clock loop died: %v", err)
		loopAlive = false
	case <-sigCh:
		log.Printf("interrupt")
	}
	signal.Stop(sigCh)
	cancel()
	// Run blanks the digits and silences the buzzer on the way out.
	if loopAlive {
		select {
		case err := <-loopDoneCh:
			log.Printf("clock stopped: %v", err)
		case <-time.After(time.Second):
			log.Printf("clock did not stop")
		}
	}
	if httpAlive {
		tctx, c := context.WithTimeout(context.Background(), time.Second)
		httpServer.Shutdown(tctx)
		c()
	}
}
