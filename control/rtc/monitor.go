package rtc

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/trace"
)

var rtcErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rtc_errors",
	Help: "count of failed RTC operations, by operation",
}, []string{"op"})

// Device is something that keeps time across power loss.
type Device interface {
	Read() (time.Time, error)
	Write(time.Time) error
}

// Monitor records every access to a Device on an event log visible at /debug/events, and counts
// failures.
type Monitor struct {
	dev Device
	l   trace.EventLog
}

// NewMonitor wraps dev.  Call Finish when done with it.
func NewMonitor(name string, dev Device) *Monitor {
	return &Monitor{dev: dev, l: trace.NewEventLog("rtc", name)}
}

// Read reads the time from the device.
func (m *Monitor) Read() (time.Time, error) {
	t, err := m.dev.Read()
	if err != nil {
		rtcErrors.WithLabelValues("read").Inc()
		m.l.Errorf("read: %v", err)
		return time.Time{}, fmt.Errorf("read rtc: %w", err)
	}
	m.l.Printf("read %s", t.Format(time.RFC3339))
	return t, nil
}

// Write sets the time on the device.
func (m *Monitor) Write(t time.Time) error {
	if err := m.dev.Write(t); err != nil {
		rtcErrors.WithLabelValues("write").Inc()
		m.l.Errorf("write %s: %v", t.Format(time.RFC3339), err)
		return fmt.Errorf("write rtc: %w", err)
	}
	m.l.Printf("wrote %s", t.Format(time.RFC3339))
	return nil
}

// Finish closes the event log.
func (m *Monitor) Finish() {
	m.l.Finish()
}
