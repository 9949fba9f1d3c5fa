package menu

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jrockway/alarm-clock/control/alarm"
)

func TestRender(t *testing.T) {
	now := alarm.WallTime{Hour: 7, Minute: 5, Second: 9}
	testData := []struct {
		name string
		view alarm.View
		want [2]string
	}{
		{
			name: "clock, alarm on",
			view: alarm.View{Mode: alarm.Clock, Time: now, Alarm: alarm.AlarmConfig{Hour: 6, Minute: 30, Enabled: true}, Switch: true},
			want: [2]string{"    07:05:09    ", "Alarm 06:30  ON "},
		},
		{
			name: "clock, alarm off",
			view: alarm.View{Mode: alarm.Clock, Time: now, Alarm: alarm.AlarmConfig{Hour: 6, Minute: 30}, Switch: true},
			want: [2]string{"    07:05:09    ", "Alarm 06:30  OFF"},
		},
		{
			name: "clock, switch off",
			view: alarm.View{Mode: alarm.Clock, Time: now, Alarm: alarm.AlarmConfig{Hour: 6, Minute: 30, Enabled: true}},
			want: [2]string{"    07:05:09    ", "Alarm 06:30  SW "},
		},
		{
			name: "set hour",
			view: alarm.View{Mode: alarm.SetHour, Time: now, Shadow: alarm.WallTime{Hour: 9, Minute: 41}},
			want: [2]string{"Set time        ", "    [09]:41     "},
		},
		{
			name: "set minute",
			view: alarm.View{Mode: alarm.SetMinute, Time: now, Shadow: alarm.WallTime{Hour: 9, Minute: 41}},
			want: [2]string{"Set time        ", "    09:[41]     "},
		},
		{
			name: "set alarm hour",
			view: alarm.View{Mode: alarm.SetAlarmHour, Time: now, Shadow: alarm.WallTime{Hour: 23, Minute: 0}},
			want: [2]string{"Set alarm       ", "    [23]:00     "},
		},
		{
			name: "set alarm minute",
			view: alarm.View{Mode: alarm.SetAlarmMinute, Time: now, Shadow: alarm.WallTime{Hour: 23, Minute: 0}},
			want: [2]string{"Set alarm       ", "    23:[00]     "},
		},
		{
			name: "alarming",
			view: alarm.View{Mode: alarm.Alarming, Time: now},
			want: [2]string{"    WAKE UP!    ", "    07:05:09    "},
		},
		{
			name: "snoozed",
			view: alarm.View{Mode: alarm.Snoozed, Time: now, SnoozeLeft: 8*time.Minute + 56*time.Second},
			want: [2]string{"Snoozed   07:05 ", "Ring in 08:56   "},
		},
	}
	for _, test := range testData {
		t.Run(test.name, func(t *testing.T) {
			got := Render(test.view)
			for i := range test.want {
				if got.Line(i) != test.want[i] {
					t.Errorf("line %d:\n  got: %q\n want: %q", i, got.Line(i), test.want[i])
				}
			}
		})
	}
}

type fakeLCD struct {
	ops  []string
	fail error
}

func (l *fakeLCD) SetCursor(line, column uint8) error {
	l.ops = append(l.ops, fmt.Sprintf("cursor %d,%d", line, column))
	return nil
}

func (l *fakeLCD) Print(data string) error {
	if l.fail != nil {
		return l.fail
	}
	l.ops = append(l.ops, "print "+data)
	return nil
}

func TestWriterSkipsUnchangedLines(t *testing.T) {
	lcd := &fakeLCD{}
	w := NewWriter(lcd)
	v := alarm.View{Mode: alarm.Clock, Time: alarm.WallTime{Hour: 1, Minute: 2, Second: 3}, Alarm: alarm.AlarmConfig{Hour: 6}}
	if err := w.Write(Render(v)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, want := len(lcd.ops), 4; got != want {
		t.Errorf("ops for first write:\n  got: %v\n want: %v", got, want)
	}

	lcd.ops = nil
	v.Time = v.Time.Advance()
	if err := w.Write(Render(v)); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := fmt.Sprint([]string{"cursor 0,0", "print     01:02:04    "})
	if got := fmt.Sprint(lcd.ops); got != want {
		t.Errorf("ops for second write:\n  got: %v\n want: %v", got, want)
	}

	lcd.ops = nil
	if err := w.Write(Render(v)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(lcd.ops) != 0 {
		t.Errorf("unchanged text was written: %v", lcd.ops)
	}

	w.Invalidate()
	if err := w.Write(Render(v)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, want := len(lcd.ops), 4; got != want {
		t.Errorf("ops after invalidate:\n  got: %v\n want: %v", got, want)
	}
}

func TestWriterRetriesFailedLine(t *testing.T) {
	lcd := &fakeLCD{fail: errors.New("bus error")}
	w := NewWriter(lcd)
	var text Text
	text.set(0, "hello")
	if err := w.Write(text); err == nil {
		t.Fatal("expected error")
	}
	lcd.fail = nil
	lcd.ops = nil
	if err := w.Write(text); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, want := len(lcd.ops), 4; got != want {
		t.Errorf("ops after failure:\n  got: %v (%v)\n want: %v", got, lcd.ops, want)
	}
}
