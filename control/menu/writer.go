package menu

import "fmt"

// LCD is the character display.  *hd44780.Dev satisfies it.
type LCD interface {
	SetCursor(line, column uint8) error
	Print(data string) error
}

// Writer sends text to an LCD, skipping lines that haven't changed since the last write.  Writing
// a line to an HD44780 on a shift register takes a few milliseconds, so redrawing both lines every
// second is noticeably slow.
type Writer struct {
	lcd   LCD
	last  Text
	valid [Lines]bool
}

// NewWriter returns a Writer for lcd.  The first Write draws both lines.
func NewWriter(lcd LCD) *Writer {
	return &Writer{lcd: lcd}
}

// Write updates the display to show t.  If writing a line fails, that line is redrawn next time.
func (w *Writer) Write(t Text) error {
	for i := 0; i < Lines; i++ {
		if w.valid[i] && w.last[i] == t[i] {
			continue
		}
		w.valid[i] = false
		if err := w.lcd.SetCursor(uint8(i), 0); err != nil {
			return fmt.Errorf("move to line %d: %w", i, err)
		}
		if err := w.lcd.Print(t.Line(i)); err != nil {
			return fmt.Errorf("print line %d: %w", i, err)
		}
		w.last[i] = t[i]
		w.valid[i] = true
	}
	return nil
}

// Invalidate forces the next Write to redraw everything, for example after the display was
// cleared.
func (w *Writer) Invalidate() {
	w.valid = [Lines]bool{}
}
