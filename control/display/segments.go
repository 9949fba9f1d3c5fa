package display

// Segment bits.  A is the top bar, and the rest go clockwise, with G in the middle.
const (
	SegA byte = 1 << iota
	SegB
	SegC
	SegD
	SegE
	SegF
	SegG
	SegDP
)

// Blank is the pattern for an unlit digit.
const Blank byte = 0

var digitPatterns = [10]byte{
	0x3f, // 0
	0x06, // 1
	0x5b, // 2
	0x4f, // 3
	0x66, // 4
	0x6d, // 5
	0x7d, // 6
	0x07, // 7
	0x7f, // 8
	0x6f, // 9
}

// Encode returns the segment pattern for a decimal digit.  Anything that isn't a single decimal
// digit renders as Blank.
func Encode(digit int) byte {
	if digit < 0 || digit > 9 {
		return Blank
	}
	return digitPatterns[digit]
}

// Decode returns the decimal digit that pattern shows, ignoring the decimal point.
func Decode(pattern byte) (int, bool) {
	pattern &^= SegDP
	for d, p := range digitPatterns {
		if p == pattern {
			return d, true
		}
	}
	return 0, false
}

// FaceDigits renders a time of day as HH MM SS.  If seconds is false, the two seconds digits are
// blank.
func FaceDigits(h, m, s int, seconds bool) Digits {
	d := Digits{
		Encode(h / 10), Encode(h % 10),
		Encode(m / 10), Encode(m % 10),
	}
	if seconds {
		d[4] = Encode(s / 10)
		d[5] = Encode(s % 10)
	}
	return d
}
