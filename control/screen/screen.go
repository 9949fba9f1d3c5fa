// Package screen draws what the clock is showing into an image, for debugging the rest of the
// program without the hardware attached.
package screen

import (
	"image"
	"image/color"
	"image/png"
	"log"
	"net/http"
	"sync"

	"github.com/jrockway/alarm-clock/control/display"
	"github.com/jrockway/alarm-clock/control/menu"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	margin       = 20
	digitWidth   = 40
	digitHeight  = 70
	digitSpacing = 12
	colonSpacing = 24 // extra space between HH, MM and SS
	segment      = 7  // bar thickness
	ledSize      = 10
	lcdLineSpace = 18
	lcdPadding   = 8

	width     = 2*margin + 6*digitWidth + 5*digitSpacing + 2*colonSpacing
	ledTop    = margin + digitHeight + margin/2
	lcdTop    = ledTop + ledSize + margin
	lcdHeight = 2*lcdLineSpace + 2*lcdPadding
	height    = lcdTop + lcdHeight + margin
)

var (
	background = color.NRGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}
	segmentOn  = color.NRGBA{R: 0xff, G: 0x30, B: 0x10, A: 0xff}
	segmentOff = color.NRGBA{R: 0x30, G: 0x18, B: 0x18, A: 0xff}
	ledOn      = color.NRGBA{R: 0x30, G: 0xff, B: 0x30, A: 0xff}
	lcdBack    = color.NRGBA{R: 0x40, G: 0x60, B: 0xff, A: 0xff}
	lcdText    = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// segmentRects are the bars of one digit, relative to its top-left corner, in bit order A-G, DP.
var segmentRects = [8]image.Rectangle{
	image.Rect(segment, 0, digitWidth-segment, segment),
	image.Rect(digitWidth-segment, segment, digitWidth, digitHeight/2),
	image.Rect(digitWidth-segment, digitHeight/2, digitWidth, digitHeight-segment),
	image.Rect(segment, digitHeight-segment, digitWidth-segment, digitHeight),
	image.Rect(0, digitHeight/2, segment, digitHeight-segment),
	image.Rect(0, segment, segment, digitHeight/2),
	image.Rect(segment, digitHeight/2-segment/2, digitWidth-segment, digitHeight/2+segment/2+1),
	image.Rect(digitWidth+2, digitHeight-segment, digitWidth+2+segment, digitHeight),
}

// Preview keeps a picture of the digits, indicator LEDs and character display.
type Preview struct {
	imageMu sync.Mutex
	image   *image.NRGBA // must hold imageMu to read or write.
}

// NewPreview returns a preview showing a blank clock.
func NewPreview() *Preview {
	p := &Preview{image: image.NewNRGBA(image.Rect(0, 0, width, height))}
	var blank menu.Text
	for i := range blank {
		for j := range blank[i] {
			blank[i][j] = ' '
		}
	}
	p.Show(display.Frame{}, blank)
	return p
}

// digitOrigin returns the top-left corner of digit i.
func digitOrigin(i int) image.Point {
	return image.Pt(margin+i*(digitWidth+digitSpacing)+(i/2)*colonSpacing, margin)
}

// ledOrigin returns the top-left corner of indicator LED bit i.
func ledOrigin(i int) image.Point {
	return image.Pt(margin+i*(ledSize+digitSpacing), ledTop)
}

func fill(img draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

// Show redraws the preview.
func (p *Preview) Show(f display.Frame, t menu.Text) {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	fill(img, img.Bounds(), background)
	for i, pattern := range f.Digits {
		o := digitOrigin(i)
		for bit, r := range segmentRects {
			c := segmentOff
			if pattern&(1<<uint(bit)) != 0 {
				c = segmentOn
			}
			fill(img, r.Add(o), c)
		}
	}
	for i := 0; i < 8; i++ {
		if f.Aux&(1<<uint(i)) != 0 {
			o := ledOrigin(i)
			fill(img, image.Rect(o.X, o.Y, o.X+ledSize, o.Y+ledSize), ledOn)
		}
	}
	fill(img, image.Rect(margin, lcdTop, width-margin, lcdTop+lcdHeight), lcdBack)
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(lcdText),
		Face: basicfont.Face7x13,
	}
	for i := 0; i < menu.Lines; i++ {
		drawer.Dot = fixed.P(margin+lcdPadding, lcdTop+lcdPadding+(i+1)*lcdLineSpace-4)
		drawer.DrawString(t.Line(i))
	}

	p.imageMu.Lock()
	defer p.imageMu.Unlock()
	p.image = img
}

// ServeHTTP serves the current image as a PNG.
func (p *Preview) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Add("content-type", "image/png")
	w.WriteHeader(http.StatusOK)
	p.imageMu.Lock()
	defer p.imageMu.Unlock()
	if err := png.Encode(w, p.image); err != nil {
		log.Printf("encoding image: %v", err)
	}
}
