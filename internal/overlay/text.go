package overlay

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var face = basicfont.Face7x13

// LineHeight is the pixel height of one text line
const LineHeight = 13

// MeasureText returns the pixel size of text, one line per "\n"
func MeasureText(text string) image.Point {
	lines := strings.Split(text, "\n")
	d := &font.Drawer{Face: face}
	w := 0
	for _, l := range lines {
		if lw := d.MeasureString(l).Ceil(); lw > w {
			w = lw
		}
	}
	return image.Pt(w, len(lines)*LineHeight)
}

// DrawText draws text with its top-left corner at (x, y)
func DrawText(dst *image.RGBA, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
	}
	ascent := face.Metrics().Ascent.Ceil()
	for i, line := range strings.Split(text, "\n") {
		d.Dot = fixed.P(x, y+i*LineHeight+ascent)
		d.DrawString(line)
	}
}

// DrawCenteredText draws text centered inside rect, clipped to rect
func DrawCenteredText(dst *image.RGBA, rect image.Rectangle, text string, c color.Color) {
	size := MeasureText(text)
	x := rect.Min.X + (rect.Dx()-size.X)/2
	y := rect.Min.Y + (rect.Dy()-size.Y)/2

	clip, ok := dst.SubImage(rect).(*image.RGBA)
	if !ok {
		return
	}
	DrawText(clip, text, x, y, c)
}

// DrawBand draws a translucent full-width band with centered text along the
// bottom of rect. It leaves the rest of rect untouched.
func DrawBand(dst *image.RGBA, rect image.Rectangle, text string, bg, fg color.Color, opacity float64) {
	height := LineHeight + 12
	if height > rect.Dy() {
		height = rect.Dy()
	}
	band := image.Rect(rect.Min.X, rect.Max.Y-height, rect.Max.X, rect.Max.Y)
	DrawRectangle(dst, band, bg, opacity)
	DrawCenteredText(dst, band, text, fg)
}
