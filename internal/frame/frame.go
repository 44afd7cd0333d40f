// Package frame holds the RGB frame type exchanged between capture sources
// and the compositor.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"
)

// BytesPerPixel is fixed: frames are always 8-bit-per-channel RGB.
const BytesPerPixel = 3

// ErrInvalidSize is returned when a buffer does not match width*height*3
var ErrInvalidSize = errors.New("frame: buffer size does not match dimensions")

// Frame is one immutable RGB snapshot from a capture source.
//
// Pix is row-major, tightly packed, len(Pix) == Width*Height*3. A Frame is
// never mutated after construction; producers build a new one per capture.
type Frame struct {
	Width  int
	Height int
	Pix    []byte

	// CapturedAt is when the producer finished reading the pixels.
	CapturedAt time.Time

	// Generation tags the frame with the source state it was captured for
	// (the window selection generation for window captures).
	Generation uint64
}

// New wraps pix as a frame, taking ownership of the slice.
func New(width, height int, pix []byte) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if len(pix) != width*height*BytesPerPixel {
		return nil, fmt.Errorf("%w: %dx%d needs %d bytes, got %d",
			ErrInvalidSize, width, height, width*height*BytesPerPixel, len(pix))
	}
	return &Frame{
		Width:      width,
		Height:     height,
		Pix:        pix,
		CapturedAt: time.Now(),
	}, nil
}

// FromRGBA converts an RGBA image to an RGB frame, dropping alpha.
func FromRGBA(img *image.RGBA) (*Frame, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}

	pix := make([]byte, w*h*BytesPerPixel)
	for y := 0; y < h; y++ {
		src := img.Pix[(y)*img.Stride : (y)*img.Stride+w*4]
		dst := pix[y*w*BytesPerPixel : (y+1)*w*BytesPerPixel]
		for x := 0; x < w; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return New(w, h, pix)
}

// FromImage converts any image to an RGB frame.
func FromImage(img image.Image) (*Frame, error) {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return FromRGBA(rgba)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}

	pix := make([]byte, w*h*BytesPerPixel)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pix[i] = uint8(r >> 8)
			pix[i+1] = uint8(g >> 8)
			pix[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
	return New(w, h, pix)
}

// Size returns the frame dimensions as a point
func (f *Frame) Size() image.Point {
	return image.Pt(f.Width, f.Height)
}

// RGBA expands the frame into a new opaque RGBA image.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Width*3 : (y+1)*f.Width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img
}

// ColorModel implements image.Image
func (f *Frame) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds implements image.Image
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// At implements image.Image
func (f *Frame) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return color.RGBA{}
	}
	i := (y*f.Width + x) * 3
	return color.RGBA{R: f.Pix[i], G: f.Pix[i+1], B: f.Pix[i+2], A: 0xff}
}
