// Package v4l2 opens Video4Linux cameras with blackjack/webcam.
package v4l2

import (
	"bytes"
	"fmt"
	"image/color"
	"image/jpeg"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
)

// V4L2 fourcc codes
const (
	FormatMJPEG uint32 = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	FormatYUYV  uint32 = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
)

// FormatName returns the fourcc as text
func FormatName(f uint32) string {
	return string([]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)})
}

// decode converts one raw buffer in the negotiated format to an RGB frame
func decode(format uint32, width, height int, buf []byte) (*frame.Frame, error) {
	switch format {
	case FormatMJPEG:
		img, err := jpeg.Decode(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("decode mjpeg: %w", err)
		}
		return frame.FromImage(img)
	case FormatYUYV:
		return yuyvToRGB(width, height, buf)
	default:
		return nil, fmt.Errorf("unsupported pixel format %s", FormatName(format))
	}
}

// yuyvToRGB converts packed YUYV 4:2:2 to RGB
func yuyvToRGB(width, height int, buf []byte) (*frame.Frame, error) {
	if width%2 != 0 || len(buf) < width*height*2 {
		return nil, fmt.Errorf("bad yuyv buffer: %d bytes for %dx%d", len(buf), width, height)
	}

	pix := make([]byte, width*height*frame.BytesPerPixel)
	o := 0
	for i := 0; i < width*height*2; i += 4 {
		y0, u, y1, v := buf[i], buf[i+1], buf[i+2], buf[i+3]
		pix[o], pix[o+1], pix[o+2] = color.YCbCrToRGB(y0, u, v)
		pix[o+3], pix[o+4], pix[o+5] = color.YCbCrToRGB(y1, u, v)
		o += 6
	}
	return frame.New(width, height, pix)
}
