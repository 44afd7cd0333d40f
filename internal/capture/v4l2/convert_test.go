package v4l2

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatName(t *testing.T) {
	assert.Equal(t, "MJPG", FormatName(FormatMJPEG))
	assert.Equal(t, "YUYV", FormatName(FormatYUYV))
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/video0", DevicePath(""))
	assert.Equal(t, "/dev/video2", DevicePath("2"))
	assert.Equal(t, "/dev/v4l/by-id/cam", DevicePath("/dev/v4l/by-id/cam"))
}

func TestPreferredFormats(t *testing.T) {
	got, err := preferredFormats("auto")
	require.NoError(t, err)
	assert.Equal(t, []uint32{FormatMJPEG, FormatYUYV}, got)

	got, err = preferredFormats("YUYV")
	require.NoError(t, err)
	assert.Equal(t, []uint32{FormatYUYV}, got)

	_, err = preferredFormats("h264")
	assert.Error(t, err)
}

func TestYUYVToRGB(t *testing.T) {
	// neutral chroma keeps luma as grey
	buf := []byte{16, 128, 235, 128}
	f, err := yuyvToRGB(2, 1, buf)
	require.NoError(t, err)
	require.Len(t, f.Pix, 6)

	assert.Equal(t, []byte{16, 16, 16, 235, 235, 235}, f.Pix)

	_, err = yuyvToRGB(2, 2, buf)
	assert.Error(t, err)
	_, err = yuyvToRGB(3, 1, make([]byte, 6))
	assert.Error(t, err)
}

func TestDecodeMJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.SetRGBA(0, 0, color.RGBA{A: 255})

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	f, err := decode(FormatMJPEG, 16, 8, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 16, f.Width)
	assert.Equal(t, 8, f.Height)
	assert.Len(t, f.Pix, 16*8*3)

	_, err = decode(FormatMJPEG, 16, 8, []byte("not a jpeg"))
	assert.Error(t, err)
	_, err = decode(0x34363248, 16, 8, nil)
	assert.Error(t, err)
}
