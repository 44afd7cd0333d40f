package output

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOutput_WritesLatestOnStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shots", "out.png")
	out := NewFileOutput(path)
	var _ Output = out

	assert.Error(t, out.WriteFrame(image.NewRGBA(image.Rect(0, 0, 1, 1))), "not started")
	require.NoError(t, out.Start())
	assert.True(t, out.IsRunning())

	first := image.NewRGBA(image.Rect(0, 0, 4, 3))
	second := image.NewRGBA(image.Rect(0, 0, 4, 3))
	second.SetRGBA(1, 1, color.RGBA{R: 200, A: 255})
	require.NoError(t, out.WriteFrame(first))
	require.NoError(t, out.WriteFrame(second))
	assert.Equal(t, uint64(2), out.Frames())

	require.NoError(t, out.Stop())
	assert.False(t, out.IsRunning())
	assert.NoError(t, out.Stop(), "second stop is a no-op")

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	img, err := png.Decode(fh)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
	r, _, _, _ := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(200), r>>8)
}

func TestFileOutput_NoFrame(t *testing.T) {
	out := NewFileOutput(filepath.Join(t.TempDir(), "out.png"))
	require.NoError(t, out.Start())
	assert.ErrorIs(t, out.Stop(), ErrNoFrame)
}
