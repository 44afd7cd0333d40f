package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 128, B: 0, A: 255}, c)

	c, err = ParseColor("#fff")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, c)

	c, err = ParseColor("00000080")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), c.A)

	_, err = ParseColor("#12345")
	assert.Error(t, err)
	_, err = ParseColor("#zzzzzz")
	assert.Error(t, err)

	assert.Equal(t, "#ff8000", FormatColor(color.RGBA{R: 255, G: 128, A: 255}))
	assert.Equal(t, "#00000080", FormatColor(color.RGBA{A: 0x80}))
}

func TestBlendImage_ClipsAndBlends(t *testing.T) {
	dst := solid(4, 4, color.RGBA{A: 255})
	src := solid(3, 3, color.RGBA{R: 200, A: 255})

	BlendImage(dst, src, 2, 2, 1)
	assert.Equal(t, color.RGBA{R: 200, A: 255}, dst.RGBAAt(3, 3))
	assert.Equal(t, color.RGBA{A: 255}, dst.RGBAAt(1, 1))

	half := solid(4, 4, color.RGBA{A: 255})
	BlendImage(half, src, 0, 0, 0.5)
	assert.InDelta(t, 100, int(half.RGBAAt(0, 0).R), 2)

	none := solid(2, 2, color.RGBA{A: 255})
	BlendImage(none, src, 0, 0, 0)
	assert.Equal(t, color.RGBA{A: 255}, none.RGBAAt(0, 0))
}

func TestDrawCenteredText_StaysInsideRect(t *testing.T) {
	dst := solid(200, 100, color.RGBA{A: 255})
	rect := image.Rect(50, 20, 150, 80)

	DrawCenteredText(dst, rect, "No window selected", color.RGBA{R: 255, G: 255, B: 255, A: 255})

	lit := 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			if dst.RGBAAt(x, y).R > 0 {
				assert.True(t, image.Pt(x, y).In(rect), "pixel %d,%d outside rect", x, y)
				lit++
			}
		}
	}
	assert.Greater(t, lit, 0)
}

func TestDrawBand_OnlyTouchesBottom(t *testing.T) {
	dst := solid(100, 100, color.RGBA{G: 200, A: 255})
	rect := image.Rect(0, 0, 100, 100)

	DrawBand(dst, rect, "Camera unavailable", color.RGBA{A: 255}, color.RGBA{R: 255, A: 255}, 0.8)

	assert.Equal(t, color.RGBA{G: 200, A: 255}, dst.RGBAAt(50, 10))
	assert.Less(t, dst.RGBAAt(1, 98).G, uint8(200))
}

func TestMeasureText(t *testing.T) {
	one := MeasureText("abc")
	assert.Equal(t, 21, one.X)
	assert.Equal(t, LineHeight, one.Y)

	two := MeasureText("abc\nabcdef")
	assert.Equal(t, 42, two.X)
	assert.Equal(t, 2*LineHeight, two.Y)
}

func TestManager_LoadFromConfigSkipsInvalid(t *testing.T) {
	m := NewManager(func() string { return "Camera active" })
	m.LoadFromConfig([]WidgetConfig{
		{ID: "title", Type: "text", Enabled: true, Text: "Live", X: 10, Y: 10},
		{ID: "", Type: "text", Text: "no id"},
		{ID: "empty", Type: "text", Enabled: true},
		{ID: "bad-color", Type: "text", Enabled: true, Text: "x", Color: "nope"},
		{ID: "weird", Type: "github-actions"},
		{ID: "status", Type: "status", Enabled: true, X: 0, Y: 80},
		{ID: "title", Type: "text", Enabled: true, Text: "duplicate"},
	})

	widgets := m.Widgets()
	require.Len(t, widgets, 2)
	assert.Equal(t, "title", widgets[0].ID())
	assert.Equal(t, "status", widgets[1].ID())

	exported := m.ExportConfig()
	assert.Equal(t, "Live", exported[0].Text)
	assert.Equal(t, "status", exported[1].Type)
}

func TestManager_RenderRespectsEnabled(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, func() error {
		w, err := NewTextWidget(WidgetConfig{ID: "t", Enabled: true, Text: "HELLO", Color: "#ffffff"})
		if err != nil {
			return err
		}
		return m.AddWidget(w)
	}())

	img := solid(100, 40, color.RGBA{A: 255})
	m.SetEnabled(false)
	m.Render(img)
	assert.Equal(t, solid(100, 40, color.RGBA{A: 255}).Pix, img.Pix)

	m.SetEnabled(true)
	m.Render(img)
	assert.NotEqual(t, solid(100, 40, color.RGBA{A: 255}).Pix, img.Pix)

	require.NoError(t, m.RemoveWidget("t"))
	assert.ErrorIs(t, m.RemoveWidget("t"), ErrWidgetNotFound)
	_, ok := m.Widget("t")
	assert.False(t, ok)
}

func TestStatusWidget_RendersLiveText(t *testing.T) {
	text := ""
	w, err := NewStatusWidget(WidgetConfig{ID: "s", Enabled: true}, func() string { return text })
	require.NoError(t, err)

	img := solid(200, 40, color.RGBA{A: 255})
	require.NoError(t, w.Render(img))
	assert.Equal(t, solid(200, 40, color.RGBA{A: 255}).Pix, img.Pix, "empty status draws nothing")

	text = "Camera active"
	require.NoError(t, w.Render(img))
	assert.NotEqual(t, solid(200, 40, color.RGBA{A: 255}).Pix, img.Pix)
}
