package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
	"github.com/bryanchriswhite/SplitScreen/internal/overlay"
)

func solidFrame(t *testing.T, w, h int, c color.RGBA) *frame.Frame {
	t.Helper()
	pix := make([]byte, w*h*3)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = c.R, c.G, c.B
	}
	f, err := frame.New(w, h, pix)
	require.NoError(t, err)
	return f
}

func testLayout() Layout {
	return Layout{
		Width:      300,
		Height:     200,
		Background: color.RGBA{A: 255},
		Panels: []Panel{
			{ID: App, Bounds: image.Rect(0, 0, 200, 200), Placeholder: "No window selected", Unavailable: "Window capture unavailable"},
			{ID: Camera, Bounds: image.Rect(200, 0, 300, 100), Placeholder: "", Unavailable: "Camera unavailable"},
			{ID: Logo, Bounds: image.Rect(200, 100, 300, 200), Placeholder: "LOGO PLACEHOLDER"},
		},
	}
}

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := New(Options{Layout: testLayout(), Scaler: "nearest"})
	require.NoError(t, err)
	return c
}

func region(img *image.RGBA, r image.Rectangle) []byte {
	sub := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		copy(sub.Pix[y*sub.Stride:(y+1)*sub.Stride], img.Pix[img.PixOffset(r.Min.X, r.Min.Y+y):img.PixOffset(r.Min.X+r.Dx(), r.Min.Y+y)])
	}
	return sub.Pix
}

func TestFit_PreservesAspectAndStaysInside(t *testing.T) {
	bounds := []image.Rectangle{
		image.Rect(10, 10, 690, 790),
		image.Rect(700, 10, 1190, 580),
		image.Rect(0, 0, 1, 1),
		image.Rect(5, 5, 105, 30),
	}
	sizes := []image.Point{
		{1920, 1080}, {1080, 1920}, {640, 480}, {1, 1}, {3000, 7}, {7, 3000}, {500, 150},
	}

	for _, b := range bounds {
		for _, s := range sizes {
			t.Run(fmt.Sprintf("%v_in_%v", s, b), func(t *testing.T) {
				r := Fit(s, b)
				require.True(t, r.In(b), "fit %v outside %v", r, b)
				require.GreaterOrEqual(t, r.Dx(), 1)
				require.GreaterOrEqual(t, r.Dy(), 1)

				// one side fills the bounds
				assert.True(t, r.Dx() == b.Dx() || r.Dy() == b.Dy())

				// aspect within rounding of one pixel on either side
				want := float64(s.X) / float64(s.Y)
				lo := (float64(r.Dx()) - 1) / (float64(r.Dy()) + 1)
				hi := (float64(r.Dx()) + 1) / math.Max(float64(r.Dy())-1, 0.5)
				if r.Dx() > 1 && r.Dy() > 1 {
					assert.True(t, want >= lo && want <= hi, "aspect %f not in [%f, %f]", want, lo, hi)
				}

				// centered
				assert.LessOrEqual(t, absInt((r.Min.X-b.Min.X)-(b.Max.X-r.Max.X)), 1)
				assert.LessOrEqual(t, absInt((r.Min.Y-b.Min.Y)-(b.Max.Y-r.Max.Y)), 1)
			})
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestFit_Letterbox(t *testing.T) {
	assert.Equal(t, image.Rect(0, 25, 100, 75), Fit(image.Pt(200, 100), image.Rect(0, 0, 100, 100)))
	assert.Equal(t, image.Rect(25, 0, 75, 100), Fit(image.Pt(100, 200), image.Rect(0, 0, 100, 100)))
	assert.True(t, Fit(image.Pt(0, 10), image.Rect(0, 0, 10, 10)).Empty())
}

func TestLayoutValidate(t *testing.T) {
	require.NoError(t, DefaultLayout().Validate())

	l := testLayout()
	l.Panels[1].Bounds = image.Rect(250, 0, 400, 100)
	assert.Error(t, l.Validate())

	l = testLayout()
	l.Panels[2].ID = App
	assert.Error(t, l.Validate())

	l = testLayout()
	l.Width = 0
	assert.Error(t, l.Validate())
}

func TestParseScaler(t *testing.T) {
	for _, name := range ScalerNames() {
		_, err := ParseScaler(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseScaler("")
	assert.NoError(t, err)
	_, err = ParseScaler("lanczos")
	assert.Error(t, err)
}

func TestRender_FrameLetterboxedInPanel(t *testing.T) {
	c := newTestCompositor(t)
	c.Slot(App).Store(solidFrame(t, 400, 200, color.RGBA{R: 255}))

	surface := c.Render()
	assert.Equal(t, image.Rect(0, 0, 300, 200), surface.Bounds())

	// 400x200 into 200x200: rows 50..150 hold content
	assert.Equal(t, color.RGBA{R: 255, A: 255}, surface.RGBAAt(100, 100))
	assert.Equal(t, color.RGBA{A: 255}, surface.RGBAAt(100, 10))
	assert.Equal(t, color.RGBA{A: 255}, surface.RGBAAt(100, 190))

	// nothing bleeds into the camera panel
	assert.NotEqual(t, uint8(255), surface.RGBAAt(250, 50).R)
}

func TestRender_PlaceholderWhenEmpty(t *testing.T) {
	c := newTestCompositor(t)
	blank := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for i := 3; i < len(blank.Pix); i += 4 {
		blank.Pix[i] = 255
	}

	surface := c.Render()
	appRect := image.Rect(0, 0, 200, 200)
	assert.NotEqual(t, blank.Pix, region(surface, appRect), "placeholder text drawn")

	require.NoError(t, c.SetPlaceholder(App, "No capturable windows"))
	assert.Equal(t, "No capturable windows", c.Placeholder(App))
	other := c.Render()
	assert.NotEqual(t, region(surface, appRect), region(other, appRect))

	assert.Error(t, c.SetPlaceholder("bogus", "x"))
}

func TestRender_FailureThresholdRetainsFrameThenIndicates(t *testing.T) {
	c := newTestCompositor(t)
	appRect := image.Rect(0, 0, 200, 200)
	c.Slot(App).Store(solidFrame(t, 200, 200, color.RGBA{G: 200}))
	c.ReportSuccess(App)

	before := region(c.Render(), appRect)

	errCapture := errors.New("window moved")
	for n := 1; n < DefaultFailureThreshold; n++ {
		assert.False(t, c.ReportFailure(App, errCapture))
		assert.Equal(t, before, region(c.Render(), appRect), "failure %d blanks the panel", n)
	}

	assert.True(t, c.ReportFailure(App, errCapture))
	after := c.Render()
	assert.NotEqual(t, before, region(after, appRect))
	// stale content is still visible above the band
	assert.Equal(t, color.RGBA{G: 200, A: 255}, after.RGBAAt(100, 20))

	st := c.Status()[0]
	assert.True(t, st.Indicator)
	assert.Equal(t, "Window capture unavailable", st.Message)
	assert.Equal(t, DefaultFailureThreshold, st.Failures)

	assert.True(t, c.ReportSuccess(App))
	assert.Equal(t, before, region(c.Render(), appRect))
}

func TestReportFailure_ConfigurableThresholdAndDescribe(t *testing.T) {
	c, err := New(Options{
		Layout:     testLayout(),
		Thresholds: map[PanelID]int{Camera: 1},
		Describe:   func(err error) string { return "Camera not responding" },
	})
	require.NoError(t, err)

	assert.True(t, c.ReportFailure(Camera, errors.New("timeout")))
	assert.False(t, c.ReportFailure(Camera, errors.New("timeout")), "crossing is reported once")

	for _, st := range c.Status() {
		if st.ID == Camera {
			assert.True(t, st.Indicator)
			assert.Equal(t, 1, st.Threshold)
			assert.Equal(t, "Camera not responding", st.Message)
		}
	}
}

func TestMarkUnavailable_PersistsUntilReset(t *testing.T) {
	c := newTestCompositor(t)
	camRect := image.Rect(200, 0, 300, 100)

	empty := region(c.Render(), camRect)

	c.MarkUnavailable(Camera, "")
	c.ReportSuccess(Camera)
	unavailable := region(c.Render(), camRect)
	assert.NotEqual(t, empty, unavailable)

	st := c.Status()[1]
	assert.True(t, st.Unavailable)
	assert.Equal(t, "Camera unavailable", st.Message)

	c.Slot(Camera).Store(solidFrame(t, 10, 10, color.RGBA{B: 255}))
	c.ResetPanel(Camera)
	assert.Nil(t, c.Slot(Camera).Load())
	assert.False(t, c.Status()[1].Unavailable)
	assert.Equal(t, empty, region(c.Render(), camRect))
}

func TestRender_ReusesScaledFrameUntilSlotChanges(t *testing.T) {
	c := newTestCompositor(t)
	logo := c.Slot(Logo)
	logo.Store(solidFrame(t, 50, 50, color.RGBA{R: 10, G: 20, B: 30}))

	c.Render()
	ps := c.panels[Logo]
	first := ps.cache
	require.NotNil(t, first)

	c.Render()
	assert.Same(t, first, ps.cache)

	logo.Store(solidFrame(t, 50, 50, color.RGBA{R: 40}))
	surface := c.Render()
	assert.NotSame(t, first, ps.cache)
	assert.Equal(t, color.RGBA{R: 40, A: 255}, surface.RGBAAt(250, 150))
}

// gatedScaler parks in Scale until released
type gatedScaler struct {
	draw.Interpolator
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedScaler) Scale(dst draw.Image, dr image.Rectangle, src image.Image, sr image.Rectangle, op draw.Op, opts *draw.Options) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	g.Interpolator.Scale(dst, dr, src, sr, op, opts)
}

func TestRender_ScalingDoesNotBlockReports(t *testing.T) {
	c := newTestCompositor(t)
	gs := &gatedScaler{
		Interpolator: c.scaler,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	c.scaler = gs
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(gs.release) }) }
	t.Cleanup(release)

	c.Slot(Logo).Store(solidFrame(t, 50, 50, color.RGBA{R: 40}))
	rendered := make(chan *image.RGBA, 1)
	go func() { rendered <- c.Render() }()

	select {
	case <-gs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("render never started scaling")
	}

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		c.ReportFailure(App, errors.New("gone"))
		c.ReportSuccess(Logo)
		c.Status()
	}()
	select {
	case <-reported:
	case <-time.After(time.Second):
		t.Fatal("reports waited on an in-progress render")
	}

	release()
	surface := <-rendered
	assert.Equal(t, color.RGBA{R: 40, A: 255}, surface.RGBAAt(250, 150))
	assert.NotNil(t, c.panels[Logo].cache, "scaled frame kept for the next render")
}

func TestRender_DrawsOverlayLast(t *testing.T) {
	m := overlay.NewManager(nil)
	w, err := overlay.NewTextWidget(overlay.WidgetConfig{ID: "t", Enabled: true, Text: "LIVE", Background: "#ff0000", X: 0, Y: 0})
	require.NoError(t, err)
	require.NoError(t, m.AddWidget(w))

	c, err := New(Options{Layout: testLayout(), Overlay: m})
	require.NoError(t, err)
	c.Slot(App).Store(solidFrame(t, 200, 200, color.RGBA{G: 255}))

	surface := c.Render()
	assert.Equal(t, uint8(255), surface.RGBAAt(1, 1).R)
}
