package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
	"github.com/bryanchriswhite/SplitScreen/internal/window"
)

type fakeGeometer struct {
	mu   sync.Mutex
	geom map[uint32]window.Geometry
}

func (g *fakeGeometer) Geometry(h window.Handle) (window.Geometry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	geo, ok := g.geom[h.ID]
	if !ok {
		return window.Geometry{}, fmt.Errorf("%w: 0x%x", window.ErrWindowNotFound, h.ID)
	}
	return geo, nil
}

type fakeSnapshotter struct {
	name  string
	err   error
	delay time.Duration
	calls atomic.Int32
	fill  color.RGBA
}

func (s *fakeSnapshotter) Snapshot(rect image.Rectangle) (*image.RGBA, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	img := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = s.fill.R, s.fill.G, s.fill.B, 0xff
	}
	return img, nil
}

func (s *fakeSnapshotter) Name() string { return s.name }
func (s *fakeSnapshotter) Close() error { return nil }

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", ErrWindowNotFound), "window_not_found"},
		{ErrRegistryUnavailable, "registry_unavailable"},
		{ErrRegionEmpty, "region_empty"},
		{ErrCaptureDenied, "capture_denied"},
		{ErrDeviceUnavailable, "device_unavailable"},
		{ErrReadTimeout, "read_timeout"},
		{ErrCaptureTimeout, "capture_timeout"},
		{ErrNoSelection, "no_selection"},
		{ErrClosed, "closed"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "Window no longer exists", Message(ErrWindowNotFound))
}

func TestStateMachine_ClosedIsTerminal(t *testing.T) {
	var m stateMachine
	assert.Equal(t, StateUninitialized, m.get())

	_, ok := m.begin()
	assert.False(t, ok)

	m.set(StateReady)
	_, ok = m.begin()
	require.True(t, ok)
	assert.Equal(t, StateCapturing, m.get())

	m.finish(errors.New("x"))
	assert.Equal(t, StateError, m.get())

	_, ok = m.begin()
	require.True(t, ok)
	m.finish(nil)
	assert.Equal(t, StateReady, m.get())

	m.set(StateClosed)
	m.set(StateReady)
	assert.Equal(t, StateClosed, m.get())
	assert.Equal(t, "closed", m.get().String())
}

func TestWindowSource_NoSelection(t *testing.T) {
	src := NewWindowSource(&fakeGeometer{}, &fakeSnapshotter{}, time.Second)
	assert.Equal(t, StateUninitialized, src.State())

	_, err := src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestWindowSource_CaptureCarriesGeneration(t *testing.T) {
	geo := &fakeGeometer{geom: map[uint32]window.Geometry{
		1: {X: 10, Y: 20, Width: 64, Height: 48},
	}}
	src := NewWindowSource(geo, &fakeSnapshotter{fill: color.RGBA{R: 200}}, time.Second)

	gen := src.Select(window.Handle{ID: 1, Title: "one"})
	assert.Equal(t, StateReady, src.State())

	f, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 64, f.Width)
	assert.Equal(t, 48, f.Height)
	assert.Len(t, f.Pix, 64*48*3)
	assert.Equal(t, gen, f.Generation)
	assert.Equal(t, byte(200), f.Pix[0])
	assert.Equal(t, StateReady, src.State())
}

func TestWindowSource_Failures(t *testing.T) {
	geo := &fakeGeometer{geom: map[uint32]window.Geometry{
		1: {X: 0, Y: 0, Width: 0, Height: 0},
		2: {X: 0, Y: 0, Width: 10, Height: 10},
	}}

	src := NewWindowSource(geo, &fakeSnapshotter{}, time.Second)

	src.Select(window.Handle{ID: 1})
	_, err := src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrRegionEmpty)
	assert.Equal(t, StateError, src.State())

	src.Select(window.Handle{ID: 99})
	_, err = src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrWindowNotFound)

	denied := NewWindowSource(geo, &fakeSnapshotter{err: fmt.Errorf("%w: protected", ErrCaptureDenied)}, time.Second)
	denied.Select(window.Handle{ID: 2})
	_, err = denied.Capture(context.Background())
	assert.ErrorIs(t, err, ErrCaptureDenied)
}

func TestWindowSource_DeselectAndClose(t *testing.T) {
	geo := &fakeGeometer{geom: map[uint32]window.Geometry{1: {Width: 4, Height: 4}}}
	src := NewWindowSource(geo, &fakeSnapshotter{}, 0)

	g1 := src.Select(window.Handle{ID: 1})
	g2 := src.Deselect()
	assert.Greater(t, g2, g1)
	_, ok := src.Selected()
	assert.False(t, ok)
	assert.Equal(t, StateUninitialized, src.State())

	src.Select(window.Handle{ID: 1})
	require.NoError(t, src.Close())
	_, err := src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWindowSource_WatchdogBoundsHungSnapshot(t *testing.T) {
	geo := &fakeGeometer{geom: map[uint32]window.Geometry{1: {Width: 4, Height: 4}}}
	snap := &fakeSnapshotter{delay: 300 * time.Millisecond}
	src := NewWindowSource(geo, snap, 50*time.Millisecond)
	src.Select(window.Handle{ID: 1})

	start := time.Now()
	_, err := src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.True(t, src.Hung())

	// the hung call is still running: fail fast without issuing another
	_, err = src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	assert.Equal(t, int32(1), snap.calls.Load())

	require.Eventually(t, func() bool { return !src.Hung() }, 2*time.Second, 10*time.Millisecond)

	snap.delay = 0
	_, err = src.Capture(context.Background())
	assert.NoError(t, err)
}

func TestWindowSource_HungCallForEarlierSelectionIsSuperseded(t *testing.T) {
	geo := &fakeGeometer{geom: map[uint32]window.Geometry{
		1: {Width: 4, Height: 4},
		2: {Width: 4, Height: 4},
	}}
	snap := &fakeSnapshotter{delay: 300 * time.Millisecond}
	src := NewWindowSource(geo, snap, 50*time.Millisecond)

	src.Select(window.Handle{ID: 1})
	_, err := src.Capture(context.Background())
	require.ErrorIs(t, err, ErrCaptureTimeout)
	assert.NotErrorIs(t, err, ErrSupersededCapture)

	src.Select(window.Handle{ID: 2})
	_, err = src.Capture(context.Background())
	assert.ErrorIs(t, err, ErrSupersededCapture)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	assert.Equal(t, "capture_timeout", Kind(err))
	assert.Equal(t, int32(1), snap.calls.Load())

	require.Eventually(t, func() bool { return !src.Hung() }, 2*time.Second, 10*time.Millisecond)
}

type fakeDevice struct {
	mu      sync.Mutex
	frames  int
	err     error
	closed  bool
	closeCt int
}

func (d *fakeDevice) ReadFrame(ctx context.Context, timeout time.Duration) (*frame.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.frames++
	return frame.New(2, 2, make([]byte, 12))
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.closeCt++
	return nil
}

func TestCameraSource_OpenFailureIsDeviceUnavailable(t *testing.T) {
	cam := NewCameraSource("camera", func(ctx context.Context) (Device, error) {
		return nil, errors.New("no such file or directory")
	}, 100*time.Millisecond)

	err := cam.Open(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, StateUninitialized, cam.State())

	_, err = cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)

	assert.NoError(t, cam.Close())
	assert.NoError(t, cam.Close())
	assert.Equal(t, StateClosed, cam.State())
}

func TestCameraSource_Lifecycle(t *testing.T) {
	dev := &fakeDevice{}
	opens := 0
	cam := NewCameraSource("", func(ctx context.Context) (Device, error) {
		opens++
		return dev, nil
	}, 100*time.Millisecond)
	assert.Equal(t, "camera", cam.Name())

	require.NoError(t, cam.Open(context.Background()))
	require.NoError(t, cam.Open(context.Background()))
	assert.Equal(t, 1, opens)
	assert.Equal(t, StateReady, cam.State())

	f, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.Pix, f.Width*f.Height*3)

	dev.mu.Lock()
	dev.err = fmt.Errorf("%w: 100ms", ErrReadTimeout)
	dev.mu.Unlock()
	_, err = cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.Equal(t, StateError, cam.State())

	require.NoError(t, cam.Close())
	require.NoError(t, cam.Close())
	assert.True(t, dev.closed)
	assert.Equal(t, 1, dev.closeCt)

	_, err = cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, cam.Open(context.Background()), ErrClosed)
}

func TestRouter_FallsBackOnBackendError(t *testing.T) {
	primary := &fakeSnapshotter{name: "x11", err: errors.New("connection reset")}
	fallback := &fakeSnapshotter{name: "screenshot"}
	r := NewRouterWith(primary, fallback)
	assert.Equal(t, "x11+screenshot", r.Name())

	img, err := r.Snapshot(image.Rect(0, 0, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, int32(1), fallback.calls.Load())

	primary.err = fmt.Errorf("%w: protected", ErrCaptureDenied)
	_, err = r.Snapshot(image.Rect(0, 0, 8, 8))
	assert.ErrorIs(t, err, ErrCaptureDenied)
	assert.Equal(t, int32(1), fallback.calls.Load())

	require.NoError(t, r.Close())
	_, err = r.Snapshot(image.Rect(0, 0, 8, 8))
	assert.Error(t, err)
}

func TestConvertBGRX(t *testing.T) {
	data := []byte{
		1, 2, 3, 0, 4, 5, 6, 0,
	}
	img, err := convertBGRX(data, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 3, G: 2, B: 1, A: 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 6, G: 5, B: 4, A: 255}, img.RGBAAt(1, 0))

	_, err = convertBGRX(data, 4, 4)
	assert.Error(t, err)
}

func TestLoadStaticSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logo.png")
	img := image.NewRGBA(image.Rect(0, 0, 5, 3))
	img.SetRGBA(4, 2, color.RGBA{R: 9, G: 9, B: 9, A: 255})

	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, img))
	require.NoError(t, out.Close())

	src, err := LoadStaticSource("logo", path)
	require.NoError(t, err)

	f, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Equal(t, StateReady, src.State())

	_, err = LoadStaticSource("logo", filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}
