package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
	"github.com/bryanchriswhite/SplitScreen/internal/window"
)

// Geometer resolves the live geometry of a window handle
type Geometer interface {
	Geometry(h window.Handle) (window.Geometry, error)
}

// WindowSource snapshots the bounding rectangle of the selected window
type WindowSource struct {
	geometer Geometer
	snap     Snapshotter
	dog      watchdog

	mu       sync.Mutex
	selected *window.Handle
	gen      uint64
	state    stateMachine
}

// NewWindowSource creates a window source with nothing selected. Each
// capture is bounded by timeout; zero disables the watchdog.
func NewWindowSource(geometer Geometer, snap Snapshotter, timeout time.Duration) *WindowSource {
	return &WindowSource{
		geometer: geometer,
		snap:     snap,
		dog:      watchdog{timeout: timeout},
	}
}

// Name returns the source name
func (s *WindowSource) Name() string {
	return "window"
}

// State returns the current lifecycle state
func (s *WindowSource) State() State {
	return s.state.get()
}

// Select retargets the source at h and returns the new selection generation
func (s *WindowSource) Select(h window.Handle) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = &h
	s.gen++
	s.state.set(StateReady)
	return s.gen
}

// Deselect stops window capture until the next Select
func (s *WindowSource) Deselect() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.gen++
	s.state.set(StateUninitialized)
	return s.gen
}

// Selected returns the current selection, if any
func (s *WindowSource) Selected() (window.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return window.Handle{}, false
	}
	return *s.selected, true
}

// Generation changes on every Select and Deselect
func (s *WindowSource) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Hung reports whether a timed out snapshot call has not yet returned
func (s *WindowSource) Hung() bool {
	return s.dog.hung()
}

// Capture reads the selected window's current rectangle and snapshots it.
// The returned frame carries the generation of the selection it was taken
// for. While a snapshot for an earlier selection is hung, Capture fails
// with ErrSupersededCapture.
func (s *WindowSource) Capture(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()
	if s.selected == nil {
		s.mu.Unlock()
		return nil, ErrNoSelection
	}
	h, gen := *s.selected, s.gen
	s.mu.Unlock()

	if prev, ok := s.state.begin(); !ok {
		if prev == StateClosed {
			return nil, ErrClosed
		}
		return nil, ErrNoSelection
	}

	f, err := s.dog.run(ctx, gen, func() (*frame.Frame, error) {
		return s.capture(h)
	})
	if err == nil {
		f.Generation = gen
	}
	s.state.finish(err)
	return f, err
}

func (s *WindowSource) capture(h window.Handle) (*frame.Frame, error) {
	g, err := s.geometer.Geometry(h)
	if err != nil {
		return nil, err
	}
	if g.Empty() {
		return nil, fmt.Errorf("%w: window 0x%x is %dx%d", ErrRegionEmpty, h.ID, g.Width, g.Height)
	}

	img, err := s.snap.Snapshot(image.Rect(g.X, g.Y, g.X+g.Width, g.Y+g.Height))
	if err != nil {
		return nil, err
	}

	f, err := frame.FromRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegionEmpty, err)
	}
	return f, nil
}

// Close marks the source closed; later captures fail with ErrClosed
func (s *WindowSource) Close() error {
	s.state.set(StateClosed)
	return nil
}
