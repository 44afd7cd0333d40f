// Package session runs one split-screen composition: the window, camera and
// logo sources, the compositor, the refresh jobs and the outputs fed by the
// composed surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/SplitScreen/internal/capture"
	"github.com/bryanchriswhite/SplitScreen/internal/compositor"
	"github.com/bryanchriswhite/SplitScreen/internal/config"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/output"
	"github.com/bryanchriswhite/SplitScreen/internal/overlay"
	"github.com/bryanchriswhite/SplitScreen/internal/scheduler"
	"github.com/bryanchriswhite/SplitScreen/internal/slot"
	"github.com/bryanchriswhite/SplitScreen/internal/window"
)

// Job names
const (
	JobWindow = "window"
	JobCamera = "camera"
	JobRender = "render"
)

// Placeholder texts for the app panel
const (
	TextNoSelection   = "No window selected"
	TextNoWindows     = "No capturable windows"
	TextListFailed    = "Window list unavailable"
	TextWaitingWindow = "Waiting for window..."
)

var (
	ErrClosed         = errors.New("session closed")
	ErrAlreadyStarted = errors.New("session already started")
	ErrCameraDisabled = errors.New("camera disabled")
)

// Options configures a Session. The session takes ownership of Registry,
// Snapshotter and Outputs and closes them in Close.
type Options struct {
	Config      *config.Config
	Registry    *window.Registry
	Snapshotter capture.Snapshotter

	// Camera opens the camera device; nil leaves the camera panel
	// unavailable
	Camera capture.DeviceOpener

	// Logo is captured once at start; nil shows the logo text
	Logo capture.Source

	Outputs []output.Output
}

// Session owns every worker and resource of one composition
type Session struct {
	id  string
	cfg *config.Config
	log zerolog.Logger

	registry    *window.Registry
	snapshotter capture.Snapshotter
	windowSrc   *capture.WindowSource
	logo        capture.Source
	comp        *compositor.Compositor
	overlay     *overlay.Manager
	sched       *scheduler.Scheduler
	outputs     []output.Output

	// gate orders selection changes against app-slot publishes
	gate sync.Mutex

	camera cameraControl

	surface slot.Slot[image.RGBA]

	regMu  sync.Mutex
	regErr error

	subMu      sync.Mutex
	subs       map[<-chan Status]chan Status
	subsClosed bool

	ctx       context.Context
	cancel    context.CancelFunc
	bg        sync.WaitGroup
	startMu   sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New builds a session from opts. Nothing runs until Start.
func New(opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("session: config is required")
	}
	if opts.Registry == nil || opts.Snapshotter == nil {
		return nil, fmt.Errorf("session: registry and snapshotter are required")
	}

	cfg := *opts.Config
	layout, err := cfg.CompositorLayout()
	if err != nil {
		return nil, fmt.Errorf("invalid layout: %w", err)
	}

	id := uuid.New().String()
	s := &Session{
		id:          id,
		cfg:         &cfg,
		log:         logger.WithComponent("session").With().Str("session", id).Logger(),
		registry:    opts.Registry,
		snapshotter: opts.Snapshotter,
		logo:        opts.Logo,
		sched:       scheduler.New(),
		outputs:     opts.Outputs,
		subs:        make(map[<-chan Status]chan Status),
		done:        make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.windowSrc = capture.NewWindowSource(opts.Registry, opts.Snapshotter, cfg.WindowCapture.Timeout())
	s.camera.open = opts.Camera
	s.camera.enabled = cfg.Camera.Enabled
	s.camera.setPhase(phaseStarting)
	if !cfg.Camera.Enabled {
		s.camera.setPhase(phaseDisabled)
	}

	s.overlay = overlay.NewManager(s.camera.text)
	s.overlay.SetEnabled(cfg.Overlay.Enabled)
	s.overlay.LoadFromConfig(cfg.Overlay.Widgets)

	s.comp, err = compositor.New(compositor.Options{
		Layout:     layout,
		Scaler:     cfg.Render.Scaler,
		Thresholds: cfg.Thresholds(),
		Describe:   capture.Message,
		Overlay:    s.overlay,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session's unique id
func (s *Session) ID() string {
	return s.id
}

// Done is closed when the session has been closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Compositor exposes the compositor for inspection
func (s *Session) Compositor() *compositor.Compositor {
	return s.comp
}

// Overlay returns the overlay widget manager
func (s *Session) Overlay() *overlay.Manager {
	return s.overlay
}

// Start opens the camera, seeds the logo and starts the refresh jobs.
// A camera that cannot be opened leaves its panel unavailable; everything
// else keeps running.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if s.running.Load() {
		return ErrAlreadyStarted
	}

	for i, out := range s.outputs {
		if err := out.Start(); err != nil {
			for _, started := range s.outputs[:i] {
				started.Stop()
			}
			return fmt.Errorf("failed to start output %s: %w", out.Name(), err)
		}
	}

	s.seedLogo(ctx)

	if s.camera.isEnabled() {
		if err := s.startCamera(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Camera unavailable, continuing without it")
		}
	} else {
		s.comp.SetPlaceholder(compositor.Camera, textCameraDisabled)
	}

	if err := s.sched.Add(scheduler.Job{
		Name:     JobWindow,
		Interval: scheduler.IntervalForFPS(s.cfg.WindowCapture.FPS),
		Run:      s.captureWindow,
	}); err != nil {
		return err
	}
	if err := s.sched.Add(scheduler.Job{
		Name:      JobRender,
		Interval:  scheduler.IntervalForFPS(s.cfg.Render.FPS),
		Run:       s.render,
		Immediate: true,
	}); err != nil {
		return err
	}
	if err := s.sched.Start(s.ctx); err != nil {
		return err
	}

	s.startedAt = time.Now()
	s.running.Store(true)
	s.log.Info().
		Int("window_fps", s.cfg.WindowCapture.FPS).
		Int("camera_fps", s.cfg.Camera.FPS).
		Int("render_fps", s.cfg.Render.FPS).
		Str("snapshotter", s.snapshotter.Name()).
		Msg("Session started")
	s.notify()
	return nil
}

func (s *Session) seedLogo(ctx context.Context) {
	if s.logo == nil {
		return
	}
	f, err := s.logo.Capture(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("source", s.logo.Name()).Msg("Logo unavailable, using text")
		return
	}
	s.comp.Slot(compositor.Logo).Store(f)
}

// Windows refreshes the window list. Zero windows while nothing is selected
// sets the app placeholder; a registry failure is recorded in the status.
func (s *Session) Windows() ([]window.Handle, error) {
	handles, err := s.registry.ListWindows()

	s.regMu.Lock()
	changed := (s.regErr == nil) != (err == nil)
	s.regErr = err
	s.regMu.Unlock()

	s.gate.Lock()
	if _, selected := s.windowSrc.Selected(); !selected {
		switch {
		case err != nil:
			s.comp.SetPlaceholder(compositor.App, TextListFailed)
		case len(handles) == 0:
			s.comp.SetPlaceholder(compositor.App, TextNoWindows)
		default:
			s.comp.SetPlaceholder(compositor.App, TextNoSelection)
		}
	}
	s.gate.Unlock()

	if changed {
		s.notify()
	}
	return handles, err
}

// Select retargets window capture at h. A frame captured for an earlier
// selection is never shown after this returns.
func (s *Session) Select(h window.Handle) error {
	if s.isClosed() {
		return ErrClosed
	}

	s.gate.Lock()
	gen := s.windowSrc.Select(h)
	s.comp.ResetPanel(compositor.App)
	s.comp.SetPlaceholder(compositor.App, TextWaitingWindow)
	s.gate.Unlock()

	s.log.Info().
		Uint32("window_id", h.ID).
		Str("title", h.Title).
		Uint64("generation", gen).
		Msg("Window selected")

	s.retryCameraInBackground()
	s.notify()
	return nil
}

// SelectByID selects the window with id, refreshing the list if it is not
// in the last listing
func (s *Session) SelectByID(id uint32) error {
	h, ok := s.registry.Lookup(id)
	if !ok {
		if _, err := s.Windows(); err != nil {
			return err
		}
		if h, ok = s.registry.Lookup(id); !ok {
			return fmt.Errorf("%w: 0x%x", window.ErrWindowNotFound, id)
		}
	}
	return s.Select(h)
}

// SelectMatching selects the first window whose title or class matches
// pattern
func (s *Session) SelectMatching(pattern string) (window.Handle, error) {
	h, err := s.registry.Find(pattern)
	if err != nil {
		return window.Handle{}, err
	}
	return h, s.Select(h)
}

// Deselect stops window capture and shows the selection prompt
func (s *Session) Deselect() error {
	if s.isClosed() {
		return ErrClosed
	}

	s.gate.Lock()
	s.windowSrc.Deselect()
	s.comp.ResetPanel(compositor.App)
	s.comp.SetPlaceholder(compositor.App, TextNoSelection)
	s.gate.Unlock()

	s.log.Info().Msg("Window deselected")
	s.notify()
	return nil
}

// captureWindow is the window job: one snapshot per tick
func (s *Session) captureWindow(ctx context.Context) {
	gen := s.windowSrc.Generation()
	f, err := s.windowSrc.Capture(ctx)
	if errors.Is(err, capture.ErrNoSelection) || errors.Is(err, capture.ErrClosed) || ctx.Err() != nil {
		return
	}
	if errors.Is(err, capture.ErrSupersededCapture) {
		// the hung call belongs to an earlier selection, not this one
		return
	}
	if err == nil {
		gen = f.Generation
	}

	var changed bool
	s.gate.Lock()
	if gen != s.windowSrc.Generation() {
		// selection moved on while this snapshot was in flight
		s.gate.Unlock()
		return
	}
	if err != nil {
		s.log.Debug().Err(err).Str("kind", capture.Kind(err)).Msg("Window capture failed")
		changed = s.comp.ReportFailure(compositor.App, err)
	} else {
		s.comp.Slot(compositor.App).Store(f)
		changed = s.comp.ReportSuccess(compositor.App)
	}
	s.gate.Unlock()

	if changed {
		s.notify()
	}
}

// render is the render job: compose and hand the surface to every output
func (s *Session) render(ctx context.Context) {
	surface := s.comp.Render()
	s.surface.Store(surface)

	for _, out := range s.outputs {
		if !out.IsRunning() {
			continue
		}
		if err := out.WriteFrame(surface); err != nil {
			s.log.Debug().Err(err).Str("output", out.Name()).Msg("Failed to write frame")
		}
	}
}

// Surface returns the latest composed surface, or nil before the first
// render
func (s *Session) Surface() *image.RGBA {
	return s.surface.Load()
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close stops every job with a bounded wait, releases the camera, stops the
// outputs and clears the panels. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.close(ctx)
	})
	return s.closeErr
}

func (s *Session) close(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	s.camera.markClosing()
	s.running.Store(false)
	s.cancel()

	// every step shares one deadline; a step that overruns it is abandoned
	deadline := time.Now().Add(timeout)
	left := func() time.Duration {
		return max(time.Until(deadline), minCloseStep)
	}

	var errs []error
	if err := s.sched.Stop(left()); err != nil {
		errs = append(errs, err)
	}
	if err := closeWithin("camera", left(), s.stopCamera); err != nil {
		errs = append(errs, err)
	}
	if !waitTimeout(&s.bg, left()) {
		errs = append(errs, fmt.Errorf("camera retry still running after %s", timeout))
	}

	s.windowSrc.Close()
	for _, out := range s.outputs {
		if err := closeWithin("output "+out.Name(), left(), out.Stop); err != nil {
			errs = append(errs, err)
		}
	}
	// a snapshot abandoned by the watchdog may still hold the snapshotter
	if err := closeWithin("snapshotter", left(), s.snapshotter.Close); err != nil {
		errs = append(errs, err)
	}
	if err := closeWithin("registry", left(), s.registry.Close); err != nil {
		errs = append(errs, err)
	}

	for _, id := range []compositor.PanelID{compositor.App, compositor.Camera, compositor.Logo} {
		s.comp.ResetPanel(id)
	}
	s.surface.Clear()

	close(s.done)
	s.closeSubscribers()

	err := errors.Join(errs...)
	if err != nil {
		s.log.Warn().Err(err).Msg("Session closed with errors")
	} else {
		s.log.Info().Msg("Session closed")
	}
	return err
}

// minCloseStep is the least time any close step gets once the shutdown
// deadline has passed
const minCloseStep = 50 * time.Millisecond

// closeWithin runs fn and stops waiting for it after timeout. An fn that
// overruns keeps running in the background.
func closeWithin(name string, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: still closing after %s", name, timeout)
	}
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
