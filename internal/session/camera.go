package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/SplitScreen/internal/capture"
	"github.com/bryanchriswhite/SplitScreen/internal/compositor"
	"github.com/bryanchriswhite/SplitScreen/internal/scheduler"
)

type cameraPhase int32

const (
	phaseDisabled cameraPhase = iota
	phaseStarting
	phaseActive
	phaseUnavailable
)

const (
	textCameraActive      = "Camera active"
	textCameraDisabled    = "Camera disabled"
	textCameraUnavailable = "Camera unavailable"
	textCameraStarting    = "Starting camera..."
)

// cameraControl tracks the camera source across enable, disable and retry
type cameraControl struct {
	open capture.DeviceOpener

	// opMu serializes opening and releasing the device; it is held across
	// driver calls
	opMu sync.Mutex

	// mu guards the fields below and is never held across driver calls.
	// Frames are only published while holding mu and while source is the
	// publishing source.
	mu      sync.Mutex
	enabled bool
	closing bool
	lastErr error
	source  *capture.CameraSource

	phase atomic.Int32
}

func (c *cameraControl) setPhase(p cameraPhase) {
	c.phase.Store(int32(p))
}

// text is the camera status line shown by status widgets
func (c *cameraControl) text() string {
	switch cameraPhase(c.phase.Load()) {
	case phaseDisabled:
		return textCameraDisabled
	case phaseStarting:
		return textCameraStarting
	case phaseActive:
		return textCameraActive
	default:
		return textCameraUnavailable
	}
}

func (c *cameraControl) isEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *cameraControl) markClosing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closing = true
}

// startCamera opens the camera and adds the camera job. On failure the
// camera panel is marked unavailable.
func (s *Session) startCamera(ctx context.Context) error {
	err := s.openCamera(ctx)
	s.notify()
	return err
}

func (s *Session) openCamera(ctx context.Context) error {
	c := &s.camera
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	closing, enabled, open := c.closing, c.enabled, c.source != nil
	c.mu.Unlock()
	switch {
	case closing:
		return ErrClosed
	case !enabled:
		return ErrCameraDisabled
	case open:
		return nil
	}

	c.setPhase(phaseStarting)
	s.comp.ResetPanel(compositor.Camera)
	s.comp.SetPlaceholder(compositor.Camera, textCameraStarting)

	var (
		src *capture.CameraSource
		err error
	)
	if c.open == nil {
		err = fmt.Errorf("%w: no camera driver", capture.ErrDeviceUnavailable)
	} else {
		src = capture.NewCameraSource(JobCamera, c.open, s.cfg.Camera.ReadTimeout())
		err = src.Open(ctx)
	}
	if err != nil {
		if src != nil {
			src.Close()
		}
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.setPhase(phaseUnavailable)
		s.comp.MarkUnavailable(compositor.Camera, capture.Message(err))
		return err
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		src.Close()
		return ErrClosed
	}
	c.source = src
	c.lastErr = nil
	c.mu.Unlock()
	c.setPhase(phaseActive)

	err = s.sched.Add(scheduler.Job{
		Name:     JobCamera,
		Interval: scheduler.IntervalForFPS(s.cfg.Camera.FPS),
		Run:      s.captureCamera(src),
	})
	if err != nil {
		c.mu.Lock()
		c.source = nil
		c.mu.Unlock()
		src.Close()
		return err
	}

	s.log.Info().
		Str("driver", s.cfg.Camera.Driver).
		Str("device", s.cfg.Camera.Device).
		Int("fps", s.cfg.Camera.FPS).
		Msg("Camera started")
	return nil
}

// stopCamera removes the camera job and releases the device
func (s *Session) stopCamera() error {
	s.camera.opMu.Lock()
	defer s.camera.opMu.Unlock()
	return s.stopCameraLocked()
}

// stopCameraLocked requires camera.opMu
func (s *Session) stopCameraLocked() error {
	c := &s.camera
	c.mu.Lock()
	src := c.source
	c.source = nil
	c.mu.Unlock()

	if src == nil {
		return nil
	}
	s.sched.Remove(JobCamera)
	// waits for an in-flight read, bounded by the read timeout
	err := src.Close()
	s.comp.ResetPanel(compositor.Camera)
	return err
}

// captureCamera returns the camera job for src
func (s *Session) captureCamera(src *capture.CameraSource) func(context.Context) {
	return func(ctx context.Context) {
		f, err := src.Capture(ctx)
		if errors.Is(err, capture.ErrClosed) || ctx.Err() != nil {
			return
		}

		c := &s.camera
		var changed bool
		c.mu.Lock()
		if c.source != src {
			c.mu.Unlock()
			return
		}
		if err != nil {
			s.log.Debug().Err(err).Str("kind", capture.Kind(err)).Msg("Camera capture failed")
			if s.comp.ReportFailure(compositor.Camera, err) {
				c.setPhase(phaseUnavailable)
				changed = true
			}
		} else {
			s.comp.Slot(compositor.Camera).Store(f)
			if s.comp.ReportSuccess(compositor.Camera) {
				c.setPhase(phaseActive)
				changed = true
			}
		}
		c.mu.Unlock()

		if changed {
			s.notify()
		}
	}
}

// SetCameraEnabled turns the camera panel on or off at runtime. Disabling
// releases the device.
func (s *Session) SetCameraEnabled(ctx context.Context, enabled bool) error {
	if s.isClosed() {
		return ErrClosed
	}
	c := &s.camera

	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()

	if enabled {
		s.log.Info().Msg("Camera enabled")
		return s.startCamera(ctx)
	}

	c.opMu.Lock()
	err := s.stopCameraLocked()
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	c.setPhase(phaseDisabled)
	s.comp.ResetPanel(compositor.Camera)
	s.comp.SetPlaceholder(compositor.Camera, textCameraDisabled)
	c.opMu.Unlock()

	s.log.Info().Msg("Camera disabled")
	s.notify()
	return err
}

// RetryCamera reopens the camera after it was unavailable. It is a no-op
// while the camera is open.
func (s *Session) RetryCamera(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if !s.camera.isEnabled() {
		return ErrCameraDisabled
	}
	return s.startCamera(ctx)
}

// retryCameraInBackground reopens an unavailable camera without blocking
// the caller
func (s *Session) retryCameraInBackground() {
	if !s.running.Load() {
		return
	}

	c := &s.camera
	c.mu.Lock()
	if !c.enabled || c.closing || c.source != nil || c.open == nil {
		c.mu.Unlock()
		return
	}
	// Add happens under mu so it never races the Wait in close
	s.bg.Add(1)
	c.mu.Unlock()

	go func() {
		defer s.bg.Done()
		if err := s.RetryCamera(s.ctx); err != nil {
			s.log.Debug().Err(err).Msg("Camera retry failed")
		}
	}()
}
