package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/SplitScreen/internal/window"
)

// Capture error taxonomy. Every error returned by a Source wraps exactly one
// of these, so callers can branch with errors.Is.
var (
	ErrRegistryUnavailable = window.ErrRegistryUnavailable
	ErrWindowNotFound      = window.ErrWindowNotFound

	ErrRegionEmpty       = errors.New("capture region is empty")
	ErrCaptureDenied     = errors.New("capture denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrReadTimeout       = errors.New("timed out waiting for frame")

	// ErrNoSelection is returned by a window source with nothing selected.
	// It is a state, not a failure.
	ErrNoSelection = errors.New("no window selected")

	// ErrCaptureTimeout is returned when a snapshot call hangs past the
	// watchdog timeout, and for every call made while it is still hung.
	ErrCaptureTimeout = errors.New("capture call timed out")

	// ErrSupersededCapture is returned while a hung call made for an
	// earlier selection is still running. It says nothing about the
	// current selection.
	ErrSupersededCapture = fmt.Errorf("%w: earlier selection still capturing", ErrCaptureTimeout)

	ErrClosed = errors.New("capture source closed")
)

// Kind names the taxonomy member err belongs to, for logs and status.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRegistryUnavailable):
		return "registry_unavailable"
	case errors.Is(err, ErrWindowNotFound):
		return "window_not_found"
	case errors.Is(err, ErrRegionEmpty):
		return "region_empty"
	case errors.Is(err, ErrCaptureDenied):
		return "capture_denied"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrReadTimeout):
		return "read_timeout"
	case errors.Is(err, ErrNoSelection):
		return "no_selection"
	case errors.Is(err, ErrCaptureTimeout):
		return "capture_timeout"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// Message returns the short user-facing status text for err
func Message(err error) string {
	switch {
	case errors.Is(err, ErrWindowNotFound):
		return "Window no longer exists"
	case errors.Is(err, ErrRegionEmpty):
		return "Window is minimized"
	case errors.Is(err, ErrCaptureDenied):
		return "Window capture denied"
	case errors.Is(err, ErrRegistryUnavailable):
		return "Window list unavailable"
	case errors.Is(err, ErrCaptureTimeout):
		return "Window capture not responding"
	case errors.Is(err, ErrDeviceUnavailable):
		return "Camera unavailable"
	case errors.Is(err, ErrReadTimeout):
		return "Camera not responding"
	case errors.Is(err, ErrNoSelection):
		return "No window selected"
	default:
		return "Capture failed"
	}
}
