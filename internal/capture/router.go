package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

// Snapshot backend names accepted by NewRouter
const (
	BackendAuto       = "auto"
	BackendX11        = "x11"
	BackendScreenshot = "screenshot"
)

// Router routes snapshot requests to the preferred snapshotter and falls
// back to the secondary one when the preferred one fails for reasons other
// than the region itself.
type Router struct {
	mu       sync.RWMutex
	primary  Snapshotter
	fallback Snapshotter
}

// NewRouter builds a router for the named backend. "auto" prefers X11 and
// keeps the screenshot capturer as a fallback.
func NewRouter(backend, display string) (*Router, error) {
	log := logger.WithComponent("capture-router")

	switch backend {
	case BackendX11:
		x11, err := NewX11Capturer(display)
		if err != nil {
			return nil, err
		}
		return NewRouterWith(x11, nil), nil

	case BackendScreenshot:
		sc, err := NewScreenshotCapturer()
		if err != nil {
			return nil, err
		}
		return NewRouterWith(sc, nil), nil

	case BackendAuto, "":
		r := &Router{}
		if x11, err := NewX11Capturer(display); err != nil {
			log.Warn().Err(err).Msg("X11 capturer not available")
		} else {
			r.primary = x11
			log.Info().Msg("X11 capturer initialized")
		}

		if sc, err := NewScreenshotCapturer(); err != nil {
			log.Warn().Err(err).Msg("Screenshot capturer not available")
		} else if r.primary == nil {
			r.primary = sc
		} else {
			r.fallback = sc
		}

		if r.primary == nil {
			return nil, fmt.Errorf("no capture backends available")
		}
		return r, nil

	default:
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}
}

// NewRouterWith builds a router from explicit snapshotters; fallback may be nil
func NewRouterWith(primary, fallback Snapshotter) *Router {
	return &Router{primary: primary, fallback: fallback}
}

// Name reports the active snapshotter chain
func (r *Router) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.primary == nil {
		return "none"
	}
	if r.fallback == nil {
		return r.primary.Name()
	}
	return r.primary.Name() + "+" + r.fallback.Name()
}

// Snapshot captures rect with the primary snapshotter, retrying on the
// fallback for backend failures.
func (r *Router) Snapshot(rect image.Rectangle) (*image.RGBA, error) {
	r.mu.RLock()
	primary, fallback := r.primary, r.fallback
	r.mu.RUnlock()

	if primary == nil {
		return nil, fmt.Errorf("router closed")
	}

	img, err := primary.Snapshot(rect)
	if err == nil || fallback == nil {
		return img, err
	}
	if errors.Is(err, ErrRegionEmpty) || errors.Is(err, ErrCaptureDenied) {
		return nil, err
	}

	logger.WithComponent("capture-router").Debug().
		Err(err).
		Str("primary", primary.Name()).
		Str("fallback", fallback.Name()).
		Msg("Primary snapshotter failed, using fallback")
	return fallback.Snapshot(rect)
}

// Close closes all snapshotters
func (r *Router) Close() error {
	r.mu.Lock()
	primary, fallback := r.primary, r.fallback
	r.primary, r.fallback = nil, nil
	r.mu.Unlock()

	var errs []error
	if primary != nil {
		errs = append(errs, primary.Close())
	}
	if fallback != nil {
		errs = append(errs, fallback.Close())
	}
	return errors.Join(errs...)
}
