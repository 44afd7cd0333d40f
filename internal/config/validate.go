package config

import (
	"fmt"
	"image"
	"strings"

	"github.com/bryanchriswhite/SplitScreen/internal/compositor"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/overlay"
)

const (
	minFPS = 1
	maxFPS = 120

	minTimeoutMs = 50
	maxTimeoutMs = 60000
)

// Camera drivers
const (
	DriverV4L2      = "v4l2"
	DriverGStreamer = "gstreamer"
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Validate clamps out-of-range values in place and returns a warning for
// each change. An error means the configuration cannot be used at all.
func (c *Config) Validate() ([]string, error) {
	var warnings []string
	clampInt := func(name string, v *int, lo, hi int) {
		if n := clamp(*v, lo, hi); n != *v {
			warnings = append(warnings, fmt.Sprintf("%s %d out of range, using %d", name, *v, n))
			*v = n
		}
	}

	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return warnings, fmt.Errorf("invalid display size %dx%d", c.Display.Width, c.Display.Height)
	}

	if !logger.ValidLevel(c.LogLevel) {
		warnings = append(warnings, fmt.Sprintf("unknown log_level %q, using info", c.LogLevel))
		c.LogLevel = "info"
	}
	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return warnings, fmt.Errorf("invalid server_port %d", c.ServerPort)
	}
	if _, err := overlay.ParseColor(c.Display.Background); err != nil {
		warnings = append(warnings, fmt.Sprintf("invalid display.background %q, using #202020", c.Display.Background))
		c.Display.Background = "#202020"
	}

	clampInt("window_capture.fps", &c.WindowCapture.FPS, minFPS, maxFPS)
	clampInt("camera.fps", &c.Camera.FPS, minFPS, maxFPS)
	clampInt("render.fps", &c.Render.FPS, minFPS, maxFPS)
	clampInt("window_capture.timeout_ms", &c.WindowCapture.TimeoutMs, minTimeoutMs, maxTimeoutMs)
	clampInt("camera.read_timeout_ms", &c.Camera.ReadTimeoutMs, minTimeoutMs, maxTimeoutMs)
	clampInt("shutdown_timeout_ms", &c.ShutdownTimeoutMs, minTimeoutMs, maxTimeoutMs)
	clampInt("window_capture.failure_threshold", &c.WindowCapture.FailureThreshold, 1, 1000)
	clampInt("camera.failure_threshold", &c.Camera.FailureThreshold, 1, 1000)

	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		warnings = append(warnings, fmt.Sprintf("invalid camera size %dx%d, using 640x480", c.Camera.Width, c.Camera.Height))
		c.Camera.Width, c.Camera.Height = 640, 480
	}

	switch strings.ToLower(c.Camera.Driver) {
	case DriverV4L2, DriverGStreamer:
		c.Camera.Driver = strings.ToLower(c.Camera.Driver)
	default:
		warnings = append(warnings, fmt.Sprintf("unknown camera.driver %q, using %s", c.Camera.Driver, DriverV4L2))
		c.Camera.Driver = DriverV4L2
	}

	switch strings.ToLower(c.WindowCapture.Backend) {
	case "auto", "x11", "screenshot":
		c.WindowCapture.Backend = strings.ToLower(c.WindowCapture.Backend)
	default:
		warnings = append(warnings, fmt.Sprintf("unknown window_capture.backend %q, using auto", c.WindowCapture.Backend))
		c.WindowCapture.Backend = "auto"
	}

	if _, err := compositor.ParseScaler(c.Render.Scaler); err != nil {
		warnings = append(warnings, fmt.Sprintf("unknown render.scaler %q, using approx-bilinear", c.Render.Scaler))
		c.Render.Scaler = "approx-bilinear"
	}

	display := image.Rect(0, 0, c.Display.Width, c.Display.Height)
	for _, p := range []struct {
		name string
		rect *Rect
	}{
		{"app", &c.Layout.App},
		{"camera", &c.Layout.Camera},
		{"logo", &c.Layout.Logo},
	} {
		r := p.rect.Rectangle()
		clipped := r.Intersect(display)
		if clipped.Empty() {
			return warnings, fmt.Errorf("layout.%s %v lies outside the %dx%d display", p.name, r, c.Display.Width, c.Display.Height)
		}
		if clipped != r {
			warnings = append(warnings, fmt.Sprintf("layout.%s %v clipped to %v", p.name, r, clipped))
			*p.rect = Rect{X: clipped.Min.X, Y: clipped.Min.Y, Width: clipped.Dx(), Height: clipped.Dy()}
		}
	}

	return warnings, nil
}

// CompositorLayout builds the panel layout for the compositor
func (c *Config) CompositorLayout() (compositor.Layout, error) {
	bg, err := overlay.ParseColor(c.Display.Background)
	if err != nil {
		return compositor.Layout{}, err
	}

	base := compositor.DefaultLayout()
	logoText := c.Logo.Text
	if logoText == "" {
		logoText = "LOGO PLACEHOLDER"
	}

	l := compositor.Layout{
		Width:      c.Display.Width,
		Height:     c.Display.Height,
		Background: bg,
	}
	for _, p := range base.Panels {
		switch p.ID {
		case compositor.App:
			p.Bounds = c.Layout.App.Rectangle()
		case compositor.Camera:
			p.Bounds = c.Layout.Camera.Rectangle()
			if !c.Camera.Enabled {
				p.Placeholder = "Camera disabled"
			}
		case compositor.Logo:
			p.Bounds = c.Layout.Logo.Rectangle()
			p.Placeholder = logoText
		}
		l.Panels = append(l.Panels, p)
	}
	return l, l.Validate()
}

// Thresholds returns the per-panel failure thresholds
func (c *Config) Thresholds() map[compositor.PanelID]int {
	return map[compositor.PanelID]int{
		compositor.App:    c.WindowCapture.FailureThreshold,
		compositor.Camera: c.Camera.FailureThreshold,
	}
}
