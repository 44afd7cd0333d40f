// Package overlay draws text onto composed frames: panel placeholders, the
// unavailable indicator band and user-configured widgets.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/draw"
)

// Widget represents a renderable overlay widget
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto the provided image at the configured position
	Render(img *image.RGBA) error

	// Config returns the widget's configuration
	Config() WidgetConfig

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// WidgetConfig is the persisted form of a widget
type WidgetConfig struct {
	ID         string  `mapstructure:"id" yaml:"id" json:"id"`
	Type       string  `mapstructure:"type" yaml:"type" json:"type"`
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	X          int     `mapstructure:"x" yaml:"x" json:"x"`
	Y          int     `mapstructure:"y" yaml:"y" json:"y"`
	Opacity    float64 `mapstructure:"opacity" yaml:"opacity" json:"opacity"`
	Text       string  `mapstructure:"text" yaml:"text,omitempty" json:"text,omitempty"`
	Color      string  `mapstructure:"color" yaml:"color,omitempty" json:"color,omitempty"`
	Background string  `mapstructure:"background" yaml:"background,omitempty" json:"background,omitempty"`
	Padding    int     `mapstructure:"padding" yaml:"padding,omitempty" json:"padding,omitempty"`
}

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	mu      sync.RWMutex
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	w := &BaseWidget{id: id, enabled: true, x: x, y: y}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = enabled
}

// Position returns the widget's position
func (w *BaseWidget) Position() (int, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.x, w.y
}

// Opacity returns the widget's opacity
func (w *BaseWidget) Opacity() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.opacity
}

// SetOpacity sets the widget's opacity (0.0 to 1.0)
func (w *BaseWidget) SetOpacity(opacity float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opacity = clamp01(opacity)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// BlendImage draws src onto dst with its top-left corner at (x, y), scaling
// src's own alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	opacity = clamp01(opacity)
	if opacity == 0 {
		return
	}
	sb := src.Bounds()
	r := image.Rect(x, y, x+sb.Dx(), y+sb.Dy())
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, r, src, sb.Min, mask, image.Point{}, draw.Over)
}

// DrawRectangle fills rect with c blended at opacity
func DrawRectangle(dst *image.RGBA, rect image.Rectangle, c color.Color, opacity float64) {
	src := image.NewUniform(c)
	mask := image.NewUniform(color.Alpha{A: uint8(clamp01(opacity)*255 + 0.5)})
	draw.DrawMask(dst, rect, src, image.Point{}, mask, image.Point{}, draw.Over)
}

// ParseColor parses "#rgb", "#rrggbb" or "#rrggbbaa"
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// FormatColor is the inverse of ParseColor
func FormatColor(c color.RGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}
