// Package compositor renders the fixed panel layout into one composed
// surface.
package compositor

import (
	"fmt"
	"image"
	"image/color"
)

// PanelID names a display region
type PanelID string

const (
	App    PanelID = "app"
	Camera PanelID = "camera"
	Logo   PanelID = "logo"
)

// Panel is a fixed display region. Content is always fitted preserving
// aspect ratio, centered, and letterboxed with the layout background.
type Panel struct {
	ID     PanelID
	Bounds image.Rectangle

	// Placeholder is drawn while the panel has no frame yet
	Placeholder string

	// Unavailable is the indicator text used when no more specific reason
	// is known
	Unavailable string
}

// Layout is the full composed view
type Layout struct {
	Width      int
	Height     int
	Background color.RGBA
	Panels     []Panel
}

// DefaultLayout is a 1200x800 view with the app on the left and the camera
// above the logo on the right
func DefaultLayout() Layout {
	return Layout{
		Width:      1200,
		Height:     800,
		Background: color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff},
		Panels: []Panel{
			{ID: App, Bounds: image.Rect(10, 10, 690, 790), Placeholder: "No window selected", Unavailable: "Window capture unavailable"},
			{ID: Camera, Bounds: image.Rect(700, 10, 1190, 580), Placeholder: "Starting camera...", Unavailable: "Camera unavailable"},
			{ID: Logo, Bounds: image.Rect(700, 590, 1190, 790), Placeholder: "LOGO PLACEHOLDER", Unavailable: "Logo unavailable"},
		},
	}
}

// Bounds returns the surface rectangle
func (l Layout) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.Width, l.Height)
}

// Panel returns the panel with id
func (l Layout) Panel(id PanelID) (Panel, bool) {
	for _, p := range l.Panels {
		if p.ID == id {
			return p, true
		}
	}
	return Panel{}, false
}

// Validate checks that the surface is non-empty and every panel is unique,
// non-empty and inside the surface
func (l Layout) Validate() error {
	if l.Width <= 0 || l.Height <= 0 {
		return fmt.Errorf("invalid display size %dx%d", l.Width, l.Height)
	}

	seen := make(map[PanelID]bool, len(l.Panels))
	for _, p := range l.Panels {
		if seen[p.ID] {
			return fmt.Errorf("duplicate panel %q", p.ID)
		}
		seen[p.ID] = true

		if p.Bounds.Empty() {
			return fmt.Errorf("panel %q is empty", p.ID)
		}
		if !p.Bounds.In(l.Bounds()) {
			return fmt.Errorf("panel %q %v exceeds display %v", p.ID, p.Bounds, l.Bounds())
		}
	}
	return nil
}
