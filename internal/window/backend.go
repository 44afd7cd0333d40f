package window

import (
	"errors"
)

var (
	// ErrRegistryUnavailable means the display server could not be queried
	ErrRegistryUnavailable = errors.New("window registry unavailable")

	// ErrWindowNotFound means the handle no longer refers to a live window
	ErrWindowNotFound = errors.New("window not found")
)

// Handle identifies a capturable top-level window.
// Geometry is deliberately not part of the handle: it is queried at capture
// time since windows move and resize.
type Handle struct {
	ID    uint32 `json:"id"`
	Title string `json:"title"`
	Class string `json:"class"`
	PID   int    `json:"pid"`
}

// Geometry is a window rectangle in root (screen) coordinates
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Empty reports whether the geometry has no capturable area
func (g Geometry) Empty() bool {
	return g.Width <= 0 || g.Height <= 0
}

// Backend defines the interface for window discovery backends
type Backend interface {
	// Connect establishes connection to the display server
	Connect() error

	// Close closes the connection to the display server
	Close() error

	// ListWindows returns the top-level application windows, in stacking
	// or client-list order
	ListWindows() ([]Handle, error)

	// Geometry returns the live geometry of the window in root coordinates.
	// It returns ErrWindowNotFound if the window has been destroyed.
	Geometry(id uint32) (Geometry, error)

	// Name returns the backend name (e.g., "x11")
	Name() string
}
