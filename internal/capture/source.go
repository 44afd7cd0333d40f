// Package capture implements the frame producers: window snapshots, camera
// devices and static images.
package capture

import (
	"context"
	"image"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
)

// Source produces frames on demand
type Source interface {
	// Name identifies the source in logs and status
	Name() string

	// Capture produces one frame or fails with an error from the capture
	// taxonomy. It never blocks past the source's configured bound.
	Capture(ctx context.Context) (*frame.Frame, error)

	// State reports the current lifecycle state
	State() State
}

// Snapshotter reads the pixels of a screen rectangle
type Snapshotter interface {
	// Snapshot returns the pixels inside rect, given in root coordinates.
	// Parts of rect outside the screen are clipped away.
	Snapshot(rect image.Rectangle) (*image.RGBA, error)

	// Name returns a human-readable name for this snapshotter
	Name() string

	// Close releases any display connection
	Close() error
}
