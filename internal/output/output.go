// Package output delivers composed surfaces to their destinations.
package output

import (
	"image"
)

// Output defines the interface for composed-surface destinations:
//   - the X11 composed-view window
//   - a PNG file written on stop
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a composed surface to the output. The surface is
	// never modified after it is passed in.
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}
