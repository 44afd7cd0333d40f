package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ScreenshotCapturer snapshots regions through kbinani/screenshot. It is the
// fallback when the X11 capturer cannot be used.
type ScreenshotCapturer struct{}

// NewScreenshotCapturer fails if no active display is found
func NewScreenshotCapturer() (*ScreenshotCapturer, error) {
	if screenshot.NumActiveDisplays() == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	return &ScreenshotCapturer{}, nil
}

// Name returns the capturer name
func (c *ScreenshotCapturer) Name() string {
	return "screenshot"
}

// Close is a no-op; the library opens a connection per call
func (c *ScreenshotCapturer) Close() error {
	return nil
}

// Snapshot captures rect, clipped to the union of active displays
func (c *ScreenshotCapturer) Snapshot(rect image.Rectangle) (*image.RGBA, error) {
	var union image.Rectangle
	for i := 0; i < screenshot.NumActiveDisplays(); i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}

	clip := rect.Intersect(union)
	if clip.Empty() {
		return nil, fmt.Errorf("%w: %v outside screen", ErrRegionEmpty, rect)
	}

	img, err := screenshot.CaptureRect(clip)
	if err != nil {
		return nil, fmt.Errorf("screenshot capture: %w", err)
	}
	return img, nil
}
