//go:build !linux

package v4l2

import (
	"context"
	"fmt"
	"runtime"

	"github.com/bryanchriswhite/SplitScreen/internal/capture"
)

// Opener reports the device as unavailable; V4L2 exists only on Linux
func Opener(opts Options) capture.DeviceOpener {
	return func(ctx context.Context) (capture.Device, error) {
		return nil, fmt.Errorf("%w: v4l2 is not supported on %s", capture.ErrDeviceUnavailable, runtime.GOOS)
	}
}
