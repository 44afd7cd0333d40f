//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/bryanchriswhite/SplitScreen/internal/capture"
	"github.com/bryanchriswhite/SplitScreen/internal/frame"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

// Device is an open, streaming V4L2 camera
type Device struct {
	path   string
	format uint32
	width  int
	height int

	mu  sync.Mutex
	cam *webcam.Webcam
}

// Opener returns a capture.DeviceOpener for opts
func Opener(opts Options) capture.DeviceOpener {
	return func(ctx context.Context) (capture.Device, error) {
		return Open(opts)
	}
}

// Open opens the device, negotiates a format and starts streaming
func Open(opts Options) (*Device, error) {
	log := logger.WithComponent("v4l2")
	path := DevicePath(opts.Device)

	wanted, err := preferredFormats(opts.Format)
	if err != nil {
		return nil, err
	}

	cam, err := webcam.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", capture.ErrDeviceUnavailable, path, err)
	}

	supported := cam.GetSupportedFormats()
	var format webcam.PixelFormat
	for _, f := range wanted {
		if _, ok := supported[webcam.PixelFormat(f)]; ok {
			format = webcam.PixelFormat(f)
			break
		}
	}
	if format == 0 {
		cam.Close()
		return nil, fmt.Errorf("%w: %s supports none of the wanted formats", capture.ErrDeviceUnavailable, path)
	}

	got, w, h, err := cam.SetImageFormat(format, uint32(opts.Width), uint32(opts.Height))
	if err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: set format on %s: %v", capture.ErrDeviceUnavailable, path, err)
	}

	buffers := opts.Buffers
	if buffers <= 0 {
		buffers = 4
	}
	if err := cam.SetBufferCount(uint32(buffers)); err != nil {
		log.Debug().Err(err).Msg("SetBufferCount failed, using driver default")
	}

	// a camera claimed by another process fails here with EBUSY
	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, fmt.Errorf("%w: start streaming %s: %v", capture.ErrDeviceUnavailable, path, err)
	}

	log.Info().
		Str("device", path).
		Str("format", FormatName(uint32(got))).
		Uint32("width", w).
		Uint32("height", h).
		Msg("Camera streaming")

	return &Device{
		path:   path,
		format: uint32(got),
		width:  int(w),
		height: int(h),
		cam:    cam,
	}, nil
}

// ReadFrame waits for the next frame. The driver wait has one second
// granularity, so timeout is rounded up to whole seconds.
func (d *Device) ReadFrame(ctx context.Context, timeout time.Duration) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cam == nil {
		return nil, capture.ErrClosed
	}

	secs := uint32((timeout + time.Second - 1) / time.Second)
	if secs == 0 {
		secs = 1
	}

	err := d.cam.WaitForFrame(secs)
	var timeoutErr *webcam.Timeout
	switch {
	case errors.As(err, &timeoutErr):
		return nil, fmt.Errorf("%w: %s after %s", capture.ErrReadTimeout, d.path, timeout)
	case err != nil:
		return nil, fmt.Errorf("%w: wait on %s: %v", capture.ErrDeviceUnavailable, d.path, err)
	}

	buf, err := d.cam.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", capture.ErrDeviceUnavailable, d.path, err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty buffer", capture.ErrReadTimeout, d.path)
	}

	return decode(d.format, d.width, d.height, buf)
}

// Close stops streaming and releases the device
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cam == nil {
		return nil
	}
	if err := d.cam.StopStreaming(); err != nil {
		logger.WithComponent("v4l2").Debug().Err(err).Str("device", d.path).Msg("StopStreaming failed")
	}
	err := d.cam.Close()
	d.cam = nil
	return err
}
