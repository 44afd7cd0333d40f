package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

// Device is an opened video input
type Device interface {
	// ReadFrame waits up to timeout for the next frame. Drivers return
	// ErrReadTimeout when nothing arrives in time.
	ReadFrame(ctx context.Context, timeout time.Duration) (*frame.Frame, error)

	// Close releases the device
	Close() error
}

// DeviceOpener acquires a device exclusively
type DeviceOpener func(ctx context.Context) (Device, error)

// CameraSource reads frames from a video input device
type CameraSource struct {
	name        string
	open        DeviceOpener
	readTimeout time.Duration

	// mu is held across reads so Close waits for an in-flight read (bounded
	// by readTimeout) before releasing the device.
	mu    sync.Mutex
	dev   Device
	state stateMachine
}

// NewCameraSource creates an unopened camera source
func NewCameraSource(name string, open DeviceOpener, readTimeout time.Duration) *CameraSource {
	if name == "" {
		name = "camera"
	}
	return &CameraSource{
		name:        name,
		open:        open,
		readTimeout: readTimeout,
	}
}

// Name returns the source name
func (c *CameraSource) Name() string {
	return c.name
}

// State returns the current lifecycle state
func (c *CameraSource) State() State {
	return c.state.get()
}

// Open acquires the device. Opening an already open source is a no-op.
func (c *CameraSource) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.get() == StateClosed {
		return ErrClosed
	}
	if c.dev != nil {
		return nil
	}

	dev, err := c.open(ctx)
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return err
	}

	c.dev = dev
	c.state.set(StateReady)
	logger.WithComponent("camera").Info().Str("source", c.name).Msg("Camera opened")
	return nil
}

// Capture reads the next frame, waiting at most the read timeout
func (c *CameraSource) Capture(ctx context.Context) (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.state.begin(); !ok {
		if prev == StateClosed {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: not open", ErrDeviceUnavailable)
	}

	f, err := c.dev.ReadFrame(ctx, c.readTimeout)
	c.state.finish(err)
	return f, err
}

// Close releases the device. It is safe to call repeatedly and when Open
// never succeeded.
func (c *CameraSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.set(StateClosed)
	if c.dev == nil {
		return nil
	}

	err := c.dev.Close()
	c.dev = nil
	logger.WithComponent("camera").Info().Str("source", c.name).Err(err).Msg("Camera released")
	return err
}
