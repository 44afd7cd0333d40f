package v4l2

import (
	"fmt"
	"strconv"
	"strings"
)

// Options selects the device and the capture format to negotiate
type Options struct {
	// Device is an index ("0") or a path ("/dev/video0")
	Device string
	Width  int
	Height int
	// Format is "auto", "mjpeg" or "yuyv"
	Format  string
	Buffers int
}

// DevicePath resolves an index to /dev/video<N>; paths pass through
func DevicePath(device string) string {
	device = strings.TrimSpace(device)
	if device == "" {
		return "/dev/video0"
	}
	if n, err := strconv.Atoi(device); err == nil && n >= 0 {
		return fmt.Sprintf("/dev/video%d", n)
	}
	return device
}

// preferredFormats returns the fourccs to try, in order
func preferredFormats(format string) ([]uint32, error) {
	switch strings.ToLower(format) {
	case "", "auto":
		return []uint32{FormatMJPEG, FormatYUYV}, nil
	case "mjpeg", "mjpg":
		return []uint32{FormatMJPEG}, nil
	case "yuyv", "yuy2":
		return []uint32{FormatYUYV}, nil
	default:
		return nil, fmt.Errorf("unknown camera format %q", format)
	}
}
