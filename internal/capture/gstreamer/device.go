// Package gstreamer reads camera frames from a gst-launch-1.0 subprocess.
// Running the pipeline out of process keeps cgo and GStreamer's own threads
// away from the capture workers.
package gstreamer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/SplitScreen/internal/capture"
	"github.com/bryanchriswhite/SplitScreen/internal/capture/v4l2"
	"github.com/bryanchriswhite/SplitScreen/internal/frame"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/slot"
)

// Options configures the pipeline
type Options struct {
	// Device is an index ("0") or a path ("/dev/video0")
	Device string
	Width  int
	Height int
	FPS    int

	// Command replaces the gst-launch invocation. It must write raw RGB
	// frames of Width x Height to stdout.
	Command []string

	// StartTimeout bounds the wait for the first frame in Open
	StartTimeout time.Duration
}

// Pipeline returns the gst-launch-1.0 argument list for opts
func Pipeline(opts Options) []string {
	caps := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", opts.Width, opts.Height)
	if opts.FPS > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", opts.FPS)
	}
	return []string{
		"gst-launch-1.0", "-q",
		"v4l2src", "device=" + v4l2.DevicePath(opts.Device), "do-timestamp=true",
		"!", "videoconvert",
		"!", "videoscale",
		"!", "videorate", "drop-only=true",
		"!", caps,
		"!", "fdsink", "fd=1", "sync=false",
	}
}

// Device is a running pipeline
type Device struct {
	width  int
	height int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	latest slot.Slot[frame.Frame]
	notify chan struct{}
	exited chan struct{}

	mu       sync.Mutex
	lastSeq  uint64
	running  bool
	stopChan chan struct{}
	errTail  tail
}

// Opener returns a capture.DeviceOpener for opts
func Opener(opts Options) capture.DeviceOpener {
	return func(ctx context.Context) (capture.Device, error) {
		return Open(ctx, opts)
	}
}

// Open starts the pipeline and waits for its first frame
func Open(ctx context.Context, opts Options) (*Device, error) {
	log := logger.WithComponent("gstreamer")

	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}

	args := opts.Command
	if len(args) == 0 {
		args = Pipeline(opts)
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}

	d := &Device{
		width:    opts.Width,
		height:   opts.Height,
		notify:   make(chan struct{}, 1),
		exited:   make(chan struct{}),
		stopChan: make(chan struct{}),
	}
	d.cmd = exec.Command(args[0], args[1:]...)

	var err error
	if d.stdout, err = d.cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if d.stderr, err = d.cmd.StderrPipe(); err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	log.Debug().Str("pipeline", strings.Join(args, " ")).Msg("Starting GStreamer subprocess")
	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", capture.ErrDeviceUnavailable, args[0], err)
	}
	d.running = true

	go d.readFrames()
	go d.logStderr()

	startTimeout := opts.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 5 * time.Second
	}
	timer := time.NewTimer(startTimeout)
	defer timer.Stop()

	select {
	case <-d.notify:
		// leave the first frame for the first ReadFrame
		select {
		case d.notify <- struct{}{}:
		default:
		}
	case <-d.exited:
		d.Close()
		return nil, fmt.Errorf("%w: pipeline exited: %s", capture.ErrDeviceUnavailable, d.errTail.String())
	case <-timer.C:
		d.Close()
		return nil, fmt.Errorf("%w: no frame within %s", capture.ErrDeviceUnavailable, startTimeout)
	case <-ctx.Done():
		d.Close()
		return nil, ctx.Err()
	}

	log.Info().Int("pid", d.cmd.Process.Pid).Int("width", d.width).Int("height", d.height).Msg("GStreamer subprocess started")
	return d, nil
}

// readFrames continuously reads raw RGB frames from stdout
func (d *Device) readFrames() {
	log := logger.WithComponent("gstreamer")
	defer close(d.exited)

	frameSize := d.width * d.height * frame.BytesPerPixel
	reader := bufio.NewReaderSize(d.stdout, frameSize*2)

	for {
		select {
		case <-d.stopChan:
			return
		default:
		}

		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(reader, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				log.Debug().Msg("EOF from GStreamer subprocess")
			} else {
				log.Debug().Err(err).Msg("Frame reader stopped")
			}
			return
		}

		f, err := frame.New(d.width, d.height, buf)
		if err != nil {
			log.Error().Err(err).Msg("Dropping malformed frame")
			continue
		}
		d.latest.Store(f)

		select {
		case d.notify <- struct{}{}:
		default:
		}
	}
}

// logStderr logs pipeline output and keeps the tail for error reports
func (d *Device) logStderr() {
	log := logger.WithComponent("gstreamer")
	scanner := bufio.NewScanner(d.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		d.errTail.add(line)
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

// ReadFrame returns the next frame newer than the one previously returned
func (d *Device) ReadFrame(ctx context.Context, timeout time.Duration) (*frame.Frame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		f, seq := d.latest.Snapshot()

		d.mu.Lock()
		running := d.running
		fresh := f != nil && seq > d.lastSeq
		if fresh {
			d.lastSeq = seq
		}
		d.mu.Unlock()

		if !running {
			return nil, capture.ErrClosed
		}
		if fresh {
			return f, nil
		}

		select {
		case <-d.notify:
		case <-d.exited:
			return nil, fmt.Errorf("%w: pipeline exited: %s", capture.ErrDeviceUnavailable, d.errTail.String())
		case <-timer.C:
			return nil, fmt.Errorf("%w: after %s", capture.ErrReadTimeout, timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close kills the subprocess and waits for it to exit
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	log := logger.WithComponent("gstreamer")

	close(d.stopChan)
	if d.cmd != nil && d.cmd.Process != nil {
		log.Debug().Int("pid", d.cmd.Process.Pid).Msg("Killing GStreamer subprocess")
		d.cmd.Process.Kill()
		d.cmd.Wait()
	}

	d.running = false
	d.latest.Clear()
	log.Info().Msg("GStreamer subprocess stopped")
	return nil
}

// tail keeps the last few stderr lines
type tail struct {
	mu    sync.Mutex
	lines []string
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > 5 {
		t.lines = t.lines[len(t.lines)-5:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return "no output"
	}
	return strings.Join(t.lines, "; ")
}
