package output

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

// ErrNoFrame is returned by Stop when no surface was ever written
var ErrNoFrame = errors.New("no frame written")

// FileOutput keeps the latest surface and writes it as a PNG on Stop
type FileOutput struct {
	path string

	mu      sync.Mutex
	latest  *image.RGBA
	frames  uint64
	running bool
}

// NewFileOutput creates a PNG output for path
func NewFileOutput(path string) *FileOutput {
	return &FileOutput{path: path}
}

// Start implements Output
func (f *FileOutput) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("file output already running")
	}
	f.running = true
	return nil
}

// WriteFrame implements Output
func (f *FileOutput) WriteFrame(frame *image.RGBA) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return fmt.Errorf("file output not running")
	}
	f.latest = frame
	f.frames++
	return nil
}

// Frames returns how many surfaces were written
func (f *FileOutput) Frames() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

// Stop writes the latest surface to disk
func (f *FileOutput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil
	}
	f.running = false

	if f.latest == nil {
		return ErrNoFrame
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	out, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.path, err)
	}
	if err := png.Encode(out, f.latest); err != nil {
		out.Close()
		return fmt.Errorf("failed to encode png: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.WithComponent("output").Info().
		Str("path", f.path).
		Uint64("frames", f.frames).
		Msg("Snapshot written")
	return nil
}

// Name implements Output
func (f *FileOutput) Name() string {
	return "file:" + f.path
}

// IsRunning implements Output
func (f *FileOutput) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}
