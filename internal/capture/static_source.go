package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
)

// StaticSource always returns the same frame
type StaticSource struct {
	name string
	f    *frame.Frame
}

// NewStaticSource wraps an already decoded frame
func NewStaticSource(name string, f *frame.Frame) *StaticSource {
	return &StaticSource{name: name, f: f}
}

// LoadStaticSource decodes a PNG or JPEG file once
func LoadStaticSource(name, path string) (*StaticSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	f, err := frame.FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	return NewStaticSource(name, f), nil
}

// Name returns the source name
func (s *StaticSource) Name() string {
	return s.name
}

// Capture returns the stored frame
func (s *StaticSource) Capture(ctx context.Context) (*frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.f, nil
}

// State is always Ready
func (s *StaticSource) State() State {
	return StateReady
}
