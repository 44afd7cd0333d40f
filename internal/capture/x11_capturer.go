package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

// X11Capturer snapshots screen regions from the X11 root window
type X11Capturer struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	bpp    int
	mu     sync.Mutex
}

// NewX11Capturer connects to display (empty means $DISPLAY)
func NewX11Capturer(display string) (*X11Capturer, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	bpp := 0
	for _, f := range setup.PixmapFormats {
		if f.Depth == screen.RootDepth {
			bpp = int(f.BitsPerPixel)
			break
		}
	}
	if bpp != 32 {
		conn.Close()
		return nil, fmt.Errorf("unsupported root depth %d (%d bpp)", screen.RootDepth, bpp)
	}

	logger.WithComponent("x11-capturer").Debug().
		Uint8("depth", screen.RootDepth).
		Uint16("width", screen.WidthInPixels).
		Uint16("height", screen.HeightInPixels).
		Msg("X11 capturer connected")

	return &X11Capturer{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		bpp:    bpp,
	}, nil
}

// Name returns the capturer name
func (c *X11Capturer) Name() string {
	return "x11"
}

// Close closes the X11 connection. A Snapshot waiting on a reply is woken
// by the closed connection, so Close never waits for it.
func (c *X11Capturer) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return nil
}

func (c *X11Capturer) connection() *xgb.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// ScreenBounds returns the root window rectangle
func (c *X11Capturer) ScreenBounds() image.Rectangle {
	return image.Rect(0, 0, int(c.screen.WidthInPixels), int(c.screen.HeightInPixels))
}

// Snapshot reads rect from the root window. The root window holds what is
// actually on screen, so overlapping windows appear in the snapshot.
func (c *X11Capturer) Snapshot(rect image.Rectangle) (*image.RGBA, error) {
	clip := rect.Intersect(c.ScreenBounds())
	if clip.Empty() {
		return nil, fmt.Errorf("%w: %v outside screen", ErrRegionEmpty, rect)
	}

	// xgb.Conn is safe for concurrent use; mu only guards the field
	conn := c.connection()
	if conn == nil {
		return nil, fmt.Errorf("x11 capturer closed")
	}

	reply, err := xproto.GetImage(
		conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(c.root),
		int16(clip.Min.X), int16(clip.Min.Y),
		uint16(clip.Dx()), uint16(clip.Dy()),
		0xffffffff,
	).Reply()
	if err != nil {
		var accessErr xproto.AccessError
		var matchErr xproto.MatchError
		if errors.As(err, &accessErr) || errors.As(err, &matchErr) {
			return nil, fmt.Errorf("%w: %v", ErrCaptureDenied, err)
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return convertBGRX(reply.Data, clip.Dx(), clip.Dy())
}

// convertBGRX converts 32bpp X11 ZPixmap data to RGBA
func convertBGRX(data []byte, width, height int) (*image.RGBA, error) {
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short image data: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := data[y*width*4 : (y+1)*width*4]
		dst := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width*4; x += 4 {
			dst[x] = src[x+2]
			dst[x+1] = src[x+1]
			dst[x+2] = src[x]
			dst[x+3] = 0xff
		}
	}
	return img, nil
}
