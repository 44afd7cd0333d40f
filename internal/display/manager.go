// Package display shows the composed surface in an X11 window.
package display

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

// Options configures the composed-view window
type Options struct {
	// Display is the X display name; empty uses $DISPLAY
	Display string
	Width   int
	Height  int
	Title   string
}

// Manager owns the composed-view window. It implements output.Output.
type Manager struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	window xproto.Window
	gc     xproto.Gcontext
	width  int
	height int
	title  string

	bitsPerPixel uint8
	scanlinePad  uint8
	maxRequest   int

	deleteAtom xproto.Atom

	mu        sync.RWMutex
	running   bool
	closed    chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}
	stopOnce  sync.Once
}

// NewManager connects to the X server
func NewManager(opts Options) (*Manager, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid display size %dx%d", opts.Width, opts.Height)
	}

	conn, err := xgb.NewConnDisplay(opts.Display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	m := &Manager{
		conn:     conn,
		screen:   screen,
		width:    opts.Width,
		height:   opts.Height,
		title:    opts.Title,
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
		// MaximumRequestLength counts 4-byte units
		maxRequest: int(setup.MaximumRequestLength) * 4,
	}
	if m.title == "" {
		m.title = "SplitScreen"
	}

	for _, format := range setup.PixmapFormats {
		if format.Depth == screen.RootDepth {
			m.bitsPerPixel = format.BitsPerPixel
			m.scanlinePad = format.ScanlinePad
			break
		}
	}
	if m.bitsPerPixel == 0 {
		conn.Close()
		return nil, fmt.Errorf("no pixmap format for depth %d", screen.RootDepth)
	}

	return m, nil
}

// Start creates and shows the composed-view window
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("display already running")
	}

	windowID, err := xproto.NewWindowId(m.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	m.window = windowID

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}

	err = xproto.CreateWindowChecked(
		m.conn,
		m.screen.RootDepth,
		m.window,
		m.screen.Root,
		0, 0,
		uint16(m.width), uint16(m.height),
		0,
		xproto.WindowClassInputOutput,
		m.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	if err := m.setWindowTitle(m.title); err != nil {
		logger.WithComponent("display").Warn().
			Err(err).
			Msg("Failed to set window title")
	}
	if err := m.setWindowClass("splitscreen", "SplitScreen"); err != nil {
		logger.WithComponent("display").Warn().
			Err(err).
			Msg("Failed to set window class")
	}
	if err := m.setDeleteProtocol(); err != nil {
		logger.WithComponent("display").Warn().
			Err(err).
			Msg("Failed to register WM_DELETE_WINDOW, closing the window will kill the connection")
	}

	if err := xproto.MapWindowChecked(m.conn, m.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(m.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	m.gc = gc
	if err := xproto.CreateGCChecked(m.conn, m.gc, xproto.Drawable(m.window), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	m.conn.Sync()

	m.running = true
	go m.eventLoop()

	logger.WithComponent("display").Info().
		Int("width", m.width).
		Int("height", m.height).
		Uint32("window_id", uint32(m.window)).
		Msg("Composed view window created")
	return nil
}

// eventLoop watches for the window being closed by the user
func (m *Manager) eventLoop() {
	defer close(m.loopDone)
	log := logger.WithComponent("display")

	for {
		ev, err := m.conn.WaitForEvent()
		if ev == nil && err == nil {
			// connection closed
			m.markClosed()
			return
		}
		if err != nil {
			log.Debug().Err(err).Msg("X error on display connection")
			continue
		}

		switch e := ev.(type) {
		case xproto.ClientMessageEvent:
			if e.Window == m.window && e.Format == 32 && xproto.Atom(e.Data.Data32[0]) == m.deleteAtom {
				log.Info().Msg("Composed view closed by user")
				m.markClosed()
			}
		case xproto.DestroyNotifyEvent:
			if e.Window == m.window {
				log.Info().Msg("Composed view window destroyed")
				m.markClosed()
			}
		}
	}
}

func (m *Manager) markClosed() {
	m.closeOnce.Do(func() { close(m.closed) })
}

// Closed is closed once the user closes the window or the X connection
// goes away
func (m *Manager) Closed() <-chan struct{} {
	return m.closed
}

// Stop closes the window and the X connection
func (m *Manager) Stop() error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		started := m.running
		m.running = false
		if started {
			if m.gc != 0 {
				xproto.FreeGC(m.conn, m.gc)
			}
			if m.window != 0 {
				xproto.DestroyWindow(m.conn, m.window)
				m.conn.Sync()
			}
		}
		m.mu.Unlock()

		m.conn.Close()
		if started {
			<-m.loopDone
			logger.WithComponent("display").Info().Msg("Composed view window closed")
		}
		m.markClosed()
	})
	return nil
}

// IsRunning returns whether the window is shown
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Name implements output.Output
func (m *Manager) Name() string {
	return "x11-window"
}

// WindowID returns the composed-view window ID
func (m *Manager) WindowID() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(m.window)
}

// Title returns the window title, used to keep the view out of the
// window list
func (m *Manager) Title() string {
	return m.title
}

// WriteFrame puts the composed surface into the window
func (m *Manager) WriteFrame(img *image.RGBA) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running {
		return fmt.Errorf("display not running")
	}

	bounds := img.Bounds()
	if bounds.Dx() != m.width || bounds.Dy() != m.height {
		return fmt.Errorf("image size mismatch: got %dx%d, expected %dx%d",
			bounds.Dx(), bounds.Dy(), m.width, m.height)
	}

	data, stride, err := encodeZPixmap(img, m.bitsPerPixel, m.scanlinePad, m.screen.RootDepth)
	if err != nil {
		return err
	}

	// split into strips that fit one request (24 byte PutImage header)
	rows := (m.maxRequest - 24) / stride
	if rows < 1 {
		return fmt.Errorf("scanline of %d bytes exceeds the maximum request size", stride)
	}
	for y := 0; y < m.height; y += rows {
		n := rows
		if y+n > m.height {
			n = m.height - y
		}
		err := xproto.PutImageChecked(
			m.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(m.window),
			m.gc,
			uint16(m.width), uint16(n),
			0, int16(y),
			0,
			m.screen.RootDepth,
			data[y*stride:(y+n)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image: %w", err)
		}
	}
	return nil
}

// encodeZPixmap converts RGBA to the server's BGRx/BGR ZPixmap layout with
// padded scanlines
func encodeZPixmap(img *image.RGBA, bitsPerPixel, scanlinePad, depth uint8) ([]byte, int, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	bytesPerPixel := int(bitsPerPixel) / 8
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return nil, 0, fmt.Errorf("unsupported bytes per pixel: %d", bytesPerPixel)
	}
	padBytes := int(scanlinePad) / 8
	if padBytes < 1 {
		padBytes = 1
	}
	unpadded := w * bytesPerPixel
	stride := ((unpadded + padBytes - 1) / padBytes) * padBytes

	data := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
		dst := data[y*stride:]
		for x := 0; x < w; x++ {
			s := src[x*4 : x*4+4]
			d := dst[x*bytesPerPixel:]
			d[0], d[1], d[2] = s[2], s[1], s[0]
			if bytesPerPixel == 4 && depth == 32 {
				d[3] = s[3]
			}
		}
	}
	return data, stride, nil
}

func (m *Manager) setWindowTitle(title string) error {
	titleAtom, err := m.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := m.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	if err := xproto.ChangePropertyChecked(m.conn, xproto.PropModeReplace, m.window,
		titleAtom, utf8Atom, 8, uint32(len(title)), []byte(title)).Check(); err != nil {
		return err
	}
	// WM_NAME for window managers and clients without EWMH
	return xproto.ChangePropertyChecked(m.conn, xproto.PropModeReplace, m.window,
		xproto.AtomWmName, xproto.AtomString, 8, uint32(len(title)), []byte(title)).Check()
}

// setWindowClass sets WM_CLASS as instance\0class\0
func (m *Manager) setWindowClass(instance, class string) error {
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(m.conn, xproto.PropModeReplace, m.window,
		xproto.AtomWmClass, xproto.AtomString, 8, uint32(len(classStr)), []byte(classStr)).Check()
}

// setDeleteProtocol asks the window manager for a ClientMessage instead of
// killing the connection when the window is closed
func (m *Manager) setDeleteProtocol() error {
	protocols, err := m.getAtom("WM_PROTOCOLS")
	if err != nil {
		return err
	}
	m.deleteAtom, err = m.getAtom("WM_DELETE_WINDOW")
	if err != nil {
		return err
	}

	data := make([]byte, 4)
	xgb.Put32(data, uint32(m.deleteAtom))
	return xproto.ChangePropertyChecked(m.conn, xproto.PropModeReplace, m.window,
		protocols, xproto.AtomAtom, 32, 1, data).Check()
}

func (m *Manager) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(m.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}
