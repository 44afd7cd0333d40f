package window

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

// X11Backend implements the Backend interface using X11
type X11Backend struct {
	display string

	mu     sync.RWMutex
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo

	atomMu sync.Mutex
	atoms  map[string]xproto.Atom
}

// NewX11Backend creates a backend for the given X display. An empty display
// uses $DISPLAY. The connection is made by Connect.
func NewX11Backend(display string) *X11Backend {
	return &X11Backend{
		display: display,
		atoms:   make(map[string]xproto.Atom),
	}
}

// Connect establishes the connection to the X server
func (b *X11Backend) Connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return nil
	}

	conn, err := xgb.NewConnDisplay(b.display)
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	b.conn = conn
	b.screen = screen
	b.root = screen.Root
	return nil
}

// Close closes the X11 connection
func (b *X11Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}

	b.atomMu.Lock()
	b.atoms = make(map[string]xproto.Atom)
	b.atomMu.Unlock()
	return nil
}

// Name returns the backend name
func (b *X11Backend) Name() string {
	return "x11"
}

func (b *X11Backend) connection() (*xgb.Conn, xproto.Window, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.conn == nil {
		return nil, 0, fmt.Errorf("x11 backend not connected")
	}
	return b.conn, b.root, nil
}

// ListWindows returns all viewable windows using EWMH _NET_CLIENT_LIST with
// QueryTree fallback
func (b *X11Backend) ListWindows() ([]Handle, error) {
	log := logger.WithComponent("x11-backend")

	conn, root, err := b.connection()
	if err != nil {
		return nil, err
	}

	ids, err := b.clientList(conn, root)
	if err != nil || len(ids) == 0 {
		if err != nil {
			log.Debug().Err(err).Msg("ListWindows: EWMH failed, falling back to QueryTree")
		} else {
			log.Debug().Msg("ListWindows: EWMH returned empty, falling back to QueryTree")
		}

		tree, err := xproto.QueryTree(conn, root).Reply()
		if err != nil {
			return nil, fmt.Errorf("query tree: %w", err)
		}
		ids = tree.Children
	}

	windows := make([]Handle, 0, len(ids))
	skipped := 0
	for _, id := range ids {
		if !b.viewable(conn, id) {
			skipped++
			continue
		}
		windows = append(windows, b.handle(conn, id))
	}

	log.Debug().
		Int("found", len(windows)).
		Int("skippedNotViewable", skipped).
		Msg("ListWindows: summary")

	return windows, nil
}

// clientList reads _NET_CLIENT_LIST from the root window
func (b *X11Backend) clientList(conn *xgb.Conn, root xproto.Window) ([]xproto.Window, error) {
	atom, err := b.atom(conn, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST atom: %w", err)
	}

	reply, err := xproto.GetProperty(conn, false, root, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST property: %w", err)
	}

	ids := make([]xproto.Window, 0, len(reply.Value)/4)
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		ids = append(ids, xproto.Window(le32(reply.Value[i:])))
	}
	return ids, nil
}

func (b *X11Backend) viewable(conn *xgb.Conn, win xproto.Window) bool {
	attrs, err := xproto.GetWindowAttributes(conn, win).Reply()
	if err != nil {
		return false
	}
	return attrs.Class == xproto.WindowClassInputOutput && attrs.MapState == xproto.MapStateViewable
}

// handle reads title, class and pid of a window. Missing properties are left
// empty; the registry decides what to filter.
func (b *X11Backend) handle(conn *xgb.Conn, win xproto.Window) Handle {
	h := Handle{ID: uint32(win)}

	if atom, err := b.atom(conn, "_NET_WM_NAME"); err == nil {
		if title, err := b.property(conn, win, atom); err == nil {
			h.Title = title
		}
	}
	if h.Title == "" {
		if title, err := b.property(conn, win, xproto.AtomWmName); err == nil {
			h.Title = title
		}
	}

	// WM_CLASS is instance\0class\0
	if raw, err := b.property(conn, win, xproto.AtomWmClass); err == nil {
		parts := strings.Split(raw, "\x00")
		if len(parts) >= 2 && parts[1] != "" {
			h.Class = parts[1]
		} else if parts[0] != "" {
			h.Class = parts[0]
		}
	}

	if atom, err := b.atom(conn, "_NET_WM_PID"); err == nil {
		reply, err := xproto.GetProperty(conn, false, win, atom, xproto.AtomCardinal, 0, 1).Reply()
		if err == nil && len(reply.Value) >= 4 {
			h.PID = int(le32(reply.Value))
		}
	}

	return h
}

// Geometry returns the live rectangle of the window in root coordinates.
// Unmapped (minimized) windows report a zero size.
func (b *X11Backend) Geometry(id uint32) (Geometry, error) {
	conn, root, err := b.connection()
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	win := xproto.Window(id)

	attrs, err := xproto.GetWindowAttributes(conn, win).Reply()
	if err != nil {
		return Geometry{}, mapXError(id, err)
	}
	if attrs.MapState != xproto.MapStateViewable {
		return Geometry{}, nil
	}

	geom, err := xproto.GetGeometry(conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return Geometry{}, mapXError(id, err)
	}

	pos, err := xproto.TranslateCoordinates(conn, win, root, 0, 0).Reply()
	if err != nil {
		return Geometry{}, mapXError(id, err)
	}

	return Geometry{
		X:      int(pos.DstX),
		Y:      int(pos.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, nil
}

// mapXError turns X protocol errors for a vanished window into ErrWindowNotFound
func mapXError(id uint32, err error) error {
	var winErr xproto.WindowError
	var drawErr xproto.DrawableError
	if errors.As(err, &winErr) || errors.As(err, &drawErr) {
		return fmt.Errorf("%w: 0x%x", ErrWindowNotFound, id)
	}
	return fmt.Errorf("window 0x%x: %w", id, err)
}

// atom interns name once per connection
func (b *X11Backend) atom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	b.atomMu.Lock()
	defer b.atomMu.Unlock()

	if a, ok := b.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	b.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// property gets a property value as a string
func (b *X11Backend) property(conn *xgb.Conn, win xproto.Window, atom xproto.Atom) (string, error) {
	reply, err := xproto.GetProperty(conn, false, win, atom,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return "", err
	}
	if reply.ValueLen == 0 {
		return "", fmt.Errorf("empty property")
	}
	return strings.TrimRight(string(reply.Value), "\x00"), nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
