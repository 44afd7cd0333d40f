package compositor

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/SplitScreen/internal/frame"
	"github.com/bryanchriswhite/SplitScreen/internal/logger"
	"github.com/bryanchriswhite/SplitScreen/internal/overlay"
	"github.com/bryanchriswhite/SplitScreen/internal/slot"
)

// DefaultFailureThreshold is the number of consecutive failures after which
// a panel shows the unavailable indicator
const DefaultFailureThreshold = 3

var (
	placeholderColor = color.RGBA{R: 0xb4, G: 0xb4, B: 0xb4, A: 0xff}
	indicatorBG      = color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xff}
	indicatorFG      = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
)

// Options configures a Compositor
type Options struct {
	Layout Layout

	// Scaler is an interpolator name accepted by ParseScaler
	Scaler string

	// Thresholds overrides DefaultFailureThreshold per panel
	Thresholds map[PanelID]int

	// Describe turns a capture error into indicator text. Nil uses the
	// panel's Unavailable text.
	Describe func(error) string

	// Overlay widgets are drawn last; may be nil
	Overlay *overlay.Manager
}

type panelState struct {
	panel       Panel
	slot        *slot.Slot[frame.Frame]
	threshold   int
	placeholder string

	failures    int
	lastErr     error
	reason      string
	unavailable bool

	// scaled copy of the frame at cacheSeq
	cache    *image.RGBA
	cacheSeq uint64
}

// PanelStatus is a point-in-time view of one panel
type PanelStatus struct {
	ID          PanelID `json:"id"`
	HasFrame    bool    `json:"has_frame"`
	FrameSeq    uint64  `json:"frame_seq"`
	Failures    int     `json:"consecutive_failures"`
	Threshold   int     `json:"failure_threshold"`
	Indicator   bool    `json:"indicator"`
	Unavailable bool    `json:"unavailable"`
	Message     string  `json:"message,omitempty"`
}

// Compositor owns one slot per panel and renders them into a surface
type Compositor struct {
	layout   Layout
	scaler   draw.Interpolator
	describe func(error) string
	overlay  *overlay.Manager

	mu     sync.Mutex
	order  []PanelID
	panels map[PanelID]*panelState
}

// New creates a compositor for opts.Layout
func New(opts Options) (*Compositor, error) {
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	scaler, err := ParseScaler(opts.Scaler)
	if err != nil {
		return nil, err
	}

	c := &Compositor{
		layout:   opts.Layout,
		scaler:   scaler,
		describe: opts.Describe,
		overlay:  opts.Overlay,
		panels:   make(map[PanelID]*panelState, len(opts.Layout.Panels)),
	}
	for _, p := range opts.Layout.Panels {
		threshold := opts.Thresholds[p.ID]
		if threshold <= 0 {
			threshold = DefaultFailureThreshold
		}
		c.order = append(c.order, p.ID)
		c.panels[p.ID] = &panelState{
			panel:       p,
			slot:        &slot.Slot[frame.Frame]{},
			threshold:   threshold,
			placeholder: p.Placeholder,
		}
	}
	return c, nil
}

// Layout returns the layout the compositor renders
func (c *Compositor) Layout() Layout {
	return c.layout
}

// Slot returns the frame slot feeding panel id, or nil for unknown panels
func (c *Compositor) Slot(id PanelID) *slot.Slot[frame.Frame] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps, ok := c.panels[id]; ok {
		return ps.slot
	}
	return nil
}

func (c *Compositor) state(id PanelID) (*panelState, error) {
	ps, ok := c.panels[id]
	if !ok {
		return nil, fmt.Errorf("unknown panel %q", id)
	}
	return ps, nil
}

// SetPlaceholder changes the text drawn while panel id has no frame
func (c *Compositor) SetPlaceholder(id PanelID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, err := c.state(id)
	if err != nil {
		return err
	}
	ps.placeholder = text
	return nil
}

// Placeholder returns the text drawn while panel id has no frame
func (c *Compositor) Placeholder(id PanelID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps, ok := c.panels[id]; ok {
		return ps.placeholder
	}
	return ""
}

// ReportSuccess clears the failure count of panel id. It reports whether
// the panel was showing the indicator.
func (c *Compositor) ReportSuccess(id PanelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, err := c.state(id)
	if err != nil {
		return false
	}
	wasShowing := ps.failures >= ps.threshold
	ps.failures = 0
	ps.lastErr = nil
	ps.reason = ""
	return wasShowing
}

// ReportFailure counts one failed capture for panel id. The slot keeps its
// previous frame. It reports whether this failure crossed the threshold.
func (c *Compositor) ReportFailure(id PanelID, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, e := c.state(id)
	if e != nil {
		return false
	}
	ps.failures++
	ps.lastErr = err
	ps.reason = ps.panel.Unavailable
	if c.describe != nil && err != nil {
		ps.reason = c.describe(err)
	}

	crossed := ps.failures == ps.threshold
	if crossed {
		logger.WithComponent("compositor").Warn().
			Err(err).
			Str("panel", string(id)).
			Int("failures", ps.failures).
			Msg("Panel crossed failure threshold")
	}
	return crossed
}

// MarkUnavailable pins panel id to the unavailable state until ResetPanel
func (c *Compositor) MarkUnavailable(id PanelID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, err := c.state(id)
	if err != nil {
		return
	}
	if reason == "" {
		reason = ps.panel.Unavailable
	}
	ps.unavailable = true
	ps.reason = reason
}

// ResetPanel clears the frame, failures and unavailable state of panel id
func (c *Compositor) ResetPanel(id PanelID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, err := c.state(id)
	if err != nil {
		return
	}
	ps.slot.Clear()
	ps.failures = 0
	ps.lastErr = nil
	ps.reason = ""
	ps.unavailable = false
	ps.cache = nil
	ps.cacheSeq = 0
}

// Status returns the state of every panel in layout order
func (c *Compositor) Status() []PanelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PanelStatus, 0, len(c.order))
	for _, id := range c.order {
		ps := c.panels[id]
		f, seq := ps.slot.Snapshot()
		st := PanelStatus{
			ID:          id,
			HasFrame:    f != nil,
			FrameSeq:    seq,
			Failures:    ps.failures,
			Threshold:   ps.threshold,
			Indicator:   ps.indicator(),
			Unavailable: ps.unavailable,
		}
		if st.Indicator {
			st.Message = ps.reason
		}
		out = append(out, st)
	}
	return out
}

func (ps *panelState) indicator() bool {
	return ps.unavailable || ps.failures >= ps.threshold
}

// Render draws every panel into a new surface. The surface is never
// modified after it is returned.
func (c *Compositor) Render() *image.RGBA {
	c.mu.Lock()
	views := make([]panelView, 0, len(c.order))
	for _, id := range c.order {
		views = append(views, c.panels[id].view())
	}
	c.mu.Unlock()

	// scaling happens unlocked so failure reports never wait on a render
	surface := image.NewRGBA(c.layout.Bounds())
	draw.Draw(surface, surface.Bounds(), image.NewUniform(c.layout.Background), image.Point{}, draw.Src)
	for i := range views {
		c.renderPanel(surface, &views[i])
	}

	if c.overlay != nil {
		c.overlay.Render(surface)
	}
	return surface
}

// panelView is a panel's render input, copied out under c.mu
type panelView struct {
	ps        *panelState
	bounds    image.Rectangle
	frame     *frame.Frame
	seq       uint64
	cache     *image.RGBA
	text      string
	indicator bool
	reason    string
}

// view copies what Render needs; c.mu must be held
func (ps *panelState) view() panelView {
	v := panelView{
		ps:        ps,
		bounds:    ps.panel.Bounds,
		text:      ps.placeholder,
		indicator: ps.indicator(),
		reason:    ps.reason,
	}
	v.frame, v.seq = ps.slot.Snapshot()
	if v.indicator && ps.reason != "" {
		v.text = ps.reason
	}
	if ps.cache != nil && ps.cacheSeq == v.seq {
		v.cache = ps.cache
	}
	return v
}

func (c *Compositor) renderPanel(surface *image.RGBA, v *panelView) {
	if v.frame == nil {
		overlay.DrawCenteredText(surface, v.bounds, v.text, placeholderColor)
		return
	}

	dst := Fit(v.frame.Size(), v.bounds)
	if v.cache == nil {
		scaled := image.NewRGBA(image.Rect(0, 0, dst.Dx(), dst.Dy()))
		src := v.frame.RGBA()
		c.scaler.Scale(scaled, scaled.Bounds(), src, src.Bounds(), draw.Src, nil)
		v.cache = scaled
		c.storeCache(v.ps, scaled, v.seq)
	}
	draw.Draw(surface, dst, v.cache, image.Point{}, draw.Src)

	if v.indicator {
		overlay.DrawBand(surface, v.bounds, v.reason, indicatorBG, indicatorFG, 0.7)
	}
}

// storeCache keeps scaled for reuse unless the slot moved on meanwhile
func (c *Compositor) storeCache(ps *panelState, scaled *image.RGBA, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ps.slot.Seq() != seq {
		return
	}
	ps.cache = scaled
	ps.cacheSeq = seq
}
