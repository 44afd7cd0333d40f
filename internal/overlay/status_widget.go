package overlay

import (
	"image"
	"image/color"
)

// StatusFunc supplies the current status line
type StatusFunc func() string

// StatusWidget shows a live status line taken from a StatusFunc on every
// render
type StatusWidget struct {
	*BaseWidget
	source    StatusFunc
	textColor color.RGBA
	bgColor   color.RGBA
	padding   int
}

// NewStatusWidget creates a status widget reading from source
func NewStatusWidget(cfg WidgetConfig, source StatusFunc) (*StatusWidget, error) {
	w := &StatusWidget{
		BaseWidget: NewBaseWidget(cfg.ID, cfg.X, cfg.Y, opacityOrDefault(cfg.Opacity)),
		source:     source,
		textColor:  color.RGBA{230, 230, 230, 255},
		bgColor:    color.RGBA{0, 0, 0, 160},
		padding:    cfg.Padding,
	}
	w.SetEnabled(cfg.Enabled)

	if cfg.Color != "" {
		c, err := ParseColor(cfg.Color)
		if err != nil {
			return nil, err
		}
		w.textColor = c
	}
	if cfg.Background != "" {
		c, err := ParseColor(cfg.Background)
		if err != nil {
			return nil, err
		}
		w.bgColor = c
	}
	if w.padding <= 0 {
		w.padding = 4
	}
	return w, nil
}

// Type returns the widget type
func (w *StatusWidget) Type() string {
	return "status"
}

// Render draws the current status text
func (w *StatusWidget) Render(img *image.RGBA) error {
	if w.source == nil {
		return nil
	}
	bg := w.bgColor
	return renderLabel(img, w.BaseWidget, w.source(), w.textColor, &bg, w.padding)
}

// Config returns the widget configuration
func (w *StatusWidget) Config() WidgetConfig {
	x, y := w.Position()
	return WidgetConfig{
		ID:         w.ID(),
		Type:       w.Type(),
		Enabled:    w.IsEnabled(),
		X:          x,
		Y:          y,
		Opacity:    w.Opacity(),
		Color:      FormatColor(w.textColor),
		Background: FormatColor(w.bgColor),
		Padding:    w.padding,
	}
}
