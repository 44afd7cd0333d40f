package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"
)

// TextWidget displays text on the overlay
type TextWidget struct {
	*BaseWidget

	mu        sync.RWMutex
	text      string
	textColor color.RGBA
	bgColor   *color.RGBA // Optional background color
	padding   int
}

// NewTextWidget creates a new text widget
func NewTextWidget(cfg WidgetConfig) (*TextWidget, error) {
	w := &TextWidget{
		BaseWidget: NewBaseWidget(cfg.ID, cfg.X, cfg.Y, opacityOrDefault(cfg.Opacity)),
		text:       cfg.Text,
		textColor:  color.RGBA{255, 255, 255, 255},
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
		w.bgColor = &c
	}
	if w.padding <= 0 {
		w.padding = 5
	}

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func opacityOrDefault(o float64) float64 {
	if o <= 0 {
		return 1
	}
	return o
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA) error {
	w.mu.RLock()
	text, fg, bg, padding := w.text, w.textColor, w.bgColor, w.padding
	w.mu.RUnlock()

	return renderLabel(img, w.BaseWidget, text, fg, bg, padding)
}

// renderLabel draws text with an optional background box at the widget's
// position
func renderLabel(img *image.RGBA, base *BaseWidget, text string, fg color.RGBA, bg *color.RGBA, padding int) error {
	if !base.IsEnabled() || text == "" {
		return nil
	}
	x, y := base.Position()
	opacity := base.Opacity()

	size := MeasureText(text)
	box := image.Rect(0, 0, size.X+padding*2, size.Y+padding*2)

	label := image.NewRGBA(box)
	if bg != nil {
		DrawRectangle(label, box, *bg, 1)
	}
	DrawText(label, text, padding, padding, fg)

	BlendImage(img, label, x, y, opacity)
	return nil
}

// Config returns the widget configuration
func (w *TextWidget) Config() WidgetConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()

	x, y := w.Position()
	cfg := WidgetConfig{
		ID:      w.ID(),
		Type:    w.Type(),
		Enabled: w.IsEnabled(),
		X:       x,
		Y:       y,
		Opacity: w.Opacity(),
		Text:    w.text,
		Color:   FormatColor(w.textColor),
		Padding: w.padding,
	}
	if w.bgColor != nil {
		cfg.Background = FormatColor(*w.bgColor)
	}
	return cfg
}

// SetText updates the text content
func (w *TextWidget) SetText(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.text = text
}

// Text returns the current text
func (w *TextWidget) Text() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.text
}

// Validate ensures the widget configuration is valid
func (w *TextWidget) Validate() error {
	if w.Text() == "" {
		return fmt.Errorf("text widget requires non-empty text")
	}
	return nil
}
