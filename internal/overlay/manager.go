package overlay

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/SplitScreen/internal/logger"
)

var (
	ErrWidgetExists   = errors.New("widget already exists")
	ErrWidgetNotFound = errors.New("widget not found")
)

// Manager handles overlay widgets and rendering. Widgets render in the
// order they were added.
type Manager struct {
	mu      sync.RWMutex
	widgets []Widget
	enabled bool
	status  StatusFunc
}

// NewManager creates a new overlay manager. status feeds "status" widgets
// and may be nil.
func NewManager(status StatusFunc) *Manager {
	return &Manager{
		enabled: true,
		status:  status,
	}
}

// AddWidget adds a widget to the overlay
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("%w: %s", ErrWidgetExists, widget.ID())
		}
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().Str("id", widget.ID()).Str("type", widget.Type()).Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget from the overlay
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.widgets {
		if w.ID() == id {
			m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
			logger.WithComponent("overlay").Debug().Str("id", id).Msg("Removed widget")
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrWidgetNotFound, id)
}

// Widget retrieves a widget by ID
func (m *Manager) Widget(id string) (Widget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.widgets {
		if w.ID() == id {
			return w, true
		}
	}
	return nil, false
}

// Widgets returns all widgets in render order
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Widget(nil), m.widgets...)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render renders all enabled widgets onto the provided image
func (m *Manager) Render(img *image.RGBA) {
	if !m.IsEnabled() {
		return
	}

	for _, widget := range m.Widgets() {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("id", widget.ID()).Msg("Failed to render widget")
		}
	}
}

// CreateWidget creates a new widget instance from configuration
func (m *Manager) CreateWidget(cfg WidgetConfig) (Widget, error) {
	var (
		widget Widget
		err    error
	)

	switch cfg.Type {
	case "text":
		widget, err = NewTextWidget(cfg)
	case "status":
		widget, err = NewStatusWidget(cfg, m.status)
	default:
		return nil, fmt.Errorf("unknown widget type: %s", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create %s widget: %w", cfg.Type, err)
	}
	return widget, nil
}

// LoadFromConfig creates and adds widgets; invalid entries are logged and
// skipped
func (m *Manager) LoadFromConfig(configs []WidgetConfig) {
	log := logger.WithComponent("overlay")

	for _, cfg := range configs {
		if cfg.ID == "" {
			log.Warn().Str("type", cfg.Type).Msg("Skipping widget with missing ID")
			continue
		}

		widget, err := m.CreateWidget(cfg)
		if err != nil {
			log.Warn().Err(err).Str("id", cfg.ID).Msg("Failed to create widget")
			continue
		}

		if err := m.AddWidget(widget); err != nil {
			log.Warn().Err(err).Str("id", cfg.ID).Msg("Failed to add widget")
		}
	}
}

// ExportConfig exports all widget configurations
func (m *Manager) ExportConfig() []WidgetConfig {
	widgets := m.Widgets()
	configs := make([]WidgetConfig, 0, len(widgets))
	for _, w := range widgets {
		configs = append(configs, w.Config())
	}
	return configs
}
