package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/TileShot/internal/logger"
)

// Manager renders an ordered set of widgets onto preview frames
type Manager struct {
	widgets []Widget
	mu      sync.RWMutex
}

// NewManager creates a new overlay manager
func NewManager() *Manager {
	return &Manager{}
}

// AddWidget appends a widget; later widgets draw on top
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}

	m.widgets = append(m.widgets, widget)
	logger.WithComponent("overlay").Debug().Str("id", widget.ID()).Str("type", widget.Type()).Msg("Added widget")
	return nil
}

// Render draws all enabled widgets in insertion order
func (m *Manager) Render(img *image.RGBA) error {
	m.mu.RLock()
	widgets := append([]Widget(nil), m.widgets...)
	m.mu.RUnlock()

	for _, widget := range widgets {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img); err != nil {
			logger.WithComponent("overlay").Warn().Err(err).Str("id", widget.ID()).Msg("Failed to render widget")
		}
	}
	return nil
}
