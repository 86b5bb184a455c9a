package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"
)

// Colors used on preview frames
var (
	doneColor    = color.RGBA{0, 200, 120, 255}
	currentColor = color.RGBA{255, 45, 85, 255}
	skippedColor = color.RGBA{255, 170, 0, 255}
	labelBg      = color.RGBA{0, 0, 0, 200}
)

// TileMark is one tile's destination on the output surface
type TileMark struct {
	Col     int
	Row     int
	Rect    image.Rectangle
	Skipped bool
}

// TileGridWidget outlines the tiles composited so far and labels each with
// its column and row. Rects are in surface pixels and scaled to the preview.
type TileGridWidget struct {
	*BaseWidget
	mu    sync.Mutex
	marks []TileMark
	scale float64
}

// NewTileGridWidget creates an empty grid annotation
func NewTileGridWidget(id string) *TileGridWidget {
	return &TileGridWidget{BaseWidget: NewBaseWidget(id, 0, 0, 1.0), scale: 1}
}

// Type returns the widget type
func (w *TileGridWidget) Type() string {
	return "tile-grid"
}

// Reset forgets all marks, e.g. at the start of a job
func (w *TileGridWidget) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marks = nil
	w.scale = 1
}

// SetScale sets the preview-to-surface ratio
func (w *TileGridWidget) SetScale(scale float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if scale > 0 {
		w.scale = scale
	}
}

// Mark records a tile. The most recent mark is highlighted as current.
func (w *TileGridWidget) Mark(m TileMark) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.marks = append(w.marks, m)
}

// Marks returns a copy of the recorded marks
func (w *TileGridWidget) Marks() []TileMark {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]TileMark(nil), w.marks...)
}

func (w *TileGridWidget) scaled(r image.Rectangle) image.Rectangle {
	s := w.scale
	return image.Rect(
		int(float64(r.Min.X)*s), int(float64(r.Min.Y)*s),
		int(float64(r.Max.X)*s), int(float64(r.Max.Y)*s),
	)
}

// Render draws all marks
func (w *TileGridWidget) Render(img *image.RGBA) error {
	if !w.IsEnabled() {
		return nil
	}

	w.mu.Lock()
	marks := append([]TileMark(nil), w.marks...)
	w.mu.Unlock()

	for i, m := range marks {
		c := doneColor
		switch {
		case m.Skipped:
			c = skippedColor
		case i == len(marks)-1:
			c = currentColor
		}
		r := w.scaled(m.Rect)
		if r.Empty() {
			continue
		}
		DrawOutline(img, r, c, 2)
		drawLabel(img, fmt.Sprintf("%d,%d", m.Col, m.Row), r.Min.X+4, r.Min.Y+4, c, labelBg)
	}
	return nil
}
