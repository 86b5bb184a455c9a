package stitch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
)

// docColor encodes a physical document pixel position into a unique color
func docColor(x, y int) color.RGBA {
	return color.RGBA{
		R: uint8(x),
		G: uint8(y),
		B: uint8(x>>8) | uint8(y>>8)<<4,
		A: 255,
	}
}

// page is a synthetic document with a clamping scroll position. It serves as
// both the scroll driver and the frame source of a test engine.
type page struct {
	doc      geometry.Size
	viewport geometry.Size
	dpr      float64
	scroll   geometry.Point

	scrolls  []geometry.Point
	captures int
	released int

	hidden   bool
	hides    int
	shows    int
	borders  int
	unborder int

	scrollErr  error
	captureErr error
	failAt     int // capture call that fails, 1-based; 0 = never
}

func newPage(doc, viewport geometry.Size, dpr float64) *page {
	return &page{doc: doc, viewport: viewport, dpr: dpr}
}

func (p *page) ScrollTo(ctx context.Context, to geometry.Point) (capture.ScrollOutcome, error) {
	if p.scrollErr != nil {
		return capture.ScrollOutcome{}, p.scrollErr
	}
	p.scrolls = append(p.scrolls, to)
	maxX := math.Max(0, p.doc.Width-p.viewport.Width)
	maxY := math.Max(0, p.doc.Height-p.viewport.Height)
	p.scroll = geometry.Point{
		X: math.Min(math.Max(to.X, 0), maxX),
		Y: math.Min(math.Max(to.Y, 0), maxY),
	}
	return capture.ScrollOutcome{Requested: to, Actual: p.scroll}, nil
}

func (p *page) HideScrollbars(ctx context.Context) (capture.ScrollbarState, error) {
	p.hides++
	if p.hidden {
		return capture.ScrollbarState{}, nil
	}
	p.hidden = true
	return capture.ScrollbarState{Hidden: true, Previous: "auto"}, nil
}

func (p *page) ShowScrollbars(ctx context.Context, state capture.ScrollbarState) error {
	if !state.Hidden {
		return nil
	}
	p.shows++
	p.hidden = false
	return nil
}

func (p *page) ShowBorder(ctx context.Context, region geometry.Rect) (capture.BorderState, error) {
	p.borders++
	return capture.BorderState{Shown: true, ID: "border"}, nil
}

func (p *page) HideBorder(ctx context.Context, state capture.BorderState) error {
	if !state.Shown {
		return nil
	}
	p.unborder++
	return nil
}

func (p *page) Name() string { return "fake" }

// Capture renders the visible viewport at physical resolution
func (p *page) Capture(ctx context.Context) (*capture.Frame, error) {
	p.captures++
	if p.captureErr != nil && (p.failAt == 0 || p.failAt == p.captures) {
		return nil, p.captureErr
	}
	w := int(math.Ceil(p.viewport.Width * p.dpr))
	h := int(math.Ceil(p.viewport.Height * p.dpr))
	ox := int(math.Floor(p.scroll.X * p.dpr))
	oy := int(math.Floor(p.scroll.Y * p.dpr))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, docColor(ox+x, oy+y))
		}
	}
	return capture.NewFrame(img, func() { p.released++ }), nil
}

func (p *page) request(region geometry.Rect, mode Mode) Request {
	return Request{
		Region:   region,
		Scroll:   p.scroll,
		Viewport: p.viewport,
		Document: p.doc,
		DPR:      p.dpr,
		Mode:     mode,
	}
}

func newTestEngine(p *page, opts ...Option) *Engine {
	opts = append(opts, WithDebugOverlay(p))
	e := New(p, p, opts...)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

var errBoom = errors.New("boom")
