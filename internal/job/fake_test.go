package job

import (
	"context"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/bryanchriswhite/TileShot/internal/browser"
	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/bryanchriswhite/TileShot/internal/history"
	"github.com/bryanchriswhite/TileShot/internal/notify"
)

// docColor encodes a physical document pixel position into a color
func docColor(x, y int) color.RGBA {
	return color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x>>8) | uint8(y>>8)<<4, A: 255}
}

// fakePage renders a synthetic document and clamps scrolling at its edges
type fakePage struct {
	url      string
	doc      geometry.Size
	viewport geometry.Size
	dpr      float64
	scroll   geometry.Point
	elements map[string]geometry.Rect

	captures   int
	capturedAt []time.Time
	borders    int
	closed     bool
}

func newFakePage(doc, viewport geometry.Size, dpr float64) *fakePage {
	return &fakePage{url: "https://example.test/", doc: doc, viewport: viewport, dpr: dpr, elements: map[string]geometry.Rect{}}
}

func (p *fakePage) Name() string { return "fake" }

func (p *fakePage) Capture(ctx context.Context) (*capture.Frame, error) {
	p.captures++
	p.capturedAt = append(p.capturedAt, time.Now())
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
	return capture.NewFrame(img, nil), nil
}

func (p *fakePage) ScrollTo(ctx context.Context, to geometry.Point) (capture.ScrollOutcome, error) {
	maxX := math.Max(0, p.doc.Width-p.viewport.Width)
	maxY := math.Max(0, p.doc.Height-p.viewport.Height)
	p.scroll = geometry.Point{
		X: math.Min(math.Max(to.X, 0), maxX),
		Y: math.Min(math.Max(to.Y, 0), maxY),
	}
	return capture.ScrollOutcome{Requested: to, Actual: p.scroll}, nil
}

func (p *fakePage) HideScrollbars(ctx context.Context) (capture.ScrollbarState, error) {
	return capture.ScrollbarState{Hidden: true}, nil
}

func (p *fakePage) ShowScrollbars(ctx context.Context, state capture.ScrollbarState) error {
	return nil
}

func (p *fakePage) ShowBorder(ctx context.Context, region geometry.Rect) (capture.BorderState, error) {
	p.borders++
	return capture.BorderState{Shown: true, ID: "b"}, nil
}

func (p *fakePage) HideBorder(ctx context.Context, state capture.BorderState) error {
	return nil
}

func (p *fakePage) Layout(ctx context.Context) (browser.Layout, error) {
	return browser.Layout{Viewport: p.viewport, Document: p.doc, Scroll: p.scroll, DPR: p.dpr}, nil
}

func (p *fakePage) Element(ctx context.Context, selector string) (geometry.Rect, error) {
	r, ok := p.elements[selector]
	if !ok {
		return geometry.Rect{}, failure.New(failure.InvalidRegion, "no element matches %q", selector)
	}
	return r, nil
}

func (p *fakePage) ScreenRect(ctx context.Context) (image.Rectangle, error) {
	return image.Rect(0, 0, int(p.viewport.Width*p.dpr), int(p.viewport.Height*p.dpr)), nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

type memRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (m *memRecorder) Record(ctx context.Context, e history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

type memNotifier struct {
	sent []notify.Notification
}

func (m *memNotifier) Notify(ctx context.Context, n notify.Notification) error {
	m.sent = append(m.sent, n)
	return nil
}

func (m *memNotifier) Close() error { return nil }

// stuckNotifier never shows anything and only returns once ctx is done
type stuckNotifier struct{}

func (stuckNotifier) Notify(ctx context.Context, n notify.Notification) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stuckNotifier) Close() error { return nil }

// stuckRecorder blocks the same way
type stuckRecorder struct{}

func (stuckRecorder) Record(ctx context.Context, e history.Entry) error {
	<-ctx.Done()
	return ctx.Err()
}

// surfacePixel reads a pixel of a decoded image as RGBA
func surfacePixel(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}
