package browser

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/bryanchriswhite/TileShot/internal/failure"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
)

// Layout is a snapshot of the page geometry a job descriptor is built from
type Layout struct {
	Viewport geometry.Size  `json:"viewport"`
	Document geometry.Size  `json:"document"`
	Scroll   geometry.Point `json:"scroll"`
	DPR      float64        `json:"dpr"`
}

// ViewportRegion is the currently visible area, page-absolute
func (l Layout) ViewportRegion() geometry.Rect {
	return geometry.RectAt(l.Scroll, l.Viewport)
}

// DocumentRegion is the whole scrollable document
func (l Layout) DocumentRegion() geometry.Rect {
	return geometry.RectAt(geometry.Point{}, l.Document)
}

const layoutJS = `() => {
	const root = document.documentElement;
	const body = document.body || root;
	return JSON.stringify({
		viewport: {width: root.clientWidth || window.innerWidth, height: root.clientHeight || window.innerHeight},
		document: {
			width: Math.max(root.scrollWidth, body.scrollWidth, root.clientWidth),
			height: Math.max(root.scrollHeight, body.scrollHeight, root.clientHeight),
		},
		scroll: {x: window.scrollX, y: window.scrollY},
		dpr: window.devicePixelRatio || 1,
	});
}`

// elementJS returns the element's page-absolute rect. An element that fits
// the viewport but is not fully visible is scrolled into view first so a
// single frame can cover it.
const elementJS = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) {
		return JSON.stringify(null);
	}
	let r = el.getBoundingClientRect();
	const vw = document.documentElement.clientWidth || window.innerWidth;
	const vh = document.documentElement.clientHeight || window.innerHeight;
	const fits = r.width <= vw && r.height <= vh;
	const visible = r.left >= 0 && r.top >= 0 && r.right <= vw && r.bottom <= vh;
	if (fits && !visible) {
		el.scrollIntoView({block: 'nearest', inline: 'nearest', behavior: 'instant'});
		r = el.getBoundingClientRect();
	}
	return JSON.stringify({
		x: r.left + window.scrollX,
		y: r.top + window.scrollY,
		width: r.width,
		height: r.height,
	});
}`

// screenJS locates the viewport on screen, in CSS px, for screen grabbers
const screenJS = `() => JSON.stringify({
	x: window.screenX + (window.outerWidth - window.innerWidth),
	y: window.screenY + (window.outerHeight - window.innerHeight),
	width: document.documentElement.clientWidth || window.innerWidth,
	height: document.documentElement.clientHeight || window.innerHeight,
	dpr: window.devicePixelRatio || 1,
})`

// Layout measures the viewport, document, scroll position and DPR
func (p *Page) Layout(ctx context.Context) (Layout, error) {
	var l Layout
	if err := p.eval(ctx, &l, layoutJS); err != nil {
		return Layout{}, fmt.Errorf("browser: measure layout: %w", err)
	}
	return l, nil
}

// Element returns the page-absolute rect of the first element matching selector
func (p *Page) Element(ctx context.Context, selector string) (geometry.Rect, error) {
	var r *geometry.Rect
	if err := p.eval(ctx, &r, elementJS, selector); err != nil {
		return geometry.Rect{}, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	if r == nil {
		return geometry.Rect{}, failure.New(failure.InvalidRegion, "no element matches %q", selector)
	}
	return *r, nil
}

// ScreenRect reports where the viewport sits on screen, in physical pixels
func (p *Page) ScreenRect(ctx context.Context) (image.Rectangle, error) {
	var v struct {
		geometry.Rect
		DPR float64 `json:"dpr"`
	}
	if err := p.eval(ctx, &v, screenJS); err != nil {
		return image.Rectangle{}, fmt.Errorf("browser: locate viewport: %w", err)
	}
	x := int(math.Round(v.X * v.DPR))
	y := int(math.Round(v.Y * v.DPR))
	return image.Rect(x, y, x+int(math.Round(v.Width*v.DPR)), y+int(math.Round(v.Height*v.DPR))), nil
}
