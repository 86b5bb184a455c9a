package browser

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
)

const scrollbarStyleID = "tileshot-hide-scrollbars"

// scrollJS scrolls instantly and resolves after two animation frames so the
// reported position is the one that gets painted
const scrollJS = `(x, y) => new Promise(resolve => {
	window.scrollTo({left: x, top: y, behavior: 'instant'});
	requestAnimationFrame(() => requestAnimationFrame(() => {
		resolve(JSON.stringify({x: window.scrollX, y: window.scrollY}));
	}));
})`

const hideScrollbarsJS = `(id) => {
	if (document.getElementById(id)) {
		return JSON.stringify({hidden: false});
	}
	const root = document.documentElement;
	const previous = root.style.getPropertyValue('scrollbar-width');
	root.style.setProperty('scrollbar-width', 'none', 'important');
	const style = document.createElement('style');
	style.id = id;
	style.textContent = '::-webkit-scrollbar { display: none !important; }';
	(document.head || root).appendChild(style);
	return JSON.stringify({hidden: true, previous: previous});
}`

const showScrollbarsJS = `(id, previous) => {
	const style = document.getElementById(id);
	if (style) {
		style.remove();
	}
	const root = document.documentElement;
	if (previous) {
		root.style.setProperty('scrollbar-width', previous);
	} else {
		root.style.removeProperty('scrollbar-width');
	}
	return JSON.stringify(true);
}`

// ScrollTo scrolls the page and reports where it actually landed
func (p *Page) ScrollTo(ctx context.Context, to geometry.Point) (capture.ScrollOutcome, error) {
	var actual geometry.Point
	if err := p.eval(ctx, &actual, scrollJS, to.X, to.Y); err != nil {
		return capture.ScrollOutcome{}, fmt.Errorf("browser: scroll to %s: %w", to, err)
	}
	return capture.ScrollOutcome{Requested: to, Actual: actual}, nil
}

// HideScrollbars hides the page scrollbars. Calling it while they are already
// hidden returns a zero state.
func (p *Page) HideScrollbars(ctx context.Context) (capture.ScrollbarState, error) {
	var state capture.ScrollbarState
	if err := p.eval(ctx, &state, hideScrollbarsJS, scrollbarStyleID); err != nil {
		return capture.ScrollbarState{}, fmt.Errorf("browser: hide scrollbars: %w", err)
	}
	return state, nil
}

// ShowScrollbars undoes HideScrollbars. A zero state does nothing.
func (p *Page) ShowScrollbars(ctx context.Context, state capture.ScrollbarState) error {
	if !state.Hidden {
		return nil
	}
	if err := p.eval(ctx, nil, showScrollbarsJS, scrollbarStyleID, state.Previous); err != nil {
		return fmt.Errorf("browser: show scrollbars: %w", err)
	}
	return nil
}
