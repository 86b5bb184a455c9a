package browser

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
)

var borderSeq atomic.Int64

// showBorderJS draws an outline inset into the region so it lands inside
// the captured pixels
const showBorderJS = `(id, x, y, w, h) => {
	const div = document.createElement('div');
	div.id = id;
	Object.assign(div.style, {
		position: 'absolute',
		left: x + 'px',
		top: y + 'px',
		width: w + 'px',
		height: h + 'px',
		boxSizing: 'border-box',
		border: '2px dashed #ff2d55',
		pointerEvents: 'none',
		zIndex: '2147483647',
	});
	document.body.appendChild(div);
	return JSON.stringify(true);
}`

const hideBorderJS = `(id) => {
	const div = document.getElementById(id);
	if (div) {
		div.remove();
	}
	return JSON.stringify(true);
}`

// ShowBorder outlines a page-absolute region
func (p *Page) ShowBorder(ctx context.Context, region geometry.Rect) (capture.BorderState, error) {
	id := fmt.Sprintf("tileshot-debug-border-%d", borderSeq.Add(1))
	if err := p.eval(ctx, nil, showBorderJS, id, region.X, region.Y, region.Width, region.Height); err != nil {
		return capture.BorderState{}, fmt.Errorf("browser: show border: %w", err)
	}
	return capture.BorderState{Shown: true, ID: id}, nil
}

// HideBorder removes a border added by ShowBorder. A zero state does nothing.
func (p *Page) HideBorder(ctx context.Context, state capture.BorderState) error {
	if !state.Shown {
		return nil
	}
	if err := p.eval(ctx, nil, hideBorderJS, state.ID); err != nil {
		return fmt.Errorf("browser: hide border: %w", err)
	}
	return nil
}
