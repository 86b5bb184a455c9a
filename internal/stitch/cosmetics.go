package stitch

import (
	"context"

	"github.com/bryanchriswhite/TileShot/internal/capture"
	"github.com/bryanchriswhite/TileShot/internal/geometry"
	"github.com/rs/zerolog"
)

// cosmetics is the page state a job changed and must put back
type cosmetics struct {
	scrollbars capture.ScrollbarState
	border     capture.BorderState
	origin     geometry.Point
	moved      bool
}

// acquire hides scrollbars for tiled jobs and shows the debug border when
// asked. Failures are logged and the job carries on.
func (e *Engine) acquire(ctx context.Context, p plan, log *zerolog.Logger) *cosmetics {
	c := &cosmetics{origin: p.req.Scroll}

	if p.tiled && e.scroll != nil {
		state, err := e.scroll.HideScrollbars(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to hide scrollbars")
		} else {
			c.scrollbars = state
		}
	}

	if p.req.Debug && e.overlay != nil {
		state, err := e.overlay.ShowBorder(ctx, p.req.Region)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to show debug border")
		} else {
			c.border = state
		}
	}

	return c
}

// release undoes acquire and restores the scroll position. It runs on every
// exit path and never fails the job.
func (e *Engine) release(ctx context.Context, c *cosmetics, log *zerolog.Logger) {
	e.emit(Event{State: StateFinalizing})

	if e.overlay != nil {
		if err := e.overlay.HideBorder(ctx, c.border); err != nil {
			log.Warn().Err(err).Msg("Failed to hide debug border")
		}
	}

	if e.scroll == nil {
		return
	}
	if err := e.scroll.ShowScrollbars(ctx, c.scrollbars); err != nil {
		log.Warn().Err(err).Msg("Failed to restore scrollbars")
	}
	if c.moved {
		if _, err := e.scroll.ScrollTo(ctx, c.origin); err != nil {
			log.Warn().Err(err).Stringer("scroll", c.origin).Msg("Failed to restore scroll position")
		}
	}
}
